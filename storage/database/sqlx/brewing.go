package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/brewing"
)

// brewingRepository stores recipes and brews as JSONB documents, next to the columns they are looked up by.
type brewingRepository struct {
	db core.DB
}

func NewBrewingRepository(db core.DB) brewing.Repository {
	return &brewingRepository{db: db}
}

// Recipes

func (repo *brewingRepository) CreateRecipe(ctx context.Context, recipe brewing.Recipe) (brewing.Recipe, error) {
	data, err := jsonDoc(recipe)
	if err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "encoding recipe")
	}
	q := `INSERT INTO recipes (id, brewer_id, name, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = repo.db.ExecContext(ctx, q, recipe.ID, recipe.BrewerID, recipe.Name, data, recipe.CreatedAt, recipe.UpdatedAt); err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "inserting recipe")
	}
	return recipe, nil
}

func (repo *brewingRepository) GetRecipe(ctx context.Context, brewerID, id string) (brewing.Recipe, error) {
	var data []byte
	q := `SELECT data FROM recipes WHERE id = $1 AND brewer_id = $2`
	if err := repo.db.GetContext(ctx, &data, q, id, brewerID); err != nil {
		return brewing.Recipe{}, notFound(err, brewing.ErrRecipeNotFound)
	}
	var recipe brewing.Recipe
	if err := fromJSONDoc(data, &recipe); err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "decoding recipe")
	}
	return recipe, nil
}

func (repo *brewingRepository) QueryRecipes(ctx context.Context, brewerID string) ([]brewing.Recipe, error) {
	var docs [][]byte
	q := `SELECT data FROM recipes WHERE brewer_id = $1 ORDER BY created_at DESC`
	if err := repo.db.SelectContext(ctx, &docs, q, brewerID); err != nil {
		return nil, errors.Wrap(err, "selecting recipes")
	}
	recipes := make([]brewing.Recipe, len(docs))
	for i, data := range docs {
		if err := fromJSONDoc(data, &recipes[i]); err != nil {
			return nil, errors.Wrap(err, "decoding recipe")
		}
	}
	return recipes, nil
}

func (repo *brewingRepository) UpdateRecipe(ctx context.Context, recipe brewing.Recipe) (brewing.Recipe, error) {
	data, err := jsonDoc(recipe)
	if err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "encoding recipe")
	}
	q := `UPDATE recipes SET name = $3, data = $4, updated_at = $5 WHERE id = $1 AND brewer_id = $2`
	res, err := repo.db.ExecContext(ctx, q, recipe.ID, recipe.BrewerID, recipe.Name, data, recipe.UpdatedAt)
	if err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "updating recipe")
	}
	if err = affected(res, brewing.ErrRecipeNotFound); err != nil {
		return brewing.Recipe{}, err
	}
	return recipe, nil
}

func (repo *brewingRepository) DeleteRecipe(ctx context.Context, brewerID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = $1 AND brewer_id = $2`, id, brewerID)
	if err != nil {
		return errors.Wrap(err, "deleting recipe")
	}
	return affected(res, brewing.ErrRecipeNotFound)
}

// Brews

func (repo *brewingRepository) CreateBrew(ctx context.Context, brew brewing.Brew) (brewing.Brew, error) {
	data, err := jsonDoc(brew)
	if err != nil {
		return brewing.Brew{}, errors.Wrap(err, "encoding brew")
	}
	q := `INSERT INTO brews (id, brewer_id, recipe_id, status, data, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = repo.db.ExecContext(ctx, q, brew.ID, brew.BrewerID, brew.RecipeID, brew.Status, data, brew.CreatedAt, brew.UpdatedAt)
	if err != nil {
		return brewing.Brew{}, errors.Wrap(err, "inserting brew")
	}
	return brew, nil
}

func (repo *brewingRepository) GetBrew(ctx context.Context, brewerID, id string) (brewing.Brew, error) {
	var data []byte
	q := `SELECT data FROM brews WHERE id = $1 AND brewer_id = $2`
	if err := repo.db.GetContext(ctx, &data, q, id, brewerID); err != nil {
		return brewing.Brew{}, notFound(err, brewing.ErrBrewNotFound)
	}
	var brew brewing.Brew
	if err := fromJSONDoc(data, &brew); err != nil {
		return brewing.Brew{}, errors.Wrap(err, "decoding brew")
	}
	return brew, nil
}

func (repo *brewingRepository) QueryBrews(ctx context.Context, brewerID string) ([]brewing.Brew, error) {
	var docs [][]byte
	q := `SELECT data FROM brews WHERE brewer_id = $1 ORDER BY updated_at DESC`
	if err := repo.db.SelectContext(ctx, &docs, q, brewerID); err != nil {
		return nil, errors.Wrap(err, "selecting brews")
	}
	brews := make([]brewing.Brew, len(docs))
	for i, data := range docs {
		if err := fromJSONDoc(data, &brews[i]); err != nil {
			return nil, errors.Wrap(err, "decoding brew")
		}
	}
	return brews, nil
}

func (repo *brewingRepository) UpdateBrew(ctx context.Context, brew brewing.Brew) (brewing.Brew, error) {
	data, err := jsonDoc(brew)
	if err != nil {
		return brewing.Brew{}, errors.Wrap(err, "encoding brew")
	}
	q := `UPDATE brews SET recipe_id = $3, status = $4, data = $5, updated_at = $6 WHERE id = $1 AND brewer_id = $2`
	res, err := repo.db.ExecContext(ctx, q, brew.ID, brew.BrewerID, brew.RecipeID, brew.Status, data, brew.UpdatedAt)
	if err != nil {
		return brewing.Brew{}, errors.Wrap(err, "updating brew")
	}
	if err = affected(res, brewing.ErrBrewNotFound); err != nil {
		return brewing.Brew{}, err
	}
	return brew, nil
}

func (repo *brewingRepository) DeleteBrew(ctx context.Context, brewerID, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM brews WHERE id = $1 AND brewer_id = $2`, id, brewerID)
	if err != nil {
		return errors.Wrap(err, "deleting brew")
	}
	return affected(res, brewing.ErrBrewNotFound)
}
