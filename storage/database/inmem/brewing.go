package inmemdb

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/beerxchange/core/brewing"
)

// brewingRepository keeps recipes and brews as JSON documents, so callers never share nested slices with the store.
type brewingRepository struct {
	db *brewingTables
}

func NewBrewingRepository(db *DB) brewing.Repository {
	return &brewingRepository{db: db.brewing}
}

// Recipes

func (repo *brewingRepository) CreateRecipe(_ context.Context, recipe brewing.Recipe) (brewing.Recipe, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.saveRecipe(recipe)
}

func (repo *brewingRepository) saveRecipe(recipe brewing.Recipe) (brewing.Recipe, error) {
	data, err := encode(recipe)
	if err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "encoding recipe")
	}
	repo.db.recipes[recipe.ID] = data

	var saved brewing.Recipe
	if err = decode(data, &saved); err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "decoding recipe")
	}
	return saved, nil
}

func (repo *brewingRepository) recipe(id string) (brewing.Recipe, error) {
	data, ok := repo.db.recipes[id]
	if !ok {
		return brewing.Recipe{}, brewing.ErrRecipeNotFound
	}
	var recipe brewing.Recipe
	if err := decode(data, &recipe); err != nil {
		return brewing.Recipe{}, errors.Wrap(err, "decoding recipe")
	}
	return recipe, nil
}

func (repo *brewingRepository) GetRecipe(_ context.Context, brewerID, id string) (brewing.Recipe, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recipe, err := repo.recipe(id)
	if err != nil {
		return brewing.Recipe{}, err
	}
	if recipe.BrewerID != brewerID {
		return brewing.Recipe{}, brewing.ErrRecipeNotFound
	}
	return recipe, nil
}

func (repo *brewingRepository) QueryRecipes(_ context.Context, brewerID string) ([]brewing.Recipe, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recipes := make([]brewing.Recipe, 0)
	for id := range repo.db.recipes {
		recipe, err := repo.recipe(id)
		if err != nil {
			return nil, err
		}
		if recipe.BrewerID == brewerID {
			recipes = append(recipes, recipe)
		}
	}
	sort.Slice(recipes, func(i, j int) bool { return recipes[i].CreatedAt.After(recipes[j].CreatedAt) })
	return recipes, nil
}

func (repo *brewingRepository) UpdateRecipe(_ context.Context, recipe brewing.Recipe) (brewing.Recipe, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, err := repo.recipe(recipe.ID)
	if err != nil {
		return brewing.Recipe{}, err
	}
	if orig.BrewerID != recipe.BrewerID {
		return brewing.Recipe{}, brewing.ErrRecipeNotFound
	}
	return repo.saveRecipe(recipe)
}

func (repo *brewingRepository) DeleteRecipe(_ context.Context, brewerID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	recipe, err := repo.recipe(id)
	if err != nil {
		return err
	}
	if recipe.BrewerID != brewerID {
		return brewing.ErrRecipeNotFound
	}
	delete(repo.db.recipes, id)
	return nil
}

// Brews

func (repo *brewingRepository) CreateBrew(_ context.Context, brew brewing.Brew) (brewing.Brew, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	return repo.saveBrew(brew)
}

func (repo *brewingRepository) saveBrew(brew brewing.Brew) (brewing.Brew, error) {
	data, err := encode(brew)
	if err != nil {
		return brewing.Brew{}, errors.Wrap(err, "encoding brew")
	}
	repo.db.brews[brew.ID] = data

	var saved brewing.Brew
	if err = decode(data, &saved); err != nil {
		return brewing.Brew{}, errors.Wrap(err, "decoding brew")
	}
	return saved, nil
}

func (repo *brewingRepository) brew(id string) (brewing.Brew, error) {
	data, ok := repo.db.brews[id]
	if !ok {
		return brewing.Brew{}, brewing.ErrBrewNotFound
	}
	var brew brewing.Brew
	if err := decode(data, &brew); err != nil {
		return brewing.Brew{}, errors.Wrap(err, "decoding brew")
	}
	return brew, nil
}

func (repo *brewingRepository) GetBrew(_ context.Context, brewerID, id string) (brewing.Brew, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	brew, err := repo.brew(id)
	if err != nil {
		return brewing.Brew{}, err
	}
	if brew.BrewerID != brewerID {
		return brewing.Brew{}, brewing.ErrBrewNotFound
	}
	return brew, nil
}

func (repo *brewingRepository) QueryBrews(_ context.Context, brewerID string) ([]brewing.Brew, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	brews := make([]brewing.Brew, 0)
	for id := range repo.db.brews {
		brew, err := repo.brew(id)
		if err != nil {
			return nil, err
		}
		if brew.BrewerID == brewerID {
			brews = append(brews, brew)
		}
	}
	sort.Slice(brews, func(i, j int) bool { return brews[i].UpdatedAt.After(brews[j].UpdatedAt) })
	return brews, nil
}

func (repo *brewingRepository) UpdateBrew(_ context.Context, brew brewing.Brew) (brewing.Brew, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, err := repo.brew(brew.ID)
	if err != nil {
		return brewing.Brew{}, err
	}
	if orig.BrewerID != brew.BrewerID {
		return brewing.Brew{}, brewing.ErrBrewNotFound
	}
	return repo.saveBrew(brew)
}

func (repo *brewingRepository) DeleteBrew(_ context.Context, brewerID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	brew, err := repo.brew(id)
	if err != nil {
		return err
	}
	if brew.BrewerID != brewerID {
		return brewing.ErrBrewNotFound
	}
	delete(repo.db.brews, id)
	return nil
}
