package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
	"github.com/trezcool/beerxchange/core/user"
)

type userRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Username        string         `db:"username"`
	PhoneNumber     null.String    `db:"phone_number"`
	ProfileImageURL null.String    `db:"profile_image_url"`
	IsActive        bool           `db:"is_active"`
	Roles           pq.StringArray `db:"roles"`
	PasswordHash    []byte         `db:"password_hash"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
	LastLogin       null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:              r.ID,
		Name:            r.Name,
		Username:        r.Username,
		PhoneNumber:     r.PhoneNumber,
		ProfileImageURL: r.ProfileImageURL,
		IsActive:        r.IsActive,
		Roles:           []string(r.Roles),
		PasswordHash:    r.PasswordHash,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		LastLogin:       r.LastLogin,
	}
}

func toUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:              usr.ID,
		Name:            usr.Name,
		Username:        usr.Username,
		PhoneNumber:     usr.PhoneNumber,
		ProfileImageURL: usr.ProfileImageURL,
		IsActive:        usr.IsActive,
		Roles:           roles,
		PasswordHash:    usr.PasswordHash,
		CreatedAt:       usr.CreatedAt,
		UpdatedAt:       usr.UpdatedAt,
		LastLogin:       usr.LastLogin,
	}
}

const userColumns = `id, name, username, phone_number, profile_image_url, is_active, roles, password_hash,
	created_at, updated_at, last_login`

type userRepository struct {
	db core.DB
}

func NewUserRepository(db core.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `INSERT INTO users (` + userColumns + `)
	VALUES (:id, :name, :username, :phone_number, :profile_image_url, :is_active, :roles, :password_hash,
		:created_at, :updated_at, :last_login)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, toUserRow(usr)); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) get(ctx context.Context, cond string, arg interface{}) (user.User, error) {
	var row userRow
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + cond
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		return user.User{}, notFound(err, user.ErrNotFound)
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	return repo.get(ctx, "id = $1", id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.get(ctx, "username = $1", username)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET name = :name, username = :username, phone_number = :phone_number,
		profile_image_url = :profile_image_url, is_active = :is_active, roles = :roles,
		password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
	WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, toUserRow(usr))
	if err != nil {
		if isUniqueViolation(err) {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if err = affected(res, user.ErrNotFound); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) CountUsersWithRole(ctx context.Context, prefix string) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM users WHERE EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE $1)`
	if err := repo.db.GetContext(ctx, &count, q, prefix+"%"); err != nil {
		return 0, errors.Wrap(err, "counting users")
	}
	return count, nil
}
