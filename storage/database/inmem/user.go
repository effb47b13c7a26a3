package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/beerxchange/core/user"
)

type userRepository struct {
	db *userTable
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) find(match func(usr *user.User) bool) (user.User, error) {
	for _, usr := range repo.db.t {
		if match(usr) {
			return clone(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, u := range repo.db.t {
		if u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}
	stored := clone(usr)
	repo.db.t[usr.ID] = &stored
	return clone(stored), nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.t[id]; ok {
		return clone(*usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.find(func(usr *user.User) bool { return usr.Username == username })
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.t {
		if u.ID != usr.ID && u.Username == usr.Username {
			return user.User{}, user.ErrUsernameExists
		}
	}
	stored := clone(usr)
	repo.db.t[usr.ID] = &stored
	return clone(stored), nil
}

func (repo *userRepository) CountUsersWithRole(_ context.Context, prefix string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, usr := range repo.db.t {
		for _, role := range usr.Roles {
			if strings.HasPrefix(role, prefix) {
				count++
				break
			}
		}
	}
	return count, nil
}

// clone copies the user's slices so that callers never share them with the table.
func clone(usr user.User) user.User {
	usr.Roles = append([]string(nil), usr.Roles...)
	usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	return usr
}
