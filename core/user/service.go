package user

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/beerxchange/core"
)

var (
	// errors
	ErrNotFound             = core.NewNotFoundError(errors.New("user not found"))
	ErrUsernameExists       = core.NewConflictError(errors.New("username already exists"))
	ErrAuthenticationFailed = errors.New("invalid credentials")
	ErrAccountDeactivated   = errors.New("account deactivated")
)

type (
	Repository interface {
		// CreateUser fails with ErrUsernameExists when the username is taken.
		CreateUser(ctx context.Context, user User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		UpdateUser(ctx context.Context, user User) (User, error)
		// CountUsersWithRole counts users having a role starting with prefix.
		CountUsersWithRole(ctx context.Context, prefix string) (int, error)
	}

	Service struct {
		repo Repository
		now  core.Clock
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: core.UTCNow}
}

func (svc *Service) Register(ctx context.Context, nb NewBrewer) (User, error) {
	nb.Clean()
	now := svc.now()
	usr := User{
		ID:              uuid.NewString(),
		Name:            nb.Name,
		Username:        nb.Username,
		PhoneNumber:     null.NewString(nb.PhoneNumber, nb.PhoneNumber != ""),
		ProfileImageURL: null.NewString(nb.ProfileImageURL, nb.ProfileImageURL != ""),
		IsActive:        true,
		Roles:           []string{RoleBrewer},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := usr.SetPassword(nb.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Authenticate checks the user's credentials and records the login.
func (svc *Service) Authenticate(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrAuthenticationFailed
		}
		return User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrAuthenticationFailed
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr.LastLogin = null.TimeFrom(svc.now())
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) UpdateProfile(ctx context.Context, id string, up UpdateProfile) (User, error) {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if up.Name != nil {
		usr.Name = core.CleanString(*up.Name)
	}
	if up.PhoneNumber != nil {
		phone := core.CleanString(*up.PhoneNumber)
		usr.PhoneNumber = null.NewString(phone, phone != "")
	}
	if up.ProfileImageURL != nil {
		img := core.CleanString(*up.ProfileImageURL)
		usr.ProfileImageURL = null.NewString(img, img != "")
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// EnsureAdmin seeds a superuser with the given credentials when no admin exists yet.
// It reports whether one was created.
func (svc *Service) EnsureAdmin(ctx context.Context, uname, pwd string) (bool, error) {
	count, err := svc.repo.CountUsersWithRole(ctx, RoleAdmin)
	if err != nil {
		return false, errors.Wrap(err, "counting admins")
	}
	if count > 0 {
		return false, nil
	}
	if _, err = svc.SaveAdmin(ctx, uname, pwd, true); err != nil {
		return false, err
	}
	return true, nil
}

// SaveAdmin updates or creates an active admin user with the given password.
func (svc *Service) SaveAdmin(ctx context.Context, uname, pwd string, superuser bool) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	role := RoleAdminModerator
	if superuser {
		role = RoleAdminSuperuser
	}
	now := svc.now()

	usr, err := svc.repo.GetUserByUsername(ctx, uname)
	switch {
	case err == nil:
		if !usr.HasRole(role) {
			usr.Roles = append(usr.Roles, role)
		}
		usr.IsActive = true
		usr.UpdatedAt = now
		if err = usr.SetPassword(pwd); err != nil {
			return User{}, err
		}
		return svc.repo.UpdateUser(ctx, usr)
	case errors.Cause(err) == ErrNotFound:
		usr = User{
			ID:        uuid.NewString(),
			Name:      uname,
			Username:  uname,
			IsActive:  true,
			Roles:     []string{role},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err = usr.SetPassword(pwd); err != nil {
			return User{}, err
		}
		return svc.repo.CreateUser(ctx, usr)
	default:
		return User{}, errors.Wrap(err, "finding user by username")
	}
}

func (svc *Service) ResetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsername(ctx, uname)
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// DemoBrewer returns the shared brewer used by unauthenticated brewing requests, creating it on first use.
func (svc *Service) DemoBrewer(ctx context.Context) (User, error) {
	usr, err := svc.repo.GetUserByUsername(ctx, DemoBrewerUsername)
	if err == nil || errors.Cause(err) != ErrNotFound {
		return usr, err
	}

	now := svc.now()
	usr = User{
		ID:        uuid.NewString(),
		Name:      "Demo Brewer",
		Username:  DemoBrewerUsername,
		IsActive:  true,
		Roles:     []string{RoleBrewer},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = usr.SetPassword(uuid.NewString()); err != nil {
		return User{}, err
	}
	usr, err = svc.repo.CreateUser(ctx, usr)
	if errors.Cause(err) == ErrUsernameExists { // created concurrently
		return svc.repo.GetUserByUsername(ctx, DemoBrewerUsername)
	}
	return usr, err
}
