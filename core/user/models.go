package user

import (
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/beerxchange/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminSuperuser = "admin:superuser"
	RoleAdminModerator = "admin:moderator"

	// Brewer
	RoleBrewer = "brewer:"
)

const DemoBrewerUsername = "demo-brewer"

var (
	AdminRoles  = []string{RoleAdminSuperuser, RoleAdminModerator}
	BrewerRoles = []string{RoleBrewer}

	roleNames = map[string]string{
		RoleAdminSuperuser: "SUPERUSER",
		RoleAdminModerator: "MODERATOR",
		RoleAdmin:          "USER",
		RoleBrewer:         "BREWER",
	}
)

type User struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Username        string      `json:"username"`
	PhoneNumber     null.String `json:"phoneNumber"`
	ProfileImageURL null.String `json:"profileImageUrl"`
	IsActive        bool        `json:"isActive"`
	Roles           []string    `json:"roles"`
	PasswordHash    []byte      `json:"-"`
	CreatedAt       time.Time   `json:"createdAt"` // UTC
	UpdatedAt       time.Time   `json:"updatedAt"` // UTC
	LastLogin       null.Time   `json:"lastLogin"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsBrewer() bool {
	return u.RoleStartsWith(RoleBrewer)
}

// RoleName is the public name of the user's highest role (SUPERUSER, MODERATOR, USER or BREWER).
func (u *User) RoleName() string {
	for _, role := range []string{RoleAdminSuperuser, RoleAdminModerator, RoleAdmin, RoleBrewer} {
		if u.HasRole(role) {
			return roleNames[role]
		}
	}
	return ""
}

// NewBrewer contains information needed to register a brewer.
type NewBrewer struct {
	Name            string `json:"name" validate:"required,max=120"`
	Username        string `json:"username" validate:"required,min=3,max=40,alphanum_"`
	PhoneNumber     string `json:"phoneNumber" validate:"max=32"`
	ProfileImageURL string `json:"profileImageUrl"`
	Password        string `json:"password" validate:"required,pwdminlen,pwdnospace"`
}

func (nb *NewBrewer) Clean() {
	nb.Name = core.CleanString(nb.Name)
	nb.Username = core.CleanString(nb.Username, true /* lower */)
	nb.PhoneNumber = core.CleanString(nb.PhoneNumber)
	nb.ProfileImageURL = core.CleanString(nb.ProfileImageURL)
}

// UpdateProfile defines what a brewer may change on their own profile. Nil fields are left untouched.
type UpdateProfile struct {
	Name            *string `json:"name" validate:"omitempty,min=1,max=120"`
	PhoneNumber     *string `json:"phoneNumber" validate:"omitempty,max=32"`
	ProfileImageURL *string `json:"profileImageUrl"`
}
