package users

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/platinummonkey/adminhub/pkg/auth"
)

var (
	// ErrNotFound is returned for unknown users
	ErrNotFound = auth.ErrUserNotFound

	// ErrDuplicate is returned when the username or email is taken
	ErrDuplicate = errors.New("the user with this username or email already exists in the system")
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

// UserCreate is the input for a new account
type UserCreate struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	NickName    string `json:"nick_name"`
	Avatar      string `json:"avatar"`
	IsActive    *bool  `json:"is_active,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	IsConfirmed bool   `json:"is_confirmed"`
}

// Normalize trims fields and defaults the username to the email
func (c *UserCreate) Normalize() {
	c.Email = strings.TrimSpace(c.Email)
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" {
		c.Username = c.Email
	}
}

// Validate checks the input after Normalize
func (c *UserCreate) Validate() error {
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	if err := validateUsername(c.Username); err != nil {
		return err
	}
	return validatePassword(c.Password)
}

// UserUpdate is a partial update applied by a superuser
type UserUpdate struct {
	Username    *string `json:"username,omitempty"`
	Email       *string `json:"email,omitempty"`
	Password    *string `json:"password,omitempty"`
	FirstName   *string `json:"first_name,omitempty"`
	LastName    *string `json:"last_name,omitempty"`
	NickName    *string `json:"nick_name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsSuperuser *bool   `json:"is_superuser,omitempty"`
	IsConfirmed *bool   `json:"is_confirmed,omitempty"`
}

// Validate checks the fields that are set
func (u *UserUpdate) Validate() error {
	if u.Email != nil {
		if err := validateEmail(*u.Email); err != nil {
			return err
		}
	}
	if u.Username != nil {
		if err := validateUsername(*u.Username); err != nil {
			return err
		}
	}
	if u.Password != nil {
		return validatePassword(*u.Password)
	}
	return nil
}

// Apply copies the set fields onto user. The password is handled separately.
func (u *UserUpdate) Apply(user *auth.User) {
	setString(&user.Username, u.Username)
	setString(&user.Email, u.Email)
	setString(&user.FirstName, u.FirstName)
	setString(&user.LastName, u.LastName)
	setString(&user.NickName, u.NickName)
	setString(&user.Avatar, u.Avatar)
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
	if u.IsSuperuser != nil {
		user.IsSuperuser = *u.IsSuperuser
	}
	if u.IsConfirmed != nil {
		user.IsConfirmed = *u.IsConfirmed
	}
}

// SelfUpdate is what a user may change on their own account
type SelfUpdate struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Password  *string `json:"password,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	NickName  *string `json:"nick_name,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
}

// AsUpdate converts to a UserUpdate that leaves the account flags alone
func (s *SelfUpdate) AsUpdate() *UserUpdate {
	return &UserUpdate{
		Username:  s.Username,
		Email:     s.Email,
		Password:  s.Password,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		NickName:  s.NickName,
		Avatar:    s.Avatar,
	}
}

// List is a page of users
type List struct {
	Total int          `json:"total"`
	Items []*auth.User `json:"items"`
}

// MeOut is the current user together with everything they may do
type MeOut struct {
	*auth.User
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles"`
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &auth.ValidationError{Field: "email", Message: "is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &auth.ValidationError{Field: "email", Message: "is not a valid email address"}
	}
	return nil
}

func validateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return &auth.ValidationError{Field: "username", Message: "is required"}
	}
	if len(username) > 255 {
		return &auth.ValidationError{Field: "username", Message: "must be at most 255 characters"}
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return &auth.ValidationError{Field: "password", Message: "must be at least 6 characters"}
	}
	return nil
}
