package domain

import (
	"strconv"
	"time"
)

// User is a registered account. PasswordHash is only populated by the
// credential lookup and is never serialized.
type User struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Subject returns the user id in the string form used as the JWT subject.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

// RoleNames returns the names of the user's roles in stored order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PermissionNames returns the union of permissions granted by all roles,
// de-duplicated, in first-seen order.
func (u *User) PermissionNames() []string {
	seen := make(map[string]struct{})
	names := []string{}
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			names = append(names, p.Name)
		}
	}
	return names
}

// Sanitized returns a copy of u with the password hash cleared.
func (u *User) Sanitized() *User {
	c := *u
	c.PasswordHash = ""
	return &c
}

// TokenPair is the access/refresh pair returned by login, register and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
