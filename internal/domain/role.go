package domain

import "github.com/google/uuid"

// Seeded role names.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Seeded permission names.
const (
	PermProfileRead   = "profile:read"
	PermUsersRead     = "users:read"
	PermTokensCleanup = "tokens:cleanup"
)

// Role groups permissions and is assigned to users.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// Permission is a named capability checked by route guards.
type Permission struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// HasAnyPermission reports whether granted and required intersect. An empty
// required set is always satisfied.
func HasAnyPermission(granted, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, g := range granted {
		set[g] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
