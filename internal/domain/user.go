package domain

import "time"

// Role constants.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a directory record. Username is the identity written into
// Review.Author.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller is the authenticated principal performing an operation.
type Caller struct {
	UserID   string
	Identity string
	Role     string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ValidRoles returns the set of valid roles.
func ValidRoles() []string {
	return []string{RoleUser, RoleAdmin}
}

// IsValidRole checks whether role is known.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}
