package domain

import "time"

type UserID string

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type User struct {
	ID       UserID   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is the signed-in state shared read-only by every component.
type Session struct {
	Token     string
	User      User
	ExpiresAt time.Time // zero when the token carries no expiry
}

// Expired reports whether the token expiry, if known, is in the past.
func (s *Session) Expired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
