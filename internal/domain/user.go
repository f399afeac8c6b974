package domain

import "time"

// Role determines what a user may do with tasks.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the domain entity for an account. Accounts are provisioned
// out-of-band (see scripts/genhash.go); there is no registration
// endpoint.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}
