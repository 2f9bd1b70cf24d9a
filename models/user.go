package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a user's role within a firm
type Role string

const (
	RoleParalegal Role = "paralegal"
	RoleLawyer    Role = "lawyer"
	RoleAdmin     Role = "admin"
)

// Elevated reports whether the role may approve, reject or export pieces
func (r Role) Elevated() bool {
	return r == RoleLawyer || r == RoleAdmin
}

// User represents a user entity
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	FirmName     *string   `json:"firm_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
