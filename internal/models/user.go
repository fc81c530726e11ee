package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RolePersonal = "PERSONAL"
	RoleOrgAdmin = "ORG_ADMIN"
	RoleAdmin    = "ADMIN"
)

type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
