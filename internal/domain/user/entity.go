// internal/domain/user/entity.go
package user

import "time"

const (
	RoleCustomer   = "customer"
	RoleConsultant = "consultant"
	RoleAdmin      = "admin"
)

// User is the slice of the account profile this service needs: the billing
// contact fallback and the plan role restriction. Account management itself
// lives in the auth service.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
