package domain

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleStaff      Role = "staff"
	RoleAccountant Role = "accountant"
	RoleCustomer   Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleAccountant, RoleCustomer:
		return true
	}
	return false
}

// CanWriteOrderStatus reports whether the role may issue status transitions.
// Accountants read reports elsewhere but never mutate orders.
func (r Role) CanWriteOrderStatus() bool {
	return r == RoleAdmin || r == RoleStaff
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Name: u.Name}
}
