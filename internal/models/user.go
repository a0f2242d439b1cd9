package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTrainer UserRole = "TRAINER"
	RoleTrainee UserRole = "TRAINEE"
)

// Trainer is a person who can be assigned to run sessions.
type Trainer struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}
