package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the persistent identity record owned by the account directory.
// Email is the unique natural key.
type Account struct {
	AccountID    string    `json:"id" dynamodbav:"account_id"`
	Name         string    `json:"name" dynamodbav:"name"`
	Email        string    `json:"email" dynamodbav:"email"`
	PasswordHash string    `json:"-" dynamodbav:"password_hash"`
	Role         string    `json:"role" dynamodbav:"role"`
	CreatedAt    time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time `json:"updated" dynamodbav:"updated_at"`
}

// AccountSummary is the public view of an Account. It never carries the hash.
type AccountSummary struct {
	AccountID string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created"`
}

func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		AccountID: a.AccountID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}
