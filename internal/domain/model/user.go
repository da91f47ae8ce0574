package model

import "time"

// User is an account holder known to the identity adapter. Balances are keyed by ID.
type User struct {
	ID           int64
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}

// NewAccount describes a registration. The user row, its balance row and,
// when OpeningPoints is positive, a SIGNUP_BONUS transaction are written together.
type NewAccount struct {
	Login         string
	PasswordHash  string
	OpeningPoints int64
	TransactionID string
}

// Account is the stored result of a registration.
type Account struct {
	User    User
	Balance Balance
	Opening *Transaction
}

// Session is handed to a client after registration or login.
type Session struct {
	UserID int64
	Token  string
	Points int64
}
