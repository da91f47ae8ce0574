package auth

import "time"

// Strategy issues and verifies the bearer tokens that identify a ledger
// owner. ParseToken returns the user id every balance and batch is keyed by.
type Strategy interface {
	IssueToken(userID int64) (string, error)
	ParseToken(token string) (int64, error)
	Name() string
}

// Options tunes a Strategy. A zero TTL selects DefaultTokenTTL.
type Options struct {
	TTL time.Duration
}

const DefaultTokenTTL = 24 * time.Hour
