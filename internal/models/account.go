package models

import "time"

// Account is the authoritative balance record. Balances are integer minor
// units (cents); they are only ever mutated through the ledger transfer path.
type Account struct {
	ID         int64     `json:"id" db:"id"`
	Identifier string    `json:"identifier" db:"identifier"` // unique, matched case-insensitively
	Balance    int64     `json:"balance" db:"balance"`       // in cents, never negative
	Version    int       `json:"-" db:"version"`             // for optimistic locking
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
