package models

import "time"

const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// LedgerEntry records one account's side of a transfer. Entries are immutable
// once written; corrections are expressed as new compensating entries.
// Every transfer produces exactly two entries sharing a reference id, one
// debit and one credit, each naming the other account as counterparty.
// CounterpartyID is nil for system-origin funding.
type LedgerEntry struct {
	ID             int64     `json:"id" db:"id"`
	ReferenceID    string    `json:"reference_id" db:"reference_id"`
	AccountID      int64     `json:"account_id" db:"account_id"`
	CounterpartyID *int64    `json:"counterparty_id" db:"counterparty_id"`
	Counterparty   string    `json:"counterparty"` // resolved identifier, "system" when none
	Direction      string    `json:"direction" db:"direction"` // DEBIT or CREDIT
	Amount         int64     `json:"amount" db:"amount"`       // in cents, always positive
	Description    string    `json:"description" db:"description"`
	InvoiceID      *int64    `json:"invoice_id" db:"invoice_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
