package models

import "time"

// PaylinkClaims is the verified content of a payment token. Tokens are
// ephemeral: they are built and checked within a single request and own no
// storage. InvoiceID is set only for the compact invoice-reference scheme.
type PaylinkClaims struct {
	RecipientID int64     `json:"recipient_id"`
	Amount      int64     `json:"amount"` // in cents
	Description string    `json:"description"`
	IssuedAt    time.Time `json:"issued_at"`
	Signature   string    `json:"-"`
	InvoiceID   *int64    `json:"invoice_id,omitempty"`
}
