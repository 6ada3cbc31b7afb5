package models

import "time"

const (
	InvoicePending   = "PENDING"
	InvoicePaid      = "PAID"
	InvoiceCancelled = "CANCELLED"
)

// Invoice is a request for payment. The only legal transitions are
// PENDING -> PAID and PENDING -> CANCELLED; PaidBy/PaidAt are set exactly
// when the invoice is paid.
type Invoice struct {
	ID          int64      `json:"id" db:"id"`
	CreatorID   int64      `json:"creator_id" db:"creator_id"`
	Amount      int64      `json:"amount" db:"amount"` // in cents, always positive
	Description string     `json:"description" db:"description"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	PaidBy      *int64     `json:"paid_by" db:"paid_by"`
	PaidAt      *time.Time `json:"paid_at" db:"paid_at"`
}
