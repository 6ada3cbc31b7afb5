package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lumenbank/backend/internal/models"
)

// Invoices is the invoice state machine built on top of the ledger.
type Invoices interface {
	Create(ctx context.Context, creatorID, amount int64, description string) (*models.Invoice, error)
	Get(ctx context.Context, invoiceID int64) (*models.Invoice, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]models.Invoice, error)
	Pay(ctx context.Context, invoiceID, payerID int64) (*models.Invoice, error)
	Cancel(ctx context.Context, invoiceID, creatorID int64) (*models.Invoice, error)
}

// InvoiceService is the Postgres-backed Invoices implementation. Settlement
// locks the invoice row and runs the ledger transfer inside the same
// database transaction, so the status flip to PAID and the money movement
// commit together or not at all.
//
// Expected table: invoices(id, creator_id, amount, description, status,
// created_at, paid_by, paid_at).
type InvoiceService struct {
	db     *sql.DB
	ledger *LedgerService
}

func NewInvoiceService(db *sql.DB, ledger *LedgerService) *InvoiceService {
	return &InvoiceService{db: db, ledger: ledger}
}

func (s *InvoiceService) Create(ctx context.Context, creatorID, amount int64, description string) (*models.Invoice, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.ledger.AccountByID(ctx, creatorID); err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		CreatorID:   creatorID,
		Amount:      amount,
		Description: description,
		Status:      models.InvoicePending,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO invoices (creator_id, amount, description, status, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at`,
		creatorID, amount, description, models.InvoicePending).
		Scan(&invoice.ID, &invoice.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invoice: insert: %w", err)
	}
	return invoice, nil
}

func (s *InvoiceService) Get(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, creator_id, amount, description, status, created_at, paid_by, paid_at
		FROM invoices WHERE id = $1`, invoiceID).
		Scan(&inv.ID, &inv.CreatorID, &inv.Amount, &inv.Description, &inv.Status,
			&inv.CreatedAt, &inv.PaidBy, &inv.PaidAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invoice: fetch: %w", err)
	}
	return &inv, nil
}

func (s *InvoiceService) ListByCreator(ctx context.Context, creatorID int64) ([]models.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, creator_id, amount, description, status, created_at, paid_by, paid_at
		FROM invoices
		WHERE creator_id = $1
		ORDER BY created_at DESC, id DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("invoice: list: %w", err)
	}
	defer rows.Close()

	var invoices []models.Invoice
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.CreatorID, &inv.Amount, &inv.Description,
			&inv.Status, &inv.CreatedAt, &inv.PaidBy, &inv.PaidAt); err != nil {
			return nil, fmt.Errorf("invoice: scan: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("invoice: iterate: %w", err)
	}
	return invoices, nil
}

// Pay settles a pending invoice by transferring its amount from the payer
// to the creator. A transfer failure leaves the invoice pending.
func (s *InvoiceService) Pay(ctx context.Context, invoiceID, payerID int64) (*models.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("invoice: begin pay: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.lockInvoice(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvoicePending {
		return nil, ErrInvoiceSettled
	}
	if payerID == inv.CreatorID {
		return nil, ErrSelfTransfer
	}

	if _, _, err := s.ledger.transferTx(ctx, tx, payerID, inv.CreatorID,
		inv.Amount, inv.Description, &inv.ID); err != nil {
		return nil, err
	}

	paidAt := time.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE invoices SET status = $1, paid_by = $2, paid_at = $3 WHERE id = $4`,
		models.InvoicePaid, payerID, paidAt, inv.ID); err != nil {
		return nil, fmt.Errorf("invoice: mark paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("invoice: commit pay: %w", err)
	}

	inv.Status = models.InvoicePaid
	inv.PaidBy = &payerID
	inv.PaidAt = &paidAt
	return inv, nil
}

// Cancel moves a pending invoice to CANCELLED. Only the creator may cancel;
// the transition is never reversed.
func (s *InvoiceService) Cancel(ctx context.Context, invoiceID, creatorID int64) (*models.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("invoice: begin cancel: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.lockInvoice(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.CreatorID != creatorID {
		return nil, ErrInvoiceNotFound
	}
	if inv.Status != models.InvoicePending {
		return nil, ErrInvoiceSettled
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE invoices SET status = $1 WHERE id = $2`,
		models.InvoiceCancelled, inv.ID); err != nil {
		return nil, fmt.Errorf("invoice: mark cancelled: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("invoice: commit cancel: %w", err)
	}

	inv.Status = models.InvoiceCancelled
	return inv, nil
}

func (s *InvoiceService) lockInvoice(ctx context.Context, tx *sql.Tx, invoiceID int64) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.QueryRowContext(ctx, `
		SELECT id, creator_id, amount, description, status, created_at, paid_by, paid_at
		FROM invoices
		WHERE id = $1
		FOR UPDATE`, invoiceID).
		Scan(&inv.ID, &inv.CreatorID, &inv.Amount, &inv.Description, &inv.Status,
			&inv.CreatedAt, &inv.PaidBy, &inv.PaidAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invoice: lock invoice %d: %w", invoiceID, err)
	}
	return &inv, nil
}
