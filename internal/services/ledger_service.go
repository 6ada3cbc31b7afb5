package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/lumenbank/backend/internal/models"
)

// Ledger is the authoritative store of balances and the append-only entry
// log. Transfer is the only path that moves money between accounts; every
// implementation must apply its two balance updates and two entry inserts
// as a single all-or-nothing unit.
type Ledger interface {
	CreateAccount(ctx context.Context, identifier, passwordHash string, openingBalance int64) (*models.Account, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	CredentialsByIdentifier(ctx context.Context, identifier string) (int64, string, error)
	Transfer(ctx context.Context, payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, error)
	Deposit(ctx context.Context, accountID, amount int64, description string) (int64, error)
	Withdraw(ctx context.Context, accountID, amount int64, description string) (int64, error)
	EntriesByAccount(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error)
}

// LedgerService is the Postgres-backed Ledger. Concurrent transfers touching
// a shared account are serialized by row locks taken in ascending id order,
// with a version column as a second line of defence.
//
// Expected tables: accounts(id, identifier, password_hash, balance, version,
// created_at, updated_at) with a unique index on lower(identifier), and
// ledger_entries(id, reference_id, account_id, counterparty_id, direction,
// amount, description, invoice_id, created_at).
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

func (s *LedgerService) CreateAccount(ctx context.Context, identifier, passwordHash string, openingBalance int64) (*models.Account, error) {
	if openingBalance < 0 {
		return nil, ErrInvalidAmount
	}
	identifier = strings.TrimSpace(identifier)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: begin create account: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE lower(identifier) = lower($1))`,
		identifier).Scan(&exists); err != nil {
		return nil, fmt.Errorf("ledger: check identifier: %w", err)
	}
	if exists {
		return nil, ErrDuplicateIdentifier
	}

	account := &models.Account{Identifier: identifier, Balance: openingBalance, Version: 1}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO accounts (identifier, password_hash, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		identifier, passwordHash, openingBalance).
		Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		// A concurrent registration can slip past the existence check; the
		// unique index on lower(identifier) is the authority.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateIdentifier
		}
		return nil, fmt.Errorf("ledger: insert account: %w", err)
	}

	// Opening balance is real money; record it as a system-origin credit so
	// the signed entry sum stays equal to the balance.
	if openingBalance > 0 {
		if err := s.insertEntry(ctx, tx, uuid.New().String(), account.ID, nil,
			models.EntryCredit, openingBalance, "opening balance", nil); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ledger: commit create account: %w", err)
	}
	return account, nil
}

func (s *LedgerService) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, identifier, balance, version, created_at, updated_at
		FROM accounts WHERE id = $1`, id))
}

func (s *LedgerService) AccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, identifier, balance, version, created_at, updated_at
		FROM accounts WHERE lower(identifier) = lower($1)`, identifier))
}

func (s *LedgerService) CredentialsByIdentifier(ctx context.Context, identifier string) (int64, string, error) {
	var id int64
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM accounts WHERE lower(identifier) = lower($1)`,
		identifier).Scan(&id, &hash)
	if err == sql.ErrNoRows {
		return 0, "", ErrAccountNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("ledger: fetch credentials: %w", err)
	}
	return id, hash, nil
}

func (s *LedgerService) scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Identifier, &a.Balance, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch account: %w", err)
	}
	return &a, nil
}

// Transfer moves amount cents from payer to receiver and writes the debit
// and credit entries, all in one database transaction. It returns both
// post-transfer balances. On any failure nothing is applied.
func (s *LedgerService) Transfer(ctx context.Context, payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: begin transfer: %w", err)
	}
	defer tx.Rollback()

	payerBalance, receiverBalance, err := s.transferTx(ctx, tx, payerID, receiverID, amount, description, invoiceID)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("ledger: commit transfer: %w", err)
	}
	return payerBalance, receiverBalance, nil
}

// transferTx runs the transfer inside the caller's transaction so invoice
// settlement can commit the status flip and the money movement together.
func (s *LedgerService) transferTx(ctx context.Context, tx *sql.Tx, payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if payerID == receiverID {
		return 0, 0, ErrSelfTransfer
	}

	// Lock accounts in ascending id order to prevent deadlocks.
	firstLock, secondLock := payerID, receiverID
	if payerID > receiverID {
		firstLock, secondLock = receiverID, payerID
	}

	first, err := s.lockAccount(ctx, tx, firstLock)
	if err != nil {
		return 0, 0, err
	}
	second, err := s.lockAccount(ctx, tx, secondLock)
	if err != nil {
		return 0, 0, err
	}

	payer, receiver := first, second
	if firstLock != payerID {
		payer, receiver = second, first
	}

	if payer.Balance < amount {
		return 0, 0, ErrInsufficientFunds
	}

	referenceID := uuid.New().String()
	if err := s.insertEntry(ctx, tx, referenceID, payer.ID, &receiver.ID,
		models.EntryDebit, amount, description, invoiceID); err != nil {
		return 0, 0, err
	}
	if err := s.insertEntry(ctx, tx, referenceID, receiver.ID, &payer.ID,
		models.EntryCredit, amount, description, invoiceID); err != nil {
		return 0, 0, err
	}

	if err := s.updateBalance(ctx, tx, payer.ID, payer.Balance-amount, payer.Version); err != nil {
		return 0, 0, err
	}
	if err := s.updateBalance(ctx, tx, receiver.ID, receiver.Balance+amount, receiver.Version); err != nil {
		return 0, 0, err
	}

	return payer.Balance - amount, receiver.Balance + amount, nil
}

// Deposit credits an account from outside the ledger (system funding).
func (s *LedgerService) Deposit(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	return s.systemEntry(ctx, accountID, amount, description, models.EntryCredit)
}

// Withdraw debits an account to outside the ledger. Fails with
// ErrInsufficientFunds rather than ever taking a balance negative.
func (s *LedgerService) Withdraw(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	return s.systemEntry(ctx, accountID, amount, description, models.EntryDebit)
}

func (s *LedgerService) systemEntry(ctx context.Context, accountID, amount int64, description, direction string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin %s: %w", strings.ToLower(direction), err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return 0, err
	}

	newBalance := account.Balance + amount
	if direction == models.EntryDebit {
		if account.Balance < amount {
			return 0, ErrInsufficientFunds
		}
		newBalance = account.Balance - amount
	}

	if err := s.insertEntry(ctx, tx, uuid.New().String(), account.ID, nil,
		direction, amount, description, nil); err != nil {
		return 0, err
	}
	if err := s.updateBalance(ctx, tx, account.ID, newBalance, account.Version); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit %s: %w", strings.ToLower(direction), err)
	}
	return newBalance, nil
}

// EntriesByAccount returns the account's entry log, newest first, with the
// counterparty identifier resolved for display and export.
func (s *LedgerService) EntriesByAccount(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.reference_id, e.account_id, e.counterparty_id,
		       COALESCE(a.identifier, 'system'), e.direction, e.amount,
		       e.description, e.invoice_id, e.created_at
		FROM ledger_entries e
		LEFT JOIN accounts a ON a.id = e.counterparty_id
		WHERE e.account_id = $1
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ReferenceID, &e.AccountID, &e.CounterpartyID,
			&e.Counterparty, &e.Direction, &e.Amount, &e.Description, &e.InvoiceID,
			&e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate entries: %w", err)
	}
	return entries, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (*models.Account, error) {
	var a models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, balance, version
		FROM accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&a.ID, &a.Balance, &a.Version)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: lock account %d: %w", accountID, err)
	}
	return &a, nil
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sql.Tx, referenceID string, accountID int64, counterpartyID *int64, direction string, amount int64, description string, invoiceID *int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (reference_id, account_id, counterparty_id, direction, amount, description, invoice_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		referenceID, accountID, counterpartyID, direction, amount, description, invoiceID, time.Now())
	if err != nil {
		return fmt.Errorf("ledger: insert %s entry: %w", strings.ToLower(direction), err)
	}
	return nil
}

func (s *LedgerService) updateBalance(ctx context.Context, tx *sql.Tx, accountID, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, time.Now(), accountID, version)
	if err != nil {
		return fmt.Errorf("ledger: update balance: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ledger: update balance: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ledger: optimistic lock failed for account %d", accountID)
	}
	return nil
}
