package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lumenbank/backend/internal/models"
	"github.com/lumenbank/backend/internal/services"
)

// JSONStore is the single-document persistence adapter: the whole bank
// lives in memory behind one mutex and is optionally snapshotted to a JSON
// file. It implements the same Ledger and Invoices contracts as the
// Postgres services, which makes it both a deployable small-scale backend
// and the fake the core is tested against.
//
// One mutex serializes every mutation, so a transfer's two balance updates
// and two entries are indivisible by construction and concurrent transfers
// on a shared account can never apply a stale read.
type JSONStore struct {
	mu   chan struct{} // buffered-1 channel used as a context-aware mutex
	path string        // snapshot file, "" disables persistence

	accounts    map[int64]*accountRecord
	entries     []models.LedgerEntry
	invoices    map[int64]*models.Invoice
	nextAccount int64
	nextEntry   int64
	nextInvoice int64
}

type accountRecord struct {
	Account      models.Account `json:"account"`
	PasswordHash string         `json:"password_hash"`
}

// Snapshot is the on-disk document layout.
type Snapshot struct {
	SavedAt     time.Time                 `json:"saved_at"`
	Accounts    map[int64]*accountRecord  `json:"accounts"`
	Entries     []models.LedgerEntry      `json:"entries"`
	Invoices    map[int64]*models.Invoice `json:"invoices"`
	NextAccount int64                     `json:"next_account"`
	NextEntry   int64                     `json:"next_entry"`
	NextInvoice int64                     `json:"next_invoice"`
}

// NewJSONStore opens (or initializes) a JSON-backed store. An empty path
// keeps everything in memory only.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{
		mu:       make(chan struct{}, 1),
		path:     path,
		accounts: make(map[int64]*accountRecord),
		invoices: make(map[int64]*models.Invoice),
	}
	if path != "" {
		if err := s.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("jsonstore: load %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *JSONStore) lock(ctx context.Context) error {
	select {
	case s.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *JSONStore) unlock() { <-s.mu }

func (s *JSONStore) CreateAccount(ctx context.Context, identifier, passwordHash string, openingBalance int64) (*models.Account, error) {
	if openingBalance < 0 {
		return nil, services.ErrInvalidAmount
	}
	identifier = strings.TrimSpace(identifier)

	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	for _, rec := range s.accounts {
		if strings.EqualFold(rec.Account.Identifier, identifier) {
			return nil, services.ErrDuplicateIdentifier
		}
	}

	now := time.Now()
	s.nextAccount++
	account := models.Account{
		ID:         s.nextAccount,
		Identifier: identifier,
		Balance:    openingBalance,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.accounts[account.ID] = &accountRecord{Account: account, PasswordHash: passwordHash}

	if openingBalance > 0 {
		s.appendEntry(account.ID, nil, models.EntryCredit, openingBalance, "opening balance", nil, uuid.New().String())
	}

	if err := s.persist(); err != nil {
		if openingBalance > 0 {
			s.entries = s.entries[:len(s.entries)-1]
			s.nextEntry--
		}
		delete(s.accounts, account.ID)
		s.nextAccount--
		return nil, err
	}
	return &account, nil
}

func (s *JSONStore) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	rec, ok := s.accounts[id]
	if !ok {
		return nil, services.ErrAccountNotFound
	}
	cp := rec.Account
	return &cp, nil
}

func (s *JSONStore) AccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	for _, rec := range s.accounts {
		if strings.EqualFold(rec.Account.Identifier, identifier) {
			cp := rec.Account
			return &cp, nil
		}
	}
	return nil, services.ErrAccountNotFound
}

func (s *JSONStore) CredentialsByIdentifier(ctx context.Context, identifier string) (int64, string, error) {
	if err := s.lock(ctx); err != nil {
		return 0, "", err
	}
	defer s.unlock()

	for _, rec := range s.accounts {
		if strings.EqualFold(rec.Account.Identifier, identifier) {
			return rec.Account.ID, rec.PasswordHash, nil
		}
	}
	return 0, "", services.ErrAccountNotFound
}

// Transfer applies the debit, the credit and both entries inside one
// critical section; any precondition or persistence failure leaves the
// store untouched.
func (s *JSONStore) Transfer(ctx context.Context, payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, error) {
	if err := s.lock(ctx); err != nil {
		return 0, 0, err
	}
	defer s.unlock()

	payerBalance, receiverBalance, undo, err := s.applyTransfer(payerID, receiverID, amount, description, invoiceID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.persist(); err != nil {
		undo()
		return 0, 0, err
	}
	return payerBalance, receiverBalance, nil
}

// applyTransfer mutates balances and the entry log without persisting.
// Caller must hold the lock; the returned undo reverts every mutation,
// including version and timestamp bumps.
func (s *JSONStore) applyTransfer(payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, func(), error) {
	if amount <= 0 {
		return 0, 0, nil, services.ErrInvalidAmount
	}
	if payerID == receiverID {
		return 0, 0, nil, services.ErrSelfTransfer
	}

	payer, ok := s.accounts[payerID]
	if !ok {
		return 0, 0, nil, services.ErrAccountNotFound
	}
	receiver, ok := s.accounts[receiverID]
	if !ok {
		return 0, 0, nil, services.ErrAccountNotFound
	}
	if payer.Account.Balance < amount {
		return 0, 0, nil, services.ErrInsufficientFunds
	}

	payerPrev := payer.Account
	receiverPrev := receiver.Account

	referenceID := uuid.New().String()
	s.appendEntry(payerID, &receiverID, models.EntryDebit, amount, description, invoiceID, referenceID)
	s.appendEntry(receiverID, &payerID, models.EntryCredit, amount, description, invoiceID, referenceID)

	now := time.Now()
	payer.Account.Balance -= amount
	payer.Account.Version++
	payer.Account.UpdatedAt = now
	receiver.Account.Balance += amount
	receiver.Account.Version++
	receiver.Account.UpdatedAt = now

	undo := func() {
		payer.Account = payerPrev
		receiver.Account = receiverPrev
		s.entries = s.entries[:len(s.entries)-2]
		s.nextEntry -= 2
	}
	return payer.Account.Balance, receiver.Account.Balance, undo, nil
}

func (s *JSONStore) Deposit(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	return s.systemEntry(ctx, accountID, amount, description, models.EntryCredit)
}

func (s *JSONStore) Withdraw(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	return s.systemEntry(ctx, accountID, amount, description, models.EntryDebit)
}

func (s *JSONStore) systemEntry(ctx context.Context, accountID, amount int64, description, direction string) (int64, error) {
	if amount <= 0 {
		return 0, services.ErrInvalidAmount
	}

	if err := s.lock(ctx); err != nil {
		return 0, err
	}
	defer s.unlock()

	rec, ok := s.accounts[accountID]
	if !ok {
		return 0, services.ErrAccountNotFound
	}
	if direction == models.EntryDebit && rec.Account.Balance < amount {
		return 0, services.ErrInsufficientFunds
	}

	prev := rec.Account
	s.appendEntry(accountID, nil, direction, amount, description, nil, uuid.New().String())
	if direction == models.EntryDebit {
		rec.Account.Balance -= amount
	} else {
		rec.Account.Balance += amount
	}
	rec.Account.Version++
	rec.Account.UpdatedAt = time.Now()

	if err := s.persist(); err != nil {
		rec.Account = prev
		s.entries = s.entries[:len(s.entries)-1]
		s.nextEntry--
		return 0, err
	}
	return rec.Account.Balance, nil
}

func (s *JSONStore) EntriesByAccount(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	var out []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		e.Counterparty = "system"
		if e.CounterpartyID != nil {
			if rec, ok := s.accounts[*e.CounterpartyID]; ok {
				e.Counterparty = rec.Account.Identifier
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *JSONStore) Create(ctx context.Context, creatorID, amount int64, description string) (*models.Invoice, error) {
	if amount <= 0 {
		return nil, services.ErrInvalidAmount
	}

	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	if _, ok := s.accounts[creatorID]; !ok {
		return nil, services.ErrAccountNotFound
	}

	s.nextInvoice++
	inv := &models.Invoice{
		ID:          s.nextInvoice,
		CreatorID:   creatorID,
		Amount:      amount,
		Description: description,
		Status:      models.InvoicePending,
		CreatedAt:   time.Now(),
	}
	s.invoices[inv.ID] = inv

	if err := s.persist(); err != nil {
		delete(s.invoices, inv.ID)
		s.nextInvoice--
		return nil, err
	}
	cp := *inv
	return &cp, nil
}

func (s *JSONStore) Get(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, services.ErrInvoiceNotFound
	}
	cp := *inv
	return &cp, nil
}

func (s *JSONStore) ListByCreator(ctx context.Context, creatorID int64) ([]models.Invoice, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	var out []models.Invoice
	for _, inv := range s.invoices {
		if inv.CreatorID == creatorID {
			out = append(out, *inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Pay settles a pending invoice. The status flip and the transfer happen
// in the same critical section; if the transfer fails the invoice stays
// pending.
func (s *JSONStore) Pay(ctx context.Context, invoiceID, payerID int64) (*models.Invoice, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok {
		return nil, services.ErrInvoiceNotFound
	}
	if inv.Status != models.InvoicePending {
		return nil, services.ErrInvoiceSettled
	}
	if payerID == inv.CreatorID {
		return nil, services.ErrSelfTransfer
	}

	_, _, undo, err := s.applyTransfer(payerID, inv.CreatorID, inv.Amount, inv.Description, &inv.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	inv.Status = models.InvoicePaid
	inv.PaidBy = &payerID
	inv.PaidAt = &now

	// Single snapshot write covers the transfer and the status flip.
	if err := s.persist(); err != nil {
		undo()
		inv.Status = models.InvoicePending
		inv.PaidBy = nil
		inv.PaidAt = nil
		return nil, err
	}
	cp := *inv
	return &cp, nil
}

func (s *JSONStore) Cancel(ctx context.Context, invoiceID, creatorID int64) (*models.Invoice, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	defer s.unlock()

	inv, ok := s.invoices[invoiceID]
	if !ok || inv.CreatorID != creatorID {
		return nil, services.ErrInvoiceNotFound
	}
	if inv.Status != models.InvoicePending {
		return nil, services.ErrInvoiceSettled
	}

	inv.Status = models.InvoiceCancelled
	if err := s.persist(); err != nil {
		inv.Status = models.InvoicePending
		return nil, err
	}
	cp := *inv
	return &cp, nil
}

func (s *JSONStore) appendEntry(accountID int64, counterpartyID *int64, direction string, amount int64, description string, invoiceID *int64, referenceID string) {
	s.nextEntry++
	var cp *int64
	if counterpartyID != nil {
		v := *counterpartyID
		cp = &v
	}
	var invID *int64
	if invoiceID != nil {
		v := *invoiceID
		invID = &v
	}
	s.entries = append(s.entries, models.LedgerEntry{
		ID:             s.nextEntry,
		ReferenceID:    referenceID,
		AccountID:      accountID,
		CounterpartyID: cp,
		Direction:      direction,
		Amount:         amount,
		Description:    description,
		InvoiceID:      invID,
		CreatedAt:      time.Now(),
	})
}

// persist writes the snapshot atomically: a temp file is written first and
// then renamed over the real one, so a crash mid-write cannot corrupt the
// document. Caller must hold the lock.
func (s *JSONStore) persist() error {
	if s.path == "" {
		return nil
	}

	snap := Snapshot{
		SavedAt:     time.Now(),
		Accounts:    s.accounts,
		Entries:     s.entries,
		Invoices:    s.invoices,
		NextAccount: s.nextAccount,
		NextEntry:   s.nextEntry,
		NextInvoice: s.nextInvoice,
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("jsonstore: create snapshot: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		return fmt.Errorf("jsonstore: encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonstore: close snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("jsonstore: replace snapshot: %w", err)
	}
	return nil
}

func (s *JSONStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	if snap.Accounts != nil {
		s.accounts = snap.Accounts
	}
	if snap.Invoices != nil {
		s.invoices = snap.Invoices
	}
	s.entries = snap.Entries
	s.nextAccount = snap.NextAccount
	s.nextEntry = snap.NextEntry
	s.nextInvoice = snap.NextInvoice
	return nil
}
