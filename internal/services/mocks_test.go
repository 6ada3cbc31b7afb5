package services

import (
	"context"
	"strings"
	"time"

	"github.com/lumenbank/backend/internal/models"
)

// fakeLedger is a minimal in-memory Ledger for exercising the glue services
// without a database.
type fakeLedger struct {
	accounts map[int64]*models.Account
	hashes   map[int64]string
	entries  []models.LedgerEntry
	nextID   int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		accounts: make(map[int64]*models.Account),
		hashes:   make(map[int64]string),
	}
}

func (f *fakeLedger) CreateAccount(ctx context.Context, identifier, passwordHash string, openingBalance int64) (*models.Account, error) {
	for _, a := range f.accounts {
		if strings.EqualFold(a.Identifier, identifier) {
			return nil, ErrDuplicateIdentifier
		}
	}
	f.nextID++
	account := &models.Account{
		ID:         f.nextID,
		Identifier: identifier,
		Balance:    openingBalance,
		Version:    1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	f.accounts[account.ID] = account
	f.hashes[account.ID] = passwordHash
	return account, nil
}

func (f *fakeLedger) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	a, ok := f.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeLedger) AccountByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	for _, a := range f.accounts {
		if strings.EqualFold(a.Identifier, identifier) {
			return a, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (f *fakeLedger) CredentialsByIdentifier(ctx context.Context, identifier string) (int64, string, error) {
	account, err := f.AccountByIdentifier(ctx, identifier)
	if err != nil {
		return 0, "", err
	}
	return account.ID, f.hashes[account.ID], nil
}

func (f *fakeLedger) Transfer(ctx context.Context, payerID, receiverID, amount int64, description string, invoiceID *int64) (int64, int64, error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if payerID == receiverID {
		return 0, 0, ErrSelfTransfer
	}
	payer, ok := f.accounts[payerID]
	if !ok {
		return 0, 0, ErrAccountNotFound
	}
	receiver, ok := f.accounts[receiverID]
	if !ok {
		return 0, 0, ErrAccountNotFound
	}
	if payer.Balance < amount {
		return 0, 0, ErrInsufficientFunds
	}
	payer.Balance -= amount
	receiver.Balance += amount
	return payer.Balance, receiver.Balance, nil
}

func (f *fakeLedger) Deposit(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	a, ok := f.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.Balance += amount
	return a.Balance, nil
}

func (f *fakeLedger) Withdraw(ctx context.Context, accountID, amount int64, description string) (int64, error) {
	a, ok := f.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if a.Balance < amount {
		return 0, ErrInsufficientFunds
	}
	a.Balance -= amount
	return a.Balance, nil
}

func (f *fakeLedger) EntriesByAccount(ctx context.Context, accountID int64, limit int) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if f.entries[i].AccountID == accountID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}
