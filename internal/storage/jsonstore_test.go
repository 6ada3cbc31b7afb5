package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/backend/internal/models"
	"github.com/lumenbank/backend/internal/services"
)

func newMemStore(t *testing.T) *JSONStore {
	store, err := NewJSONStore("")
	require.NoError(t, err)
	return store
}

func mustAccount(t *testing.T, store *JSONStore, identifier string, balance int64) *models.Account {
	account, err := store.CreateAccount(context.Background(), identifier, "hash", balance)
	require.NoError(t, err)
	return account
}

func TestJSONStore_CreateAccount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	alice := mustAccount(t, store, "alice", 100000)
	assert.Equal(t, int64(100000), alice.Balance)

	t.Run("opening balance recorded as system credit", func(t *testing.T) {
		entries, err := store.EntriesByAccount(ctx, alice.ID, 10)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.EntryCredit, entries[0].Direction)
		assert.Equal(t, int64(100000), entries[0].Amount)
		assert.Equal(t, "system", entries[0].Counterparty)
		assert.Nil(t, entries[0].CounterpartyID)
	})

	t.Run("duplicate identifier is case-insensitive", func(t *testing.T) {
		_, err := store.CreateAccount(ctx, "ALICE", "hash", 0)
		assert.ErrorIs(t, err, services.ErrDuplicateIdentifier)
	})

	t.Run("lookup by identifier ignores case", func(t *testing.T) {
		found, err := store.AccountByIdentifier(ctx, "Alice")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, found.ID)
	})
}

func TestJSONStore_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("moves money and writes paired entries", func(t *testing.T) {
		store := newMemStore(t)
		alice := mustAccount(t, store, "alice", 10000)
		bob := mustAccount(t, store, "bob", 0)

		payerBalance, receiverBalance, err := store.Transfer(ctx, alice.ID, bob.ID, 2500, "lunch", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(7500), payerBalance)
		assert.Equal(t, int64(2500), receiverBalance)

		aliceEntries, err := store.EntriesByAccount(ctx, alice.ID, 10)
		require.NoError(t, err)
		bobEntries, err := store.EntriesByAccount(ctx, bob.ID, 10)
		require.NoError(t, err)

		require.Len(t, bobEntries, 1)
		debit := aliceEntries[0] // newest first
		credit := bobEntries[0]
		assert.Equal(t, models.EntryDebit, debit.Direction)
		assert.Equal(t, models.EntryCredit, credit.Direction)
		assert.Equal(t, debit.Amount, credit.Amount)
		assert.Equal(t, debit.ReferenceID, credit.ReferenceID)
		assert.Equal(t, "bob", debit.Counterparty)
		assert.Equal(t, "alice", credit.Counterparty)
	})

	t.Run("failures leave the store untouched", func(t *testing.T) {
		store := newMemStore(t)
		alice := mustAccount(t, store, "alice", 100)
		bob := mustAccount(t, store, "bob", 0)

		cases := []struct {
			name     string
			payer    int64
			receiver int64
			amount   int64
			want     error
		}{
			{"insufficient funds", alice.ID, bob.ID, 101, services.ErrInsufficientFunds},
			{"self transfer", alice.ID, alice.ID, 50, services.ErrSelfTransfer},
			{"zero amount", alice.ID, bob.ID, 0, services.ErrInvalidAmount},
			{"negative amount", alice.ID, bob.ID, -5, services.ErrInvalidAmount},
			{"unknown payer", 999, bob.ID, 50, services.ErrAccountNotFound},
			{"unknown receiver", alice.ID, 999, 50, services.ErrAccountNotFound},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, _, err := store.Transfer(ctx, tc.payer, tc.receiver, tc.amount, "", nil)
				assert.ErrorIs(t, err, tc.want)
			})
		}

		account, err := store.AccountByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), account.Balance)

		entries, err := store.EntriesByAccount(ctx, bob.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("concurrent transfers never overdraw", func(t *testing.T) {
		store := newMemStore(t)
		payer := mustAccount(t, store, "payer", 150)
		one := mustAccount(t, store, "one", 0)
		two := mustAccount(t, store, "two", 0)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, receiver := range []int64{one.ID, two.ID} {
			wg.Add(1)
			go func(i int, receiver int64) {
				defer wg.Done()
				_, _, errs[i] = store.Transfer(ctx, payer.ID, receiver, 100, "", nil)
			}(i, receiver)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, services.ErrInsufficientFunds)
			}
		}
		assert.Equal(t, 1, succeeded)

		account, err := store.AccountByID(ctx, payer.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(50), account.Balance)
	})
}

func TestJSONStore_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	alice := mustAccount(t, store, "alice", 500)

	balance, err := store.Deposit(ctx, alice.ID, 300, "cash in")
	require.NoError(t, err)
	assert.Equal(t, int64(800), balance)

	balance, err = store.Withdraw(ctx, alice.ID, 800, "cash out")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	_, err = store.Withdraw(ctx, alice.ID, 1, "overdraw")
	assert.ErrorIs(t, err, services.ErrInsufficientFunds)
}

func TestJSONStore_InvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	carol := mustAccount(t, store, "carol", 0)
	dave := mustAccount(t, store, "dave", 10000)

	invoice, err := store.Create(ctx, carol.ID, 4000, "consulting")
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePending, invoice.Status)

	t.Run("creator cannot pay own invoice", func(t *testing.T) {
		_, err := store.Pay(ctx, invoice.ID, carol.ID)
		assert.ErrorIs(t, err, services.ErrSelfTransfer)
	})

	t.Run("payment settles invoice and moves money", func(t *testing.T) {
		paid, err := store.Pay(ctx, invoice.ID, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePaid, paid.Status)
		require.NotNil(t, paid.PaidBy)
		assert.Equal(t, dave.ID, *paid.PaidBy)
		assert.NotNil(t, paid.PaidAt)

		account, err := store.AccountByID(ctx, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4000), account.Balance)

		entries, err := store.EntriesByAccount(ctx, carol.ID, 10)
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		require.NotNil(t, entries[0].InvoiceID)
		assert.Equal(t, invoice.ID, *entries[0].InvoiceID)
	})

	t.Run("settled invoice cannot be paid again", func(t *testing.T) {
		_, err := store.Pay(ctx, invoice.ID, dave.ID)
		assert.ErrorIs(t, err, services.ErrInvoiceSettled)
	})

	t.Run("failed payment leaves invoice pending", func(t *testing.T) {
		broke := mustAccount(t, store, "broke", 10)
		pending, err := store.Create(ctx, carol.ID, 4000, "more consulting")
		require.NoError(t, err)

		_, err = store.Pay(ctx, pending.ID, broke.ID)
		assert.ErrorIs(t, err, services.ErrInsufficientFunds)

		got, err := store.Get(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePending, got.Status)
	})

	t.Run("cancel is creator-only and pending-only", func(t *testing.T) {
		pending, err := store.Create(ctx, carol.ID, 100, "")
		require.NoError(t, err)

		_, err = store.Cancel(ctx, pending.ID, dave.ID)
		assert.ErrorIs(t, err, services.ErrInvoiceNotFound)

		cancelled, err := store.Cancel(ctx, pending.ID, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoiceCancelled, cancelled.Status)

		_, err = store.Pay(ctx, pending.ID, dave.ID)
		assert.ErrorIs(t, err, services.ErrInvoiceSettled)
	})
}

func TestJSONStore_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bank.json")

	store, err := NewJSONStore(path)
	require.NoError(t, err)

	alice := mustAccount(t, store, "alice", 100000)
	bob := mustAccount(t, store, "bob", 0)
	_, _, err = store.Transfer(ctx, alice.ID, bob.ID, 2500, "lunch", nil)
	require.NoError(t, err)
	invoice, err := store.Create(ctx, bob.ID, 700, "snacks")
	require.NoError(t, err)

	reopened, err := NewJSONStore(path)
	require.NoError(t, err)

	account, err := reopened.AccountByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(97500), account.Balance)

	creds, hash, err := reopened.CredentialsByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, creds)
	assert.Equal(t, "hash", hash)

	entries, err := reopened.EntriesByAccount(ctx, alice.ID, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // opening balance + transfer debit

	got, err := reopened.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePending, got.Status)

	// New ids continue after the loaded ones.
	carol := mustAccount(t, reopened, "carol", 0)
	assert.Greater(t, carol.ID, bob.ID)
}

// A directory squatting on the temp-file path makes every snapshot write
// fail until it is removed.
func blockSnapshots(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.Mkdir(path+".tmp", 0o755))
}

func unblockSnapshots(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.Remove(path+".tmp"))
}

func TestJSONStore_SnapshotFaultRollback(t *testing.T) {
	ctx := context.Background()

	t.Run("failed registration leaves no entries behind", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bank.json")
		store, err := NewJSONStore(path)
		require.NoError(t, err)

		blockSnapshots(t, path)
		_, err = store.CreateAccount(ctx, "alice", "hash", 100000)
		require.Error(t, err)
		unblockSnapshots(t, path)

		// The freed id gets reused; it must not inherit the rolled-back
		// opening credit.
		fresh := mustAccount(t, store, "fresh", 0)
		assert.Equal(t, int64(0), fresh.Balance)
		entries, err := store.EntriesByAccount(ctx, fresh.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("failed transfer restores balances and versions", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bank.json")
		store, err := NewJSONStore(path)
		require.NoError(t, err)
		alice := mustAccount(t, store, "alice", 10000)
		bob := mustAccount(t, store, "bob", 0)
		before, err := store.AccountByID(ctx, alice.ID)
		require.NoError(t, err)

		blockSnapshots(t, path)
		_, _, err = store.Transfer(ctx, alice.ID, bob.ID, 2500, "lunch", nil)
		require.Error(t, err)
		unblockSnapshots(t, path)

		after, err := store.AccountByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Balance, after.Balance)
		assert.Equal(t, before.Version, after.Version)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

		entries, err := store.EntriesByAccount(ctx, bob.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)

		_, _, err = store.Transfer(ctx, alice.ID, bob.ID, 2500, "lunch", nil)
		require.NoError(t, err)
	})

	t.Run("failed withdrawal restores the account", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bank.json")
		store, err := NewJSONStore(path)
		require.NoError(t, err)
		alice := mustAccount(t, store, "alice", 500)
		before, err := store.AccountByID(ctx, alice.ID)
		require.NoError(t, err)

		blockSnapshots(t, path)
		_, err = store.Withdraw(ctx, alice.ID, 200, "cash out")
		require.Error(t, err)
		unblockSnapshots(t, path)

		after, err := store.AccountByID(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Balance, after.Balance)
		assert.Equal(t, before.Version, after.Version)

		entries, err := store.EntriesByAccount(ctx, alice.ID, 10)
		require.NoError(t, err)
		assert.Len(t, entries, 1) // opening credit only
	})

	t.Run("failed payment keeps invoice payable exactly once", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bank.json")
		store, err := NewJSONStore(path)
		require.NoError(t, err)
		carol := mustAccount(t, store, "carol", 0)
		dave := mustAccount(t, store, "dave", 10000)
		invoice, err := store.Create(ctx, carol.ID, 4000, "consulting")
		require.NoError(t, err)

		blockSnapshots(t, path)
		_, err = store.Pay(ctx, invoice.ID, dave.ID)
		require.Error(t, err)
		unblockSnapshots(t, path)

		// Nothing moved: invoice still pending, no charge, no entries.
		got, err := store.Get(ctx, invoice.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePending, got.Status)
		assert.Nil(t, got.PaidBy)
		assert.Nil(t, got.PaidAt)

		payer, err := store.AccountByID(ctx, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10000), payer.Balance)
		entries, err := store.EntriesByAccount(ctx, carol.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, entries)

		// The retry settles the invoice and charges the payer once.
		paid, err := store.Pay(ctx, invoice.ID, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, models.InvoicePaid, paid.Status)

		payer, err = store.AccountByID(ctx, dave.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(6000), payer.Balance)

		_, err = store.Pay(ctx, invoice.ID, dave.ID)
		assert.ErrorIs(t, err, services.ErrInvoiceSettled)
	})
}
