package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/backend/internal/models"
)

func TestStatementService_WriteCSV(t *testing.T) {
	ledger := newFakeLedger()
	_, err := ledger.CreateAccount(context.Background(), "alice", "hash", 0)
	require.NoError(t, err)

	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	ledger.entries = []models.LedgerEntry{
		{ID: 1, AccountID: 1, Direction: models.EntryCredit, Amount: 100000,
			Description: "opening balance", Counterparty: "system", CreatedAt: day},
		{ID: 2, AccountID: 1, Direction: models.EntryDebit, Amount: 2500,
			Description: "lunch, with drinks", Counterparty: "bob", CreatedAt: day.Add(time.Hour)},
	}

	var buf bytes.Buffer
	service := NewStatementService(ledger)
	require.NoError(t, service.WriteCSV(context.Background(), &buf, 1, 100))

	want := "ID,Date,Type,Amount(minor units),Description,Counterparty\n" +
		"2,2026-03-14T10:30:00Z,DEBIT,2500,\"lunch, with drinks\",bob\n" +
		"1,2026-03-14T09:30:00Z,CREDIT,100000,opening balance,system\n"
	assert.Equal(t, want, buf.String())
}

func TestStatementService_EmptyAccount(t *testing.T) {
	ledger := newFakeLedger()
	_, err := ledger.CreateAccount(context.Background(), "alice", "hash", 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	service := NewStatementService(ledger)
	require.NoError(t, service.WriteCSV(context.Background(), &buf, 1, 100))

	assert.Equal(t, "ID,Date,Type,Amount(minor units),Description,Counterparty\n", buf.String())
}
