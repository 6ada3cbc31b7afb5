package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// StatementService exports an account's ledger history as CSV, newest entry
// first. The column layout is fixed for downstream consumers.
type StatementService struct {
	ledger Ledger
}

func NewStatementService(ledger Ledger) *StatementService {
	return &StatementService{ledger: ledger}
}

var statementHeader = []string{"ID", "Date", "Type", "Amount(minor units)", "Description", "Counterparty"}

// WriteCSV streams the statement for accountID to w.
func (s *StatementService) WriteCSV(ctx context.Context, w io.Writer, accountID int64, limit int) error {
	entries, err := s.ledger.EntriesByAccount(ctx, accountID, limit)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(statementHeader); err != nil {
		return fmt.Errorf("statement: write header: %w", err)
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Direction,
			strconv.FormatInt(e.Amount, 10),
			e.Description,
			e.Counterparty,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("statement: write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("statement: flush: %w", err)
	}
	return nil
}
