package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/lumenbank/backend/internal/models"
	"github.com/lumenbank/backend/internal/services"
)

// AccountHandler exposes balance, funding and history endpoints for the
// authenticated account.
type AccountHandler struct {
	ledger    services.Ledger
	statement *services.StatementService
	validator *services.ValidationHelper
}

func NewAccountHandler(ledger services.Ledger, statement *services.StatementService) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		statement: statement,
		validator: services.NewValidationHelper(),
	}
}

type fundingRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
}

// GetBalance returns the caller's current balance.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := h.ledger.AccountByID(r.Context(), accountID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"account_id": account.ID,
		"identifier": account.Identifier,
		"balance":    account.Balance,
	})
}

// Deposit credits the caller's account from outside the ledger.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.fund(w, r, h.ledger.Deposit)
}

// Withdraw debits the caller's account to outside the ledger.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.fund(w, r, h.ledger.Withdraw)
}

func (h *AccountHandler) fund(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, accountID, amount int64, description string) (int64, error)) {
	accountID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req fundingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := services.ParseAmount(req.Amount)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	balance, err := op(r.Context(), accountID, amount, req.Description)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"balance": balance})
}

// Transactions lists the caller's ledger entries, newest first, optionally
// filtered to incoming (credits) or outgoing (debits) only.
func (h *AccountHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	entries, err := h.ledger.EntriesByAccount(r.Context(), accountID, limit)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	switch r.URL.Query().Get("type") {
	case "in":
		entries = filterEntries(entries, models.EntryCredit)
	case "out":
		entries = filterEntries(entries, models.EntryDebit)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": entries,
		"count":        len(entries),
	})
}

// Statement streams the caller's ledger history as CSV.
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	accountID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="statement.csv"`)
	if err := h.statement.WriteCSV(r.Context(), w, accountID, 1000); err != nil {
		log.Printf("[ACCOUNT] Statement export failed for account %d: %v", accountID, err)
	}
}

func filterEntries(entries []models.LedgerEntry, direction string) []models.LedgerEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Direction == direction {
			out = append(out, e)
		}
	}
	return out
}
