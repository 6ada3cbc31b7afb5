package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/lumenbank/backend/internal/services"
)

// TransferHandler moves money between two accounts over the single ledger
// transfer primitive.
type TransferHandler struct {
	ledger    services.Ledger
	validator *services.ValidationHelper
}

func NewTransferHandler(ledger services.Ledger) *TransferHandler {
	return &TransferHandler{
		ledger:    ledger,
		validator: services.NewValidationHelper(),
	}
}

type transferRequest struct {
	ToIdentifier string `json:"to_identifier" validate:"required"`
	Amount       string `json:"amount" validate:"required"`
	Description  string `json:"description" validate:"max=200"`
}

// Create executes a direct transfer from the caller to another account.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	payerID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req transferRequest
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

	receiver, err := h.ledger.AccountByIdentifier(r.Context(), req.ToIdentifier)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	payerBalance, _, err := h.ledger.Transfer(r.Context(), payerID, receiver.ID, amount, req.Description, nil)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	log.Printf("[TRANSFER] %d -> %d amount=%d", payerID, receiver.ID, amount)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"balance": payerBalance,
		"amount":  amount,
	})
}
