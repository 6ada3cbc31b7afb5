package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/lumenbank/backend/internal/services"
)

// PaylinkHandler mints signed payment links, previews them for a payer and
// settles them. The QR image is rendered from the finished token string;
// the handler never feeds anything else into it.
type PaylinkHandler struct {
	ledger    services.Ledger
	invoices  services.Invoices
	paylinks  *services.PaylinkService
	qr        *services.QRService
	validator *services.ValidationHelper
}

func NewPaylinkHandler(ledger services.Ledger, invoices services.Invoices, paylinks *services.PaylinkService, qr *services.QRService) *PaylinkHandler {
	return &PaylinkHandler{
		ledger:    ledger,
		invoices:  invoices,
		paylinks:  paylinks,
		qr:        qr,
		validator: services.NewValidationHelper(),
	}
}

type createPaylinkRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
}

type payRequest struct {
	Paylink string `json:"paylink" validate:"required"`
}

// Create mints a signed payment link naming the caller as recipient.
func (h *PaylinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	recipientID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createPaylinkRequest
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

	paylink, err := h.paylinks.Generate(recipientID, amount, req.Description)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	qrImage, err := h.qr.EncodePNG(paylink)
	if err != nil {
		services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"paylink":       paylink,
		"qr_png_base64": qrImage,
	})
}

// Preview verifies a token and describes the payment it requests without
// moving any money.
func (h *PaylinkHandler) Preview(w http.ResponseWriter, r *http.Request) {
	payerID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req payRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	claims, err := h.paylinks.Verify(r.Context(), req.Paylink)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	recipient, err := h.ledger.AccountByID(r.Context(), claims.RecipientID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	if recipient.ID == payerID {
		services.SendDomainError(w, services.ErrSelfTransfer)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"recipient_id":         recipient.ID,
		"recipient_identifier": recipient.Identifier,
		"amount":               claims.Amount,
		"description":          claims.Description,
		"invoice_id":           claims.InvoiceID,
	})
}

// Pay settles a verified token: invoice references go through the invoice
// state machine, signed links through a direct transfer guarded against
// replay.
func (h *PaylinkHandler) Pay(w http.ResponseWriter, r *http.Request) {
	payerID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req payRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	claims, err := h.paylinks.Verify(r.Context(), req.Paylink)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	if claims.InvoiceID != nil {
		invoice, err := h.invoices.Pay(r.Context(), *claims.InvoiceID, payerID)
		if err != nil {
			services.SendDomainError(w, err)
			return
		}
		log.Printf("[PAYLINK] Invoice %d paid by account %d", invoice.ID, payerID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(invoice)
		return
	}

	fresh, err := h.paylinks.MarkRedeemed(r.Context(), claims)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	if !fresh {
		services.SendDomainError(w, services.ErrTokenRedeemed)
		return
	}

	payerBalance, _, err := h.ledger.Transfer(r.Context(), payerID, claims.RecipientID, claims.Amount, claims.Description, nil)
	if err != nil {
		h.paylinks.ClearRedeemed(r.Context(), claims)
		services.SendDomainError(w, err)
		return
	}

	log.Printf("[PAYLINK] Paylink settled: %d -> %d amount=%d", payerID, claims.RecipientID, claims.Amount)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"balance": payerBalance,
		"amount":  claims.Amount,
	})
}
