package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lumenbank/backend/internal/services"
)

// InvoiceHandler drives the invoice lifecycle: create, inspect, pay,
// cancel. Creation also hands back the compact payment reference and its
// QR rendering so the invoice can be shared immediately.
type InvoiceHandler struct {
	invoices  services.Invoices
	paylinks  *services.PaylinkService
	qr        *services.QRService
	validator *services.ValidationHelper
}

func NewInvoiceHandler(invoices services.Invoices, paylinks *services.PaylinkService, qr *services.QRService) *InvoiceHandler {
	return &InvoiceHandler{
		invoices:  invoices,
		paylinks:  paylinks,
		qr:        qr,
		validator: services.NewValidationHelper(),
	}
}

type createInvoiceRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req createInvoiceRequest
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

	invoice, err := h.invoices.Create(r.Context(), creatorID, amount, req.Description)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	ref := h.paylinks.InvoiceRef(invoice.ID)
	qrImage, err := h.qr.EncodePNG(ref)
	if err != nil {
		services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"invoice":       invoice,
		"reference":     ref,
		"qr_png_base64": qrImage,
	})
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	invoice, err := h.invoices.Get(r.Context(), invoiceID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	invoices, err := h.invoices.ListByCreator(r.Context(), creatorID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"invoices": invoices,
		"count":    len(invoices),
	})
}

func (h *InvoiceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	payerID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	invoice, err := h.invoices.Pay(r.Context(), invoiceID, payerID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}

func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := services.AccountIDFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "invoiceID"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid invoice id", http.StatusBadRequest, nil)
		return
	}

	invoice, err := h.invoices.Cancel(r.Context(), invoiceID, creatorID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(invoice)
}
