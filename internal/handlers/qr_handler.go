package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lumenbank/backend/internal/services"
)

// QRHandler renders an opaque payload, typically a paylink or invoice
// reference, to a QR image. It never inspects the content.
type QRHandler struct {
	qr        *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(qr *services.QRService) *QRHandler {
	return &QRHandler{
		qr:        qr,
		validator: services.NewValidationHelper(),
	}
}

type generateQRRequest struct {
	Payload string `json:"payload" validate:"required,max=1024"`
}

func (h *QRHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateQRRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	qrImage, err := h.qr.EncodePNG(req.Payload)
	if err != nil {
		services.SendErrorResponse(w, "Failed to render QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"qr_png_base64": qrImage})
}
