package services

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

// QRService renders payment strings (paylinks or invoice references) as QR
// images. The payload is opaque here: whatever the caller hands over is
// encoded verbatim and never inspected.
type QRService struct {
	size int
}

func NewQRService() *QRService {
	return &QRService{size: 256}
}

// EncodePNG returns the payload as a base64 PNG suitable for inlining into
// a data: URI.
func (s *QRService) EncodePNG(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, s.size)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
