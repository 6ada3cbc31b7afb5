package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lumenbank/backend/internal/models"
)

// InvoiceRefScheme is the custom URI scheme for compact invoice references,
// e.g. lumenpay://invoice?i=42. The bare form "PAY:42" is accepted as well.
const InvoiceRefScheme = "lumenpay"

const invoiceRefPrefix = "PAY:"

// PaylinkService mints and verifies stateless payment tokens. A signed
// token is a URL of the form
//
//	https://<host>/paylink?rid=..&amt=..&desc=..&ts=..&sig=..
//
// where sig is the hex HMAC-SHA256 of "{rid}|{amt}|{desc}|{ts}" under the
// shared secret. The secret never leaves the server; tokens carry no
// server-side state, so the only revocation mechanism is the configurable
// max age plus the optional Redis one-time redemption guard.
type PaylinkService struct {
	secret   []byte
	baseURL  string
	maxAge   time.Duration // 0 disables expiry
	redis    *redis.Client
	invoices Invoices
}

func NewPaylinkService(secret []byte, baseURL string, maxAge time.Duration, redisClient *redis.Client, invoices Invoices) *PaylinkService {
	return &PaylinkService{
		secret:   secret,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxAge:   maxAge,
		redis:    redisClient,
		invoices: invoices,
	}
}

// Generate mints a signed payment link for the recipient.
func (s *PaylinkService) Generate(recipientID, amount int64, description string) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	ts := time.Now().Unix()
	sig := s.signature(recipientID, amount, description, ts)

	params := url.Values{}
	params.Set("rid", strconv.FormatInt(recipientID, 10))
	params.Set("amt", strconv.FormatInt(amount, 10))
	params.Set("desc", description)
	params.Set("ts", strconv.FormatInt(ts, 10))
	params.Set("sig", sig)

	return s.baseURL + "/paylink?" + params.Encode(), nil
}

// InvoiceRef returns the compact invoice-reference token for an invoice.
func (s *PaylinkService) InvoiceRef(invoiceID int64) string {
	return fmt.Sprintf("%s://invoice?i=%d", InvoiceRefScheme, invoiceID)
}

// Verify checks a token and returns its claims. It dispatches on the token
// scheme: signed paylinks are verified against the shared secret, invoice
// references are resolved through the invoice store. Verification failures
// never reveal which field mismatched.
func (s *PaylinkService) Verify(ctx context.Context, token string) (*models.PaylinkClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	if ref, ok := strings.CutPrefix(token, invoiceRefPrefix); ok {
		return s.resolveInvoiceRef(ctx, ref)
	}

	u, err := url.Parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	switch u.Scheme {
	case InvoiceRefScheme:
		if u.Host != "invoice" {
			return nil, ErrInvalidToken
		}
		return s.resolveInvoiceRef(ctx, u.Query().Get("i"))
	case "http", "https":
		if u.Path != "/paylink" {
			return nil, ErrInvalidToken
		}
		return s.verifySigned(u.Query())
	default:
		return nil, ErrUnknownScheme
	}
}

func (s *PaylinkService) verifySigned(params url.Values) (*models.PaylinkClaims, error) {
	ridStr := params.Get("rid")
	amtStr := params.Get("amt")
	desc := params.Get("desc")
	tsStr := params.Get("ts")
	sig := params.Get("sig")
	if ridStr == "" || amtStr == "" || tsStr == "" || sig == "" {
		return nil, ErrInvalidToken
	}

	rid, err := strconv.ParseInt(ridStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	amt, err := strconv.ParseInt(amtStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}

	expected := s.signature(rid, amt, desc, ts)
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return nil, ErrBadSignature
	}

	issuedAt := time.Unix(ts, 0)
	if s.maxAge > 0 && time.Since(issuedAt) > s.maxAge {
		return nil, ErrTokenExpired
	}

	return &models.PaylinkClaims{
		RecipientID: rid,
		Amount:      amt,
		Description: desc,
		IssuedAt:    issuedAt,
		Signature:   sig,
	}, nil
}

func (s *PaylinkService) resolveInvoiceRef(ctx context.Context, ref string) (*models.PaylinkClaims, error) {
	invoiceID, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return &models.PaylinkClaims{
		RecipientID: inv.CreatorID,
		Amount:      inv.Amount,
		Description: inv.Description,
		IssuedAt:    inv.CreatedAt,
		InvoiceID:   &inv.ID,
	}, nil
}

// MarkRedeemed flags a signed token as spent. Returns false when the token
// was already redeemed within its validity window. Without Redis the guard
// is skipped and every structurally valid token remains payable.
func (s *PaylinkService) MarkRedeemed(ctx context.Context, claims *models.PaylinkClaims) (bool, error) {
	if s.redis == nil || claims.Signature == "" {
		return true, nil
	}
	ttl := s.maxAge
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := "paylink:redeemed:" + claims.Signature
	ok, err := s.redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		// A cache fault must not block payment.
		log.Printf("[PAYLINK] Redemption guard unavailable: %v", err)
		return true, nil
	}
	return ok, nil
}

// ClearRedeemed releases the redemption mark, used when the transfer a
// token was redeemed for did not go through after all.
func (s *PaylinkService) ClearRedeemed(ctx context.Context, claims *models.PaylinkClaims) {
	if s.redis == nil || claims.Signature == "" {
		return
	}
	if err := s.redis.Del(ctx, "paylink:redeemed:"+claims.Signature).Err(); err != nil {
		log.Printf("[PAYLINK] Failed to release redemption mark: %v", err)
	}
}

func (s *PaylinkService) signature(recipientID, amount int64, description string, ts int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d|%d|%s|%d", recipientID, amount, description, ts)
	return hex.EncodeToString(mac.Sum(nil))
}
