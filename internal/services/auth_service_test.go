package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthServiceTest() *AuthService {
	viper.Set("jwt.secret_key", "test-jwt-secret")
	viper.Set("jwt.expiry_hours", 1)
	return NewAuthService(newFakeLedger(), nil, 100000)
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestAuthService_Register(t *testing.T) {
	t.Run("creates account with opening balance and returns token", func(t *testing.T) {
		service := newAuthServiceTest()

		w := postJSON(service.Register, `{"identifier":"alice","password":"hunter22"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.NotZero(t, resp.AccountID)

		account, err := service.ledger.AccountByID(context.Background(), resp.AccountID)
		require.NoError(t, err)
		assert.Equal(t, int64(100000), account.Balance)
	})

	t.Run("duplicate identifier", func(t *testing.T) {
		service := newAuthServiceTest()

		w := postJSON(service.Register, `{"identifier":"alice","password":"hunter22"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		w = postJSON(service.Register, `{"identifier":"ALICE","password":"hunter22"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("rejects short password", func(t *testing.T) {
		service := newAuthServiceTest()

		w := postJSON(service.Register, `{"identifier":"alice","password":"123"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		service := newAuthServiceTest()

		w := postJSON(service.Register, `{"identifier":"alice","password":"hunter22","admin":true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	service := newAuthServiceTest()
	w := postJSON(service.Register, `{"identifier":"alice","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("valid credentials", func(t *testing.T) {
		w := postJSON(service.Login, `{"identifier":"alice","password":"hunter22"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp AuthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := postJSON(service.Login, `{"identifier":"alice","password":"wrong-password"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown identifier", func(t *testing.T) {
		w := postJSON(service.Login, `{"identifier":"nobody","password":"hunter22"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthService_Me(t *testing.T) {
	service := newAuthServiceTest()
	w := postJSON(service.Register, `{"identifier":"alice","password":"hunter22"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("returns the caller's account", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(context.WithValue(req.Context(), "userID", "1"))
		w := httptest.NewRecorder()
		service.Me(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "alice", body["identifier"])
	})

	t.Run("missing context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		service.Me(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAccountIDFromContext(t *testing.T) {
	id, ok := AccountIDFromContext(context.WithValue(context.Background(), "userID", "42"))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = AccountIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = AccountIDFromContext(context.WithValue(context.Background(), "userID", "not-a-number"))
	assert.False(t, ok)
}
