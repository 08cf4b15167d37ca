package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestTransactionID(t *testing.T) {
	body := `{"transactionId": "tx-42", "amount": "10"}`
	r := httptest.NewRequest(http.MethodPost, "/v1/transfers/incoming", strings.NewReader(body))

	assert.Equal(t, "tx-42", requestTransactionID(r))

	// The body is restored for the downstream handler.
	restored, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, body, string(restored))
}

func TestRequestTransactionIDMissingOrMalformed(t *testing.T) {
	cases := map[string]string{
		"no id field":  `{"amount": "10"}`,
		"not json":     `transactionId=tx-1`,
		"empty body":   ``,
		"empty string": `{"transactionId": ""}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			assert.Equal(t, "", requestTransactionID(r))
		})
	}
}

// fakeRevocations is an in-memory RevocationStore for middleware tests.
type fakeRevocations struct {
	mu      sync.Mutex
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) Revoke(_ context.Context, token string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[token] = true
	return nil
}

func (f *fakeRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[token], f.err
}

func TestRejectRevoked(t *testing.T) {
	store := &fakeRevocations{}
	require.NoError(t, store.Revoke(context.Background(), "bad-token", time.Hour))

	var reached bool
	handler := RejectRevoked(store, discardLog())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("revoked token is rejected", func(t *testing.T) {
		reached = false
		r := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
		r.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, reached)
	})

	t.Run("live token passes", func(t *testing.T) {
		reached = false
		r := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, reached)
	})

	t.Run("no token passes through", func(t *testing.T) {
		reached = false
		r := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, reached)
	})

	t.Run("lookup failure is a 500", func(t *testing.T) {
		store.err = errors.New("redis down")
		defer func() { store.err = nil }()

		reached = false
		r := httptest.NewRequest(http.MethodPost, "/v1/transfers", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.False(t, reached)
	})
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	assert.Equal(t, "", bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(r))
}

func TestResponseWriterWrapperCaptures(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriterWrapper{ResponseWriter: rec, statusCode: http.StatusOK}

	w.WriteHeader(http.StatusCreated)
	_, err := w.Write([]byte(`{"ok":true}`))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, w.statusCode)
	assert.Equal(t, `{"ok":true}`, w.body.String())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, bytes.Equal(rec.Body.Bytes(), []byte(`{"ok":true}`)))
}
