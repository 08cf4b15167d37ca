package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagebank/settlement/models"
)

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPayload() models.TransferPayload {
	return models.TransferPayload{
		TransactionID: "tx-1",
		FromBank:      "VTB",
		FromAccount:   "VTB-a",
		ToBank:        "NBX",
		ToAccount:     "NBX-b",
		Amount:        decimal.NewFromInt(10),
		Currency:      models.CurrencyUSD,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Signature:     "c2ln",
	}
}

func TestDispatchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/transfers", r.URL.Path)

		var p models.TransferPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "tx-1", p.TransactionID)
		assert.Equal(t, "c2ln", p.Signature)

		json.NewEncoder(w).Encode(models.RelayAck{TransactionID: p.TransactionID, Status: models.StatusCompleted})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLog())
	ack, err := c.Dispatch(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", ack.TransactionID)
	assert.Equal(t, models.StatusCompleted, ack.Status)
}

func TestDispatchRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": {"code": "INSUFFICIENT_FUNDS", "message": "destination bank refused"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLog())
	_, err := c.Dispatch(context.Background(), testPayload())

	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "INSUFFICIENT_FUNDS", rej.Code)
	assert.Equal(t, "destination bank refused", rej.Message)
}

func TestDispatchMalformedErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream blew up"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, discardLog())
	_, err := c.Dispatch(context.Background(), testPayload())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDispatchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := NewClient(srv.URL, time.Second, discardLog())
	_, err := c.Dispatch(context.Background(), testPayload())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestDispatchTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c := NewClient(srv.URL, 50*time.Millisecond, discardLog())
	_, err := c.Dispatch(context.Background(), testPayload())
	require.ErrorIs(t, err, ErrUnavailable)
}
