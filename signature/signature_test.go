package signature

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagebank/settlement/models"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func testPayload() models.TransferPayload {
	return models.TransferPayload{
		TransactionID: "9bd7f1f2-0000-4000-8000-000000000001",
		FromBank:      "VTB",
		FromAccount:   "VTB-a",
		ToBank:        "NBX",
		ToAccount:     "NBX-b",
		Amount:        decimal.RequireFromString("100.50"),
		Currency:      models.CurrencyUSD,
		Description:   "invoice 42",
		Timestamp:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := testKey(t)
	signer := NewSigner("VTB", key)
	verifier := NewVerifier("VTB", &key.PublicKey, StaticDirectory{}, discardLog())

	p := testPayload()
	sig, err := signer.Sign(p)
	require.NoError(t, err)

	assert.True(t, verifier.Verify(context.Background(), p, sig, "VTB"))
}

func TestVerifyRejectsTamperedFields(t *testing.T) {
	key := testKey(t)
	signer := NewSigner("VTB", key)
	verifier := NewVerifier("VTB", &key.PublicKey, StaticDirectory{}, discardLog())

	sig, err := signer.Sign(testPayload())
	require.NoError(t, err)

	mutations := map[string]func(*models.TransferPayload){
		"transaction id": func(p *models.TransferPayload) { p.TransactionID = "other" },
		"from bank":      func(p *models.TransferPayload) { p.FromBank = "NBX" },
		"from account":   func(p *models.TransferPayload) { p.FromAccount = "VTB-z" },
		"to bank":        func(p *models.TransferPayload) { p.ToBank = "VTB" },
		"to account":     func(p *models.TransferPayload) { p.ToAccount = "NBX-z" },
		"amount":         func(p *models.TransferPayload) { p.Amount = decimal.RequireFromString("999.99") },
		"currency":       func(p *models.TransferPayload) { p.Currency = models.CurrencyEUR },
		"description":    func(p *models.TransferPayload) { p.Description = "changed" },
		"timestamp":      func(p *models.TransferPayload) { p.Timestamp = time.Now().UTC().Format(time.RFC3339) },
	}
	for name, mutate := range mutations {
		p := testPayload()
		mutate(&p)
		assert.False(t, verifier.Verify(context.Background(), p, sig, "VTB"), "mutated %s must not verify", name)
	}
}

func TestVerifyFailsClosed(t *testing.T) {
	key := testKey(t)
	signer := NewSigner("VTB", key)
	verifier := NewVerifier("NBX", &key.PublicKey, StaticDirectory{}, discardLog())

	p := testPayload()
	sig, err := signer.Sign(p)
	require.NoError(t, err)

	// Origin bank unknown to the directory: lookup failure means false.
	assert.False(t, verifier.Verify(context.Background(), p, sig, "VTB"))

	// Garbage signature encoding.
	assert.False(t, verifier.Verify(context.Background(), p, "%%%not-base64%%%", "NBX"))

	// Wrong key in the directory.
	otherKey := testKey(t)
	verifier = NewVerifier("NBX", &otherKey.PublicKey, StaticDirectory{"VTB": &otherKey.PublicKey}, discardLog())
	assert.False(t, verifier.Verify(context.Background(), p, sig, "VTB"))

	// Right key in the directory verifies.
	verifier = NewVerifier("NBX", &otherKey.PublicKey, StaticDirectory{"VTB": &key.PublicKey}, discardLog())
	assert.True(t, verifier.Verify(context.Background(), p, sig, "VTB"))
}

func TestCanonicalStringFixedOrder(t *testing.T) {
	p := testPayload()
	// decimal.String() trims trailing zeros, so "100.50" canonicalizes to
	// "100.5" on both the signing and verifying side.
	want := "9bd7f1f2-0000-4000-8000-000000000001|VTB|VTB-a|NBX|NBX-b|100.5|USD|invoice 42|2026-08-01T12:00:00Z"
	assert.Equal(t, want, CanonicalString(p))

	// The signature field never feeds the canonical form.
	p.Signature = "whatever"
	assert.Equal(t, want, CanonicalString(p))
}

func TestJWKSRoundTrip(t *testing.T) {
	key := testKey(t)

	doc, err := MarshalJWKS(&key.PublicKey, "VTB")
	require.NoError(t, err)

	var set JWKSet
	require.NoError(t, json.Unmarshal(doc, &set))
	jwk, ok := set.KeyByID("VTB")
	require.True(t, ok)
	assert.Equal(t, "RSA", jwk.Kty)
	assert.Equal(t, "RS256", jwk.Alg)

	pub, err := jwk.RSAPublicKey()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, pub.N)
	assert.Equal(t, key.PublicKey.E, pub.E)
}
