package signature

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"

	"github.com/vantagebank/settlement/models"
)

// KeyDirectory resolves a counterpart bank's current public signing key.
type KeyDirectory interface {
	PublicKey(ctx context.Context, bankCode string) (*rsa.PublicKey, error)
}

// StaticDirectory is a KeyDirectory over a fixed in-process map, for
// config-pinned counterpart keys and for tests.
type StaticDirectory map[string]*rsa.PublicKey

// PublicKey looks the bank up in the map.
func (d StaticDirectory) PublicKey(_ context.Context, bankCode string) (*rsa.PublicKey, error) {
	pub, ok := d[bankCode]
	if !ok {
		return nil, ErrUnknownBank
	}
	return pub, nil
}

// Verifier checks payload signatures. It is a pure function over the
// payload plus key material: it mutates nothing and returns only a boolean.
type Verifier struct {
	bankCode  string
	selfKey   *rsa.PublicKey
	directory KeyDirectory
	log       *slog.Logger
}

// NewVerifier returns a Verifier for the given bank. Payloads claiming to
// originate from bankCode are checked against selfKey; everything else goes
// through the directory.
func NewVerifier(bankCode string, selfKey *rsa.PublicKey, directory KeyDirectory, log *slog.Logger) *Verifier {
	return &Verifier{
		bankCode:  bankCode,
		selfKey:   selfKey,
		directory: directory,
		log:       log.With("component", "verifier"),
	}
}

// Verify reports whether sig is a valid signature over p by the claimed
// origin bank. It fails closed: any resolution or decoding problem is
// logged and treated as an invalid signature.
func (v *Verifier) Verify(ctx context.Context, p models.TransferPayload, sig, claimedOriginBank string) bool {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		v.log.Warn("malformed signature encoding", "transaction_id", p.TransactionID)
		return false
	}

	pub := v.selfKey
	if claimedOriginBank != v.bankCode {
		pub, err = v.directory.PublicKey(ctx, claimedOriginBank)
		if err != nil {
			v.log.Warn("key lookup failed", "bank", claimedOriginBank, "error", err)
			return false
		}
	}
	if pub == nil {
		return false
	}

	sum := sha256.Sum256([]byte(CanonicalString(p)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], raw); err != nil {
		v.log.Warn("signature mismatch", "transaction_id", p.TransactionID, "bank", claimedOriginBank)
		return false
	}
	return true
}
