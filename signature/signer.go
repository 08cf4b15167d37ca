package signature

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/vantagebank/settlement/models"
)

// Signer produces signatures with this bank's current private key.
// The key is injected at construction; the signer never touches the
// environment or the filesystem itself.
type Signer struct {
	bankCode string
	key      *rsa.PrivateKey
}

// NewSigner returns a Signer for the given bank.
func NewSigner(bankCode string, key *rsa.PrivateKey) *Signer {
	return &Signer{bankCode: bankCode, key: key}
}

// Sign computes an RSA-SHA256 signature over the canonical serialization of
// p and returns it base64-encoded.
func (s *Signer) Sign(p models.TransferPayload) (string, error) {
	sum := sha256.Sum256([]byte(CanonicalString(p)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, sum[:])
	if err != nil {
		return "", fmt.Errorf("sign payload %s: %w", p.TransactionID, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// PublicKey returns the public half of the signing key, for publication.
func (s *Signer) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
