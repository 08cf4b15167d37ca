// Package signature signs outgoing transfer payloads and verifies incoming
// ones with per-bank RSA keys. Verification is fail-closed: any key lookup
// failure, malformed input or crypto mismatch yields false, never an error.
package signature

import (
	"strings"

	"github.com/vantagebank/settlement/models"
)

// CanonicalString returns the deterministic serialization signatures are
// computed over. Field order and encoding are fixed and must match on both
// the signing and verifying bank: the amount is normalized through
// decimal.String and the timestamp is the RFC3339 string carried on the
// wire. The signature field itself is excluded.
func CanonicalString(p models.TransferPayload) string {
	return strings.Join([]string{
		p.TransactionID,
		p.FromBank,
		p.FromAccount,
		p.ToBank,
		p.ToAccount,
		p.Amount.String(),
		p.Currency,
		p.Description,
		p.Timestamp,
	}, "|")
}
