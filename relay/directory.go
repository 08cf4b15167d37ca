package relay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vantagebank/settlement/signature"
)

// DefaultKeyCacheTTL bounds how long a fetched counterpart key is reused
// before the directory is asked again.
const DefaultKeyCacheTTL = 5 * time.Minute

type cachedKey struct {
	key     *rsa.PublicKey
	expires time.Time
}

// Directory resolves counterpart public keys from the relay's key
// directory, which serves each bank's JWKS under its bank code. Fetched
// keys are cached with a TTL so verification does not hit the network on
// every incoming transfer.
type Directory struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration

	mu    sync.Mutex
	cache map[string]cachedKey
}

// NewDirectory returns a Directory with the given request timeout.
func NewDirectory(baseURL string, timeout time.Duration) *Directory {
	return &Directory{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		ttl:     DefaultKeyCacheTTL,
		cache:   make(map[string]cachedKey),
	}
}

// PublicKey implements signature.KeyDirectory.
func (d *Directory) PublicKey(ctx context.Context, bankCode string) (*rsa.PublicKey, error) {
	d.mu.Lock()
	if c, ok := d.cache[bankCode]; ok && time.Now().Before(c.expires) {
		d.mu.Unlock()
		return c.key, nil
	}
	d.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/banks/%s/jwks.json", d.baseURL, bankCode), nil)
	if err != nil {
		return nil, fmt.Errorf("build key lookup: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("key lookup for %s: %w", bankCode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key lookup for %s: status %d", bankCode, resp.StatusCode)
	}

	var set signature.JWKSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks for %s: %w", bankCode, err)
	}
	jwk, ok := set.KeyByID(bankCode)
	if !ok {
		return nil, fmt.Errorf("jwks for %s: no key with kid %q: %w", bankCode, bankCode, signature.ErrUnknownBank)
	}
	key, err := jwk.RSAPublicKey()
	if err != nil {
		return nil, fmt.Errorf("jwks for %s: %w", bankCode, err)
	}

	d.mu.Lock()
	d.cache[bankCode] = cachedKey{key: key, expires: time.Now().Add(d.ttl)}
	d.mu.Unlock()
	return key, nil
}
