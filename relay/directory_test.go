package relay

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantagebank/settlement/signature"
)

func TestDirectoryFetchesAndCaches(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		require.Equal(t, "/v1/banks/NBX/jwks.json", r.URL.Path)
		doc, err := signature.MarshalJWKS(&key.PublicKey, "NBX")
		require.NoError(t, err)
		w.Write(doc)
	}))
	defer srv.Close()

	d := NewDirectory(srv.URL, time.Second)

	pub, err := d.PublicKey(context.Background(), "NBX")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey.N, pub.N)

	// Second lookup serves from cache.
	_, err = d.PublicKey(context.Background(), "NBX")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDirectoryRejectsMismatchedKeyID(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// The document carries a key, but not under the requested bank code.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		doc, err := signature.MarshalJWKS(&key.PublicKey, "OTHER")
		require.NoError(t, err)
		w.Write(doc)
	}))
	defer srv.Close()

	d := NewDirectory(srv.URL, time.Second)
	_, err = d.PublicKey(context.Background(), "NBX")
	require.ErrorIs(t, err, signature.ErrUnknownBank)
}

func TestDirectoryLookupFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDirectory(srv.URL, time.Second)
	_, err := d.PublicKey(context.Background(), "GONE")
	require.Error(t, err)

	srv.Close()
	_, err = d.PublicKey(context.Background(), "GONE")
	require.Error(t, err)
}
