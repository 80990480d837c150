package tokenizer

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portalis-labs/keygate/core"
)

func newTokenizer(t *testing.T) *JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return NewJWTTokenizer(key)
}

func TestTokenRoundTrip(t *testing.T) {
	tk := newTokenizer(t)
	now := time.Now()

	claims := core.SessionClaims{
		IdentityID:    "identity-1",
		WalletAddress: "0x01",
		ExpiresAt:     now.Add(time.Hour),
	}

	token, err := tk.SessionToToken(claims, now)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := tk.TokenToClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "identity-1", got.IdentityID)
	assert.Equal(t, "0x01", got.WalletAddress)
	assert.WithinDuration(t, claims.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestTokenValidityWindow(t *testing.T) {
	tk := newTokenizer(t)
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(time.Hour)

	token, err := tk.SessionToToken(core.SessionClaims{
		IdentityID: "identity-1",
		ExpiresAt:  expiresAt,
	}, issuedAt)
	require.NoError(t, err)

	tk.SetClock(func() time.Time { return expiresAt.Add(-time.Second) })
	_, err = tk.TokenToClaims(token)
	assert.NoError(t, err)

	tk.SetClock(func() time.Time { return expiresAt.Add(time.Second) })
	_, err = tk.TokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)
}

func TestTokenWrongKey(t *testing.T) {
	signer := newTokenizer(t)
	verifier := newTokenizer(t)

	token, err := signer.SessionToToken(core.SessionClaims{
		IdentityID: "identity-1",
		ExpiresAt:  time.Now().Add(time.Hour),
	}, time.Now())
	require.NoError(t, err)

	_, err = verifier.TokenToClaims(token)
	assert.ErrorIs(t, err, core.ErrSessionInvalid)
}

func TestTokenGarbage(t *testing.T) {
	tk := newTokenizer(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tk.TokenToClaims(token)
		assert.ErrorIs(t, err, core.ErrSessionInvalid)
	}
}
