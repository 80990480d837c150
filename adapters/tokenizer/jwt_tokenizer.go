package tokenizer

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/portalis-labs/keygate/core"
)

// JWTTokenizer signs and verifies ES256 session tokens.
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

// NewJWTTokenizer creates a tokenizer around a P-256 signing key.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	return &JWTTokenizer{signKey: signKey, now: time.Now}
}

// SetClock overrides the validation time source. Test hook.
func (j *JWTTokenizer) SetClock(now func() time.Time) {
	j.now = now
}

// SessionToToken mints a signed token for the given claims.
func (j *JWTTokenizer) SessionToToken(claims core.SessionClaims, issuedAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.IdentityID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			Audience:  jwt.ClaimStrings{AudienceSession},
		},
		WalletAddress: claims.WalletAddress,
	})

	signed, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// TokenToClaims verifies signature, audience and expiry, and returns the
// embedded claims. All failure modes collapse to core.ErrSessionInvalid.
func (j *JWTTokenizer) TokenToClaims(tokenStr string) (core.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceSession), jwt.WithTimeFunc(j.now))
	if err != nil || !token.Valid {
		return core.SessionClaims{}, core.ErrSessionInvalid
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Subject == "" || claims.ExpiresAt == nil {
		return core.SessionClaims{}, core.ErrSessionInvalid
	}

	return core.SessionClaims{
		IdentityID:    claims.Subject,
		WalletAddress: claims.WalletAddress,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}
