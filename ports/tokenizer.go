package ports

import (
	"time"

	"github.com/portalis-labs/keygate/core"
)

// Tokenizer converts between session records and signed tokens.
type Tokenizer interface {
	// SessionToToken mints a signed token for the given claims.
	SessionToToken(claims core.SessionClaims, issuedAt time.Time) (string, error)

	// TokenToClaims verifies signature and expiry and returns the claims.
	// Any failure maps to core.ErrSessionInvalid at the call site.
	TokenToClaims(token string) (core.SessionClaims, error)
}
