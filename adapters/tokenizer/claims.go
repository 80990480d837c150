package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AudienceSession tags every token this service mints.
const AudienceSession = "keygate:session"

// SessionClaims combines standard claims with the wallet binding.
type SessionClaims struct {
	jwt.RegisteredClaims
	WalletAddress string `json:"wal,omitempty"`
}
