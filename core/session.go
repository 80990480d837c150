package core

import "time"

// Session is the durable record of an issued token. Only the one-way hash of
// the token is stored, never the token itself.
type Session struct {
	IdentityID string    `json:"identity_id"`
	TokenHash  string    `json:"token_hash"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// SessionClaims is what a validated token resolves to.
type SessionClaims struct {
	IdentityID    string    `json:"identity_id"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}
