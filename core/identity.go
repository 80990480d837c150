package core

import "time"

// AuthProvider identifies how an identity was first established.
type AuthProvider string

const (
	ProviderEmail  AuthProvider = "EMAIL"
	ProviderOAuth  AuthProvider = "OAUTH"
	ProviderWallet AuthProvider = "WALLET"
)

// Identity is a durable account. WalletAddress is assigned at most once and
// is globally unique across identities.
type Identity struct {
	ID            string
	Email         string // empty for wallet-only accounts
	WalletAddress string
	DisplayName   string
	AuthProvider  AuthProvider
	CreatedAt     time.Time
}

// DeviceMetadata describes the authenticator that produced a credential.
type DeviceMetadata struct {
	Transports     []string `json:"transports,omitempty"`
	DeviceClass    string   `json:"device_class,omitempty"`
	BackupEligible bool     `json:"backup_eligible"`
	BackedUp       bool     `json:"backed_up"`
}

// ChainInfo is an observability side channel recorded after a successful
// on-chain mirror attempt. No invariant consults it.
type ChainInfo struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Status      string `json:"status"`
}

// Credential is a passkey bound to exactly one identity. PublicKeyX and
// PublicKeyY are hex-encoded 32-byte coordinates. UsageCounter never
// decreases across successful authentications.
type Credential struct {
	ID                   string
	IdentityID           string
	CredentialIdentifier string // opaque, authenticator-issued, globally unique
	PublicKeyX           string
	PublicKeyY           string
	UsageCounter         uint32
	Device               DeviceMetadata
	AuthenticatorModel   string // optional hex tag (AAGUID)
	Chain                *ChainInfo
	IsActive             bool
	CreatedAt            time.Time
	LastUsedAt           *time.Time
}
