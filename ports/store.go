package ports

import (
	"context"
	"time"

	"github.com/portalis-labs/keygate/core"
)

// BindParams carries everything the registration commit needs. Credential is
// fully populated except ID and IdentityID, which the store assigns.
type BindParams struct {
	Email         string // empty for wallet-only accounts
	DisplayName   string
	WalletAddress string
	Credential    core.Credential

	// MaxActiveCredentials caps how many active credentials one identity
	// may hold before the link path fails.
	MaxActiveCredentials int
}

// BindResult reports what the atomic commit decided.
type BindResult struct {
	Identity   core.Identity
	Credential core.Credential

	// Linked is true when the credential was appended to an existing
	// identity instead of creating a new one.
	Linked bool
}

// IdentityStore is the durable repository of identities and credentials.
//
// BindCredential must execute the whole lookup / conflict-check / write
// decision as one atomic unit so that two concurrent registrations for the
// same email or wallet cannot both succeed.
type IdentityStore interface {
	BindCredential(ctx context.Context, params BindParams) (BindResult, error)

	GetIdentity(ctx context.Context, id string) (core.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (core.Identity, error)

	// GetCredentialByIdentifier resolves an active credential from the
	// authenticator-issued identifier. Inactive credentials do not match.
	GetCredentialByIdentifier(ctx context.Context, credentialIdentifier string) (core.Credential, error)

	ListActiveCredentials(ctx context.Context, identityID string) ([]core.Credential, error)

	// AdvanceCounter overwrites the stored usage counter and last-used
	// timestamp in a single write.
	AdvanceCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error

	// DeactivateCredential revokes a credential without deleting it.
	DeactivateCredential(ctx context.Context, credentialID string) error

	// SetChainInfo records mirror transaction metadata on a credential.
	// Observability only; no invariant reads it back.
	SetChainInfo(ctx context.Context, credentialID string, info core.ChainInfo) error
}

// SessionStore is the durable side of the session issuer.
type SessionStore interface {
	PutSession(ctx context.Context, session core.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (core.Session, error)

	// ExpireSession marks a session record expired. Idempotent.
	ExpireSession(ctx context.Context, tokenHash string) error
}

// AuditStore appends security-relevant transitions. Callers swallow its
// errors so a logging outage cannot become an authentication outage.
type AuditStore interface {
	Append(ctx context.Context, record core.AuditRecord) error
}
