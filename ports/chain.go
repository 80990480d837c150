package ports

import (
	"context"
	"errors"

	"github.com/portalis-labs/keygate/core"
)

var (
	// ErrAlreadyRegistered reports that the ledger already holds the
	// credential. The mirror treats it as a benign no-op.
	ErrAlreadyRegistered = errors.New("credential already registered on chain")

	// ErrMirrorSkipped reports that mirroring preconditions were not met
	// (no signer configured, or signer balance below the minimum).
	ErrMirrorSkipped = errors.New("mirror attempt skipped")
)

// WalletResolver derives the deterministic on-chain wallet address for a
// public key and credential identifier.
type WalletResolver interface {
	Resolve(ctx context.Context, x, y [32]byte, credentialIdentifier string) (string, error)
}

// MirrorJob is the unit of work handed to the fire-and-forget replication
// boundary on registration commit.
type MirrorJob struct {
	CredentialID         string   `json:"credential_id"` // repository id, for the chain-info write-back
	IdentityID           string   `json:"identity_id"`
	WalletAddress        string   `json:"wallet_address"`
	X                    [32]byte `json:"x"`
	Y                    [32]byte `json:"y"`
	CredentialIdentifier string   `json:"credential_identifier"`
}

// ChainMirror submits the credential binding to the blockchain ledger. The
// mirror worker absorbs every error it returns; nothing reaches the
// registration caller.
type ChainMirror interface {
	Register(ctx context.Context, job MirrorJob) (core.ChainInfo, error)
}

// MirrorQueue detaches mirror submission from the registration request.
type MirrorQueue interface {
	Enqueue(ctx context.Context, job MirrorJob) error
}
