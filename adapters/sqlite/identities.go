package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/ports"
)

const identityColumns = `id, email, wallet_address, display_name, auth_provider, created_at`

const credentialColumns = `id, identity_id, credential_identifier, public_key_x, public_key_y,
	usage_counter, device_metadata, authenticator_model, chain_info, is_active, created_at, last_used_at`

// BindCredential runs the registration commit as one immediate transaction:
// identity lookup by email, wallet conflict check, and the create-or-link
// write. Two concurrent registrations for the same email serialize on the
// write lock; the loser of the race observes the winner's identity and
// links instead of creating a duplicate.
func (s *Store) BindCredential(ctx context.Context, params ports.BindParams) (ports.BindResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.BindResult{}, fmt.Errorf("begin bind tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := s.bindLocked(ctx, tx, params)
	if err != nil {
		return ports.BindResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ports.BindResult{}, fmt.Errorf("commit bind tx: %w", err)
	}
	return result, nil
}

func (s *Store) bindLocked(ctx context.Context, tx *sql.Tx, params ports.BindParams) (ports.BindResult, error) {
	now := time.Now()

	var identity core.Identity
	linked := false

	if params.Email != "" {
		existing, err := scanIdentity(tx.QueryRowContext(ctx,
			`SELECT `+identityColumns+` FROM identities WHERE email = ?`, params.Email))
		switch {
		case err == nil:
			var active int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM credentials WHERE identity_id = ? AND is_active = 1`,
				existing.ID).Scan(&active); err != nil {
				return ports.BindResult{}, fmt.Errorf("count active credentials: %w", err)
			}
			if active >= params.MaxActiveCredentials {
				return ports.BindResult{}, core.ErrCredentialLimitExceeded
			}
			if existing.WalletAddress == "" && params.WalletAddress != "" {
				if _, err := tx.ExecContext(ctx,
					`UPDATE identities SET wallet_address = ? WHERE id = ?`,
					params.WalletAddress, existing.ID); err != nil {
					if isUniqueViolation(err) {
						return ports.BindResult{}, core.ErrWalletConflict
					}
					return ports.BindResult{}, fmt.Errorf("backfill wallet address: %w", err)
				}
				existing.WalletAddress = params.WalletAddress
			}
			identity = existing
			linked = true
		case errors.Is(err, sql.ErrNoRows):
			identity, err = s.insertIdentity(ctx, tx, params, now)
			if err != nil {
				return ports.BindResult{}, err
			}
		default:
			return ports.BindResult{}, fmt.Errorf("lookup identity by email: %w", err)
		}
	} else {
		var err error
		identity, err = s.insertIdentity(ctx, tx, params, now)
		if err != nil {
			return ports.BindResult{}, err
		}
	}

	credential := params.Credential
	credential.ID = uuid.New().String()
	credential.IdentityID = identity.ID
	credential.IsActive = true
	credential.CreatedAt = now

	device, err := json.Marshal(credential.Device)
	if err != nil {
		return ports.BindResult{}, fmt.Errorf("encode device metadata: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credentials (id, identity_id, credential_identifier, public_key_x, public_key_y,
			usage_counter, device_metadata, authenticator_model, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		credential.ID, credential.IdentityID, credential.CredentialIdentifier,
		credential.PublicKeyX, credential.PublicKeyY, credential.UsageCounter,
		string(device), credential.AuthenticatorModel, toMillis(now)); err != nil {
		if isUniqueViolation(err) {
			return ports.BindResult{}, fmt.Errorf("credential identifier already bound: %w", core.ErrWalletConflict)
		}
		return ports.BindResult{}, fmt.Errorf("insert credential: %w", err)
	}

	return ports.BindResult{Identity: identity, Credential: credential, Linked: linked}, nil
}

func (s *Store) insertIdentity(ctx context.Context, tx *sql.Tx, params ports.BindParams, now time.Time) (core.Identity, error) {
	// No identity owns this email; a wallet already claimed by anyone else
	// is a hard conflict.
	if params.WalletAddress != "" {
		var claimedBy string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM identities WHERE wallet_address = ?`, params.WalletAddress).Scan(&claimedBy)
		switch {
		case err == nil:
			return core.Identity{}, core.ErrWalletConflict
		case !errors.Is(err, sql.ErrNoRows):
			return core.Identity{}, fmt.Errorf("lookup identity by wallet: %w", err)
		}
	}

	provider := core.ProviderWallet
	if params.Email != "" {
		provider = core.ProviderEmail
	}
	identity := core.Identity{
		ID:            uuid.New().String(),
		Email:         params.Email,
		WalletAddress: params.WalletAddress,
		DisplayName:   params.DisplayName,
		AuthProvider:  provider,
		CreatedAt:     now,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO identities (id, email, wallet_address, display_name, auth_provider, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		identity.ID, identity.Email, identity.WalletAddress, identity.DisplayName,
		string(identity.AuthProvider), toMillis(now)); err != nil {
		if isUniqueViolation(err) {
			return core.Identity{}, core.ErrWalletConflict
		}
		return core.Identity{}, fmt.Errorf("insert identity: %w", err)
	}
	return identity, nil
}

// GetIdentity fetches an identity by id.
func (s *Store) GetIdentity(ctx context.Context, id string) (core.Identity, error) {
	identity, err := scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Identity{}, core.ErrIdentityNotFound
	}
	if err != nil {
		return core.Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// GetIdentityByEmail fetches an identity by email.
func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (core.Identity, error) {
	identity, err := scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Identity{}, core.ErrIdentityNotFound
	}
	if err != nil {
		return core.Identity{}, fmt.Errorf("get identity by email: %w", err)
	}
	return identity, nil
}

// GetCredentialByIdentifier resolves an active credential from its
// authenticator-issued identifier.
func (s *Store) GetCredentialByIdentifier(ctx context.Context, credentialIdentifier string) (core.Credential, error) {
	credential, err := scanCredential(s.db.QueryRowContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials
		 WHERE credential_identifier = ? AND is_active = 1`, credentialIdentifier))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Credential{}, core.ErrCredentialNotFound
	}
	if err != nil {
		return core.Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return credential, nil
}

// ListActiveCredentials returns an identity's active credentials.
func (s *Store) ListActiveCredentials(ctx context.Context, identityID string) ([]core.Credential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials
		 WHERE identity_id = ? AND is_active = 1 ORDER BY created_at`, identityID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []core.Credential
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, credential)
	}
	return out, rows.Err()
}

// AdvanceCounter overwrites the usage counter and last-used timestamp. The
// guard keeps the stored value monotonic even if callers race.
func (s *Store) AdvanceCounter(ctx context.Context, credentialID string, counter uint32, usedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials SET usage_counter = ?, last_used_at = ?
		WHERE id = ? AND usage_counter <= ?`,
		counter, toMillis(usedAt), credentialID, counter)
	if err != nil {
		return fmt.Errorf("advance counter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance counter result: %w", err)
	}
	if affected == 0 {
		return core.ErrCounterRegression
	}
	return nil
}

// DeactivateCredential revokes a credential without deleting it.
func (s *Store) DeactivateCredential(ctx context.Context, credentialID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET is_active = 0 WHERE id = ?`, credentialID); err != nil {
		return fmt.Errorf("deactivate credential: %w", err)
	}
	return nil
}

// SetChainInfo records mirror transaction metadata on a credential.
func (s *Store) SetChainInfo(ctx context.Context, credentialID string, info core.ChainInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode chain info: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET chain_info = ? WHERE id = ?`, string(payload), credentialID); err != nil {
		return fmt.Errorf("set chain info: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (core.Identity, error) {
	var (
		identity  core.Identity
		provider  string
		createdAt int64
	)
	if err := row.Scan(&identity.ID, &identity.Email, &identity.WalletAddress,
		&identity.DisplayName, &provider, &createdAt); err != nil {
		return core.Identity{}, err
	}
	identity.AuthProvider = core.AuthProvider(provider)
	identity.CreatedAt = fromMillis(createdAt)
	return identity, nil
}

func scanCredential(row rowScanner) (core.Credential, error) {
	var (
		credential core.Credential
		device     string
		chainInfo  string
		active     int
		createdAt  int64
		lastUsed   sql.NullInt64
	)
	if err := row.Scan(&credential.ID, &credential.IdentityID, &credential.CredentialIdentifier,
		&credential.PublicKeyX, &credential.PublicKeyY, &credential.UsageCounter,
		&device, &credential.AuthenticatorModel, &chainInfo, &active, &createdAt, &lastUsed); err != nil {
		return core.Credential{}, err
	}
	if device != "" {
		if err := json.Unmarshal([]byte(device), &credential.Device); err != nil {
			return core.Credential{}, fmt.Errorf("decode device metadata: %w", err)
		}
	}
	if chainInfo != "" {
		credential.Chain = &core.ChainInfo{}
		if err := json.Unmarshal([]byte(chainInfo), credential.Chain); err != nil {
			return core.Credential{}, fmt.Errorf("decode chain info: %w", err)
		}
	}
	credential.IsActive = active == 1
	credential.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		t := fromMillis(lastUsed.Int64)
		credential.LastUsedAt = &t
	}
	return credential, nil
}
