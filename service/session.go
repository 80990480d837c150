package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/portalis-labs/keygate/core"
)

const sessionPrefix = "session:"

// hashToken derives the non-reversible lookup key for a token. The raw
// token is never stored anywhere.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// issueSession mints a signed token, caches its claims under the token hash
// and writes the durable record.
func (s *Service) issueSession(ctx context.Context, identity core.Identity) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.SessionTTL)

	claims := core.SessionClaims{
		IdentityID:    identity.ID,
		WalletAddress: identity.WalletAddress,
		ExpiresAt:     expiresAt,
	}
	token, err := s.tokenizer.SessionToToken(claims, now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue session token: %w", err)
	}

	tokenHash := hashToken(token)
	if err := s.sessions.PutSession(ctx, core.Session{
		IdentityID: identity.ID,
		TokenHash:  tokenHash,
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
	}); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}

	// The cache is an optimization; a failed write only costs the first
	// validation a durable lookup.
	if payload, err := json.Marshal(claims); err == nil {
		if err := s.kv.Set(ctx, sessionPrefix+tokenHash, string(payload), s.cfg.SessionTTL); err != nil {
			s.log.Warn("session cache write failed", "err", err)
		}
	}

	return token, expiresAt, nil
}

// ValidateSession verifies a token and returns its claims. Every failure
// mode collapses to core.ErrSessionInvalid.
func (s *Service) ValidateSession(ctx context.Context, token string) (core.SessionClaims, error) {
	claims, err := s.tokenizer.TokenToClaims(token)
	if err != nil {
		return core.SessionClaims{}, core.ErrSessionInvalid
	}

	tokenHash := hashToken(token)
	if value, err := s.kv.Get(ctx, sessionPrefix+tokenHash); err == nil {
		var cached core.SessionClaims
		if err := json.Unmarshal([]byte(value), &cached); err == nil {
			return cached, nil
		}
	}

	session, err := s.sessions.GetSessionByHash(ctx, tokenHash)
	if err != nil {
		return core.SessionClaims{}, core.ErrSessionInvalid
	}
	if !s.now().Before(session.ExpiresAt) {
		return core.SessionClaims{}, core.ErrSessionInvalid
	}

	// Repopulate the cache with the remaining TTL.
	if remaining := session.ExpiresAt.Sub(s.now()); remaining > 0 {
		if payload, err := json.Marshal(claims); err == nil {
			if err := s.kv.Set(ctx, sessionPrefix+tokenHash, string(payload), remaining); err != nil {
				s.log.Warn("session cache repopulate failed", "err", err)
			}
		}
	}

	return claims, nil
}

// InvalidateSession removes the cache entry and marks the durable record
// expired. Idempotent, including for tokens that never resolved.
func (s *Service) InvalidateSession(ctx context.Context, token string) error {
	tokenHash := hashToken(token)
	if err := s.kv.Delete(ctx, sessionPrefix+tokenHash); err != nil {
		s.log.Warn("session cache delete failed", "err", err)
	}
	if err := s.sessions.ExpireSession(ctx, tokenHash); err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}
