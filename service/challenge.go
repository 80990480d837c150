package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/ports"
)

const challengePrefix = "challenge:"

// issueChallenge stores single-use ceremony state under a fresh id and
// returns the id plus the challenge value the authenticator will sign over.
func (s *Service) issueChallenge(ctx context.Context, meta core.ChallengeMeta) (string, core.ChallengeMeta, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", core.ChallengeMeta{}, fmt.Errorf("generate challenge: %w", err)
	}
	meta.Challenge = base64.RawURLEncoding.EncodeToString(raw)
	meta.CreatedAt = s.now()

	payload, err := json.Marshal(meta)
	if err != nil {
		return "", core.ChallengeMeta{}, fmt.Errorf("encode challenge meta: %w", err)
	}

	challengeID := uuid.New().String()
	if err := s.kv.Set(ctx, challengePrefix+challengeID, string(payload), s.cfg.ChallengeTTL); err != nil {
		return "", core.ChallengeMeta{}, fmt.Errorf("store challenge: %w", err)
	}
	return challengeID, meta, nil
}

// consumeChallenge fetches and deletes ceremony state in one step. Missing
// and expired challenges are indistinguishable to the caller.
func (s *Service) consumeChallenge(ctx context.Context, challengeID string, kind core.ChallengeKind) (core.ChallengeMeta, error) {
	value, err := s.kv.GetDel(ctx, challengePrefix+challengeID)
	if err != nil {
		if errors.Is(err, ports.ErrKeyNotFound) {
			return core.ChallengeMeta{}, core.ErrChallengeNotFound
		}
		return core.ChallengeMeta{}, fmt.Errorf("consume challenge: %w", err)
	}

	var meta core.ChallengeMeta
	if err := json.Unmarshal([]byte(value), &meta); err != nil {
		return core.ChallengeMeta{}, fmt.Errorf("decode challenge meta: %w", err)
	}
	if meta.Kind != kind {
		// A registration challenge cannot finish an authentication or vice
		// versa; the entry is already gone either way.
		return core.ChallengeMeta{}, core.ErrChallengeNotFound
	}
	return meta, nil
}

// ceremonyOptions shapes the client-facing options record for a challenge.
func (s *Service) ceremonyOptions(challengeID string, meta core.ChallengeMeta, userID, userName, displayName string) core.CeremonyOptions {
	verification := "preferred"
	if s.cfg.RequireUserVerification {
		verification = "required"
	}
	return core.CeremonyOptions{
		ChallengeID:      challengeID,
		Challenge:        meta.Challenge,
		RelyingPartyID:   s.cfg.RelyingPartyID,
		RelyingPartyName: s.cfg.RelyingPartyName,
		UserID:           userID,
		UserName:         userName,
		UserDisplayName:  displayName,
		Timeout:          s.cfg.CeremonyTimeout,
		UserVerification: verification,
	}
}
