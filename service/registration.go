package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/internal/cose"
	"github.com/portalis-labs/keygate/internal/webauthn"
	"github.com/portalis-labs/keygate/ports"
)

// RegistrationResult is what a committed registration hands back.
type RegistrationResult struct {
	Identity   core.Identity
	Credential core.Credential
}

// BeginRegistration issues a registration ceremony. Email may be empty for a
// wallet-only account, in which case the resulting credential must be
// discoverable.
func (s *Service) BeginRegistration(ctx context.Context, email, displayName string) (core.CeremonyOptions, error) {
	meta := core.ChallengeMeta{
		Kind:         core.ChallengeRegistration,
		Email:        email,
		DisplayName:  displayName,
		Discoverable: email == "",
	}

	userID := uuid.New().String()
	if email != "" {
		identity, err := s.identities.GetIdentityByEmail(ctx, email)
		switch {
		case err == nil:
			meta.IdentityID = identity.ID
			userID = identity.ID
		case !errors.Is(err, core.ErrIdentityNotFound):
			return core.CeremonyOptions{}, fmt.Errorf("lookup identity: %w", err)
		}
	}

	challengeID, meta, err := s.issueChallenge(ctx, meta)
	if err != nil {
		return core.CeremonyOptions{}, err
	}
	return s.ceremonyOptions(challengeID, meta, userID, email, displayName), nil
}

// CompleteRegistration verifies the authenticator's attestation response
// against the issued challenge and commits the identity/credential binding.
// The challenge is consumed regardless of outcome.
func (s *Service) CompleteRegistration(ctx context.Context, challengeID string, resp core.AttestationResponse) (RegistrationResult, error) {
	meta, err := s.consumeChallenge(ctx, challengeID, core.ChallengeRegistration)
	if err != nil {
		return RegistrationResult{}, err
	}

	clientData, err := base64.RawURLEncoding.DecodeString(resp.ClientDataJSON)
	if err != nil {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, "client data undecodable")
	}
	if _, err := webauthn.VerifyClientData(clientData, webauthn.CeremonyCreate, meta.Challenge, s.cfg.Origins); err != nil {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, err.Error())
	}

	attRaw, err := base64.RawURLEncoding.DecodeString(resp.AttestationObject)
	if err != nil {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, "attestation object undecodable")
	}
	attestation, err := webauthn.ParseAttestationObject(attRaw)
	if err != nil {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, err.Error())
	}

	authData := attestation.AuthData
	if !authData.UserPresent() {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, "user presence flag absent")
	}
	if s.cfg.RequireUserVerification && !authData.UserVerified() {
		return RegistrationResult{}, s.registrationFailure(ctx, meta, "user verification flag absent")
	}

	// Codec errors surface typed to the caller.
	x, y, err := cose.DecodeEC2PublicKey(authData.Credential.PublicKey)
	if err != nil {
		s.audit(ctx, "passkey.register", meta.IdentityID, "credential", "", core.AuditFailure,
			map[string]string{"reason": err.Error()})
		return RegistrationResult{}, err
	}

	credentialIdentifier := resp.CredentialID
	if credentialIdentifier == "" {
		credentialIdentifier = base64.RawURLEncoding.EncodeToString(authData.Credential.CredentialID)
	}

	wallet, err := s.resolver.Resolve(ctx, x, y, credentialIdentifier)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("resolve wallet address: %w", err)
	}

	result, err := s.identities.BindCredential(ctx, ports.BindParams{
		Email:         meta.Email,
		DisplayName:   meta.DisplayName,
		WalletAddress: wallet,
		Credential: core.Credential{
			CredentialIdentifier: credentialIdentifier,
			PublicKeyX:           hex.EncodeToString(x[:]),
			PublicKeyY:           hex.EncodeToString(y[:]),
			UsageCounter:         authData.Counter,
			Device: core.DeviceMetadata{
				Transports:     resp.Transports,
				BackupEligible: authData.Flags&0x08 != 0,
				BackedUp:       authData.Flags&0x10 != 0,
			},
			AuthenticatorModel: hex.EncodeToString(authData.Credential.AAGUID[:]),
		},
		MaxActiveCredentials: s.cfg.MaxActiveCredentials,
	})
	if err != nil {
		s.audit(ctx, "passkey.register", meta.IdentityID, "credential", credentialIdentifier,
			core.AuditFailure, map[string]string{"reason": err.Error()})
		return RegistrationResult{}, err
	}

	s.audit(ctx, "passkey.register", result.Identity.ID, "credential", result.Credential.ID,
		core.AuditSuccess, map[string]string{"wallet": wallet, "linked": fmt.Sprintf("%t", result.Linked)})

	// Fire-and-forget: the mirror's outcome never changes this result.
	if s.mirror != nil {
		job := ports.MirrorJob{
			CredentialID:         result.Credential.ID,
			IdentityID:           result.Identity.ID,
			WalletAddress:        wallet,
			X:                    x,
			Y:                    y,
			CredentialIdentifier: credentialIdentifier,
		}
		if err := s.mirror.Enqueue(ctx, job); err != nil {
			s.log.Warn("mirror enqueue failed", "credential", result.Credential.ID, "err", err)
		}
	}

	return RegistrationResult{Identity: result.Identity, Credential: result.Credential}, nil
}

// registrationFailure audits and collapses the cause into the generic
// verification error so callers learn nothing about stored state.
func (s *Service) registrationFailure(ctx context.Context, meta core.ChallengeMeta, reason string) error {
	s.audit(ctx, "passkey.register", meta.IdentityID, "credential", "", core.AuditFailure,
		map[string]string{"reason": reason})
	return core.ErrVerificationFailed
}
