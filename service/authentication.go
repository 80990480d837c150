package service

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/portalis-labs/keygate/core"
	"github.com/portalis-labs/keygate/internal/cose"
	"github.com/portalis-labs/keygate/internal/webauthn"
)

// AuthResult is what a committed authentication hands back.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  core.Identity
}

// BeginAuthentication issues an authentication ceremony. With an empty email
// the ceremony runs in discoverable mode and the credential is resolved from
// the response itself.
func (s *Service) BeginAuthentication(ctx context.Context, email string) (core.CeremonyOptions, error) {
	meta := core.ChallengeMeta{
		Kind:         core.ChallengeAuthentication,
		Email:        email,
		Discoverable: email == "",
	}

	if email != "" {
		identity, err := s.identities.GetIdentityByEmail(ctx, email)
		switch {
		case err == nil:
			meta.IdentityID = identity.ID
		case errors.Is(err, core.ErrIdentityNotFound):
			// An unknown email still gets a syntactically valid ceremony;
			// it fails later with the same error a wrong credential would.
		default:
			return core.CeremonyOptions{}, fmt.Errorf("lookup identity: %w", err)
		}
	}

	challengeID, meta, err := s.issueChallenge(ctx, meta)
	if err != nil {
		return core.CeremonyOptions{}, err
	}
	return s.ceremonyOptions(challengeID, meta, "", email, ""), nil
}

// CompleteAuthentication verifies the assertion, advances the usage counter
// and issues a session. The challenge is consumed regardless of outcome.
func (s *Service) CompleteAuthentication(ctx context.Context, challengeID string, resp core.AssertionResponse) (AuthResult, error) {
	meta, err := s.consumeChallenge(ctx, challengeID, core.ChallengeAuthentication)
	if err != nil {
		return AuthResult{}, err
	}

	credential, err := s.resolveCredential(ctx, meta, resp.CredentialID)
	if err != nil {
		s.audit(ctx, "passkey.authenticate", meta.IdentityID, "credential", resp.CredentialID,
			core.AuditFailure, map[string]string{"reason": "credential not found"})
		return AuthResult{}, err
	}

	clientData, err := base64.RawURLEncoding.DecodeString(resp.ClientDataJSON)
	if err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "client data undecodable")
	}
	if _, err := webauthn.VerifyClientData(clientData, webauthn.CeremonyGet, meta.Challenge, s.cfg.Origins); err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, err.Error())
	}

	authDataRaw, err := base64.RawURLEncoding.DecodeString(resp.AuthenticatorData)
	if err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "authenticator data undecodable")
	}
	authData, err := webauthn.ParseAuthenticatorData(authDataRaw)
	if err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, err.Error())
	}
	if !authData.UserPresent() {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "user presence flag absent")
	}
	if s.cfg.RequireUserVerification && !authData.UserVerified() {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "user verification flag absent")
	}

	signature, err := base64.RawURLEncoding.DecodeString(resp.Signature)
	if err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "signature undecodable")
	}

	publicKeyWire, err := s.storedPublicKey(credential)
	if err != nil {
		return AuthResult{}, fmt.Errorf("reconstruct public key: %w", err)
	}
	if err := webauthn.VerifyAssertion(publicKeyWire, authDataRaw, clientData, signature); err != nil {
		return AuthResult{}, s.authenticationFailure(ctx, credential, "assertion signature invalid")
	}

	// Counterless authenticators report zero forever; any authenticator
	// that has started counting must advance strictly.
	if authData.Counter != 0 || credential.UsageCounter != 0 {
		if authData.Counter <= credential.UsageCounter {
			s.audit(ctx, "passkey.authenticate", credential.IdentityID, "credential", credential.ID,
				core.AuditFailure, map[string]string{"reason": "counter regression"})
			return AuthResult{}, core.ErrCounterRegression
		}
		if err := s.identities.AdvanceCounter(ctx, credential.ID, authData.Counter, s.now()); err != nil {
			return AuthResult{}, fmt.Errorf("advance counter: %w", err)
		}
	} else {
		if err := s.identities.AdvanceCounter(ctx, credential.ID, 0, s.now()); err != nil {
			return AuthResult{}, fmt.Errorf("touch credential: %w", err)
		}
	}

	identity, err := s.identities.GetIdentity(ctx, credential.IdentityID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("load identity: %w", err)
	}

	token, expiresAt, err := s.issueSession(ctx, identity)
	if err != nil {
		return AuthResult{}, err
	}

	s.audit(ctx, "passkey.authenticate", identity.ID, "credential", credential.ID,
		core.AuditSuccess, nil)

	return AuthResult{Token: token, ExpiresAt: expiresAt, Identity: identity}, nil
}

// resolveCredential finds the active credential the assertion claims,
// honoring discoverable vs email-scoped ceremonies.
func (s *Service) resolveCredential(ctx context.Context, meta core.ChallengeMeta, credentialIdentifier string) (core.Credential, error) {
	if credentialIdentifier == "" {
		return core.Credential{}, core.ErrCredentialNotFound
	}

	if meta.Discoverable {
		return s.identities.GetCredentialByIdentifier(ctx, credentialIdentifier)
	}

	if meta.IdentityID == "" {
		// Ceremony was issued for an email no identity owns.
		return core.Credential{}, core.ErrCredentialNotFound
	}
	credentials, err := s.identities.ListActiveCredentials(ctx, meta.IdentityID)
	if err != nil {
		return core.Credential{}, fmt.Errorf("list credentials: %w", err)
	}
	for _, credential := range credentials {
		if credential.CredentialIdentifier == credentialIdentifier {
			return credential, nil
		}
	}
	return core.Credential{}, core.ErrCredentialNotFound
}

// storedPublicKey re-encodes the stored coordinates into wire form for the
// verification primitive.
func (s *Service) storedPublicKey(credential core.Credential) ([]byte, error) {
	xBytes, err := hex.DecodeString(credential.PublicKeyX)
	if err != nil || len(xBytes) != cose.CoordinateSize {
		return nil, fmt.Errorf("stored x coordinate corrupt")
	}
	yBytes, err := hex.DecodeString(credential.PublicKeyY)
	if err != nil || len(yBytes) != cose.CoordinateSize {
		return nil, fmt.Errorf("stored y coordinate corrupt")
	}
	var x, y [cose.CoordinateSize]byte
	copy(x[:], xBytes)
	copy(y[:], yBytes)
	return cose.EncodeEC2PublicKey(x, y), nil
}

// authenticationFailure audits and collapses the cause into the generic
// verification error; callers cannot tell whether the credential existed.
func (s *Service) authenticationFailure(ctx context.Context, credential core.Credential, reason string) error {
	s.audit(ctx, "passkey.authenticate", credential.IdentityID, "credential", credential.ID,
		core.AuditFailure, map[string]string{"reason": reason})
	return core.ErrVerificationFailed
}
