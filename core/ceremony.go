package core

import "time"

// ChallengeKind distinguishes the two ceremony flavours.
type ChallengeKind string

const (
	ChallengeRegistration   ChallengeKind = "registration"
	ChallengeAuthentication ChallengeKind = "authentication"
)

// ChallengeMeta is the ephemeral, single-use state stored between issuing
// ceremony options and verifying the authenticator response. Discoverable is
// true when no email was supplied and the credential must be resolved from
// the response itself.
type ChallengeMeta struct {
	Kind         ChallengeKind `json:"kind"`
	Challenge    string        `json:"challenge"` // base64url, authenticator-opaque
	Discoverable bool          `json:"discoverable"`
	Email        string        `json:"email,omitempty"`
	IdentityID   string        `json:"identity_id,omitempty"`
	DisplayName  string        `json:"display_name,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// CeremonyOptions is the structured record handed to the client to drive the
// platform authenticator. The challenge value inside mirrors the stored meta.
type CeremonyOptions struct {
	ChallengeID      string        `json:"challenge_id"`
	Challenge        string        `json:"challenge"`
	RelyingPartyID   string        `json:"rp_id"`
	RelyingPartyName string        `json:"rp_name,omitempty"`
	UserID           string        `json:"user_id,omitempty"`
	UserName         string        `json:"user_name,omitempty"`
	UserDisplayName  string        `json:"user_display_name,omitempty"`
	Timeout          time.Duration `json:"timeout"`
	UserVerification string        `json:"user_verification"`
}

// AttestationResponse is the authenticator's answer to a registration
// ceremony. Binary fields are base64url encoded by the client.
type AttestationResponse struct {
	CredentialID      string   `json:"credential_id"`
	ClientDataJSON    string   `json:"client_data_json"`
	AttestationObject string   `json:"attestation_object"`
	Transports        []string `json:"transports,omitempty"`
}

// AssertionResponse is the authenticator's answer to an authentication
// ceremony.
type AssertionResponse struct {
	CredentialID      string `json:"credential_id"`
	ClientDataJSON    string `json:"client_data_json"`
	AuthenticatorData string `json:"authenticator_data"`
	Signature         string `json:"signature"`
	UserHandle        string `json:"user_handle,omitempty"`
}
