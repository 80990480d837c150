package webauthn

import (
	"errors"
	"fmt"

	"github.com/portalis-labs/keygate/internal/cose"
)

var errBadAttestation = errors.New("malformed attestation object")

// AttestationObject is the envelope a registration response carries. Only
// the authenticator data inside it feeds any invariant; the attestation
// statement is kept for the audit trail.
type AttestationObject struct {
	Format   string
	AuthData *AuthenticatorData
}

// ParseAttestationObject decodes the binary-map envelope around the
// authenticator data of a registration response.
func ParseAttestationObject(raw []byte) (*AttestationObject, error) {
	r := cose.NewReader(raw)

	entries, err := r.ReadMapLen()
	if err != nil {
		return nil, errBadAttestation
	}

	obj := &AttestationObject{}
	var authData []byte
	for i := 0; i < entries; i++ {
		key, err := r.ReadText()
		if err != nil {
			return nil, errBadAttestation
		}
		switch key {
		case "fmt":
			if obj.Format, err = r.ReadText(); err != nil {
				return nil, errBadAttestation
			}
		case "authData":
			if authData, err = r.ReadBytes(); err != nil {
				return nil, errBadAttestation
			}
		default:
			// attStmt and any extension entries
			if err = r.Skip(); err != nil {
				return nil, errBadAttestation
			}
		}
	}

	if len(authData) == 0 {
		return nil, errBadAttestation
	}
	parsed, err := ParseAuthenticatorData(authData)
	if err != nil {
		return nil, fmt.Errorf("attestation auth data: %w", err)
	}
	if parsed.Credential == nil {
		return nil, errors.New("attestation without attested credential")
	}
	obj.AuthData = parsed
	return obj, nil
}
