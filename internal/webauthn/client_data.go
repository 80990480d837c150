package webauthn

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
)

// Ceremony type tags inside client data.
const (
	CeremonyCreate = "webauthn.create"
	CeremonyGet    = "webauthn.get"
)

var (
	errClientDataType      = errors.New("client data type mismatch")
	errClientDataChallenge = errors.New("client data challenge mismatch")
	errClientDataOrigin    = errors.New("client data origin not allowed")
)

// ClientData is the JSON document the browser signs over alongside the
// authenticator data.
type ClientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"` // base64url, matches the issued value
	Origin    string `json:"origin"`
}

// VerifyClientData parses raw client data and checks ceremony type, the
// issued challenge, and that the origin is one of the allowed values. An
// empty allow-list accepts any origin (local development).
func VerifyClientData(raw []byte, ceremony, challenge string, origins []string) (*ClientData, error) {
	var cd ClientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, err
	}
	if cd.Type != ceremony {
		return nil, errClientDataType
	}
	if subtle.ConstantTimeCompare([]byte(cd.Challenge), []byte(challenge)) != 1 {
		return nil, errClientDataChallenge
	}
	if len(origins) > 0 {
		allowed := false
		for _, o := range origins {
			if cd.Origin == o {
				allowed = true
				break
			}
		}
		if !allowed {
			return nil, errClientDataOrigin
		}
	}
	return &cd, nil
}
