// Package webauthn implements the raw primitives of the passkey ceremonies:
// authenticator-data parsing, client-data checks and assertion signature
// verification over P-256. It deliberately stops at the byte level; ceremony
// sequencing lives in the service layer.
package webauthn

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/portalis-labs/keygate/internal/cose"
)

// Authenticator data flag bits.
const (
	FlagUserPresent        byte = 0x01
	FlagUserVerified       byte = 0x04
	FlagAttestedCredential byte = 0x40
)

const (
	rpIDHashSize   = 32
	flagsOffset    = rpIDHashSize
	counterOffset  = flagsOffset + 1
	minAuthDataLen = counterOffset + 4
	aaguidSize     = 16
)

var errTruncatedAuthData = errors.New("truncated authenticator data")

// AttestedCredential is present only when the attested-credential flag is
// set, i.e. during registration.
type AttestedCredential struct {
	AAGUID       [aaguidSize]byte
	CredentialID []byte
	PublicKey    []byte // compact binary map form, fed to cose.DecodeEC2PublicKey
}

// AuthenticatorData is the fixed-layout prefix every authenticator response
// carries: RP ID hash, flags, a big-endian usage counter, and optionally the
// attested credential.
type AuthenticatorData struct {
	RPIDHash   [rpIDHashSize]byte
	Flags      byte
	Counter    uint32
	Credential *AttestedCredential

	// Raw keeps the exact bytes for signature verification.
	Raw []byte
}

// UserPresent reports whether the user-presence flag is set.
func (a *AuthenticatorData) UserPresent() bool {
	return a.Flags&FlagUserPresent != 0
}

// UserVerified reports whether the user-verification flag is set.
func (a *AuthenticatorData) UserVerified() bool {
	return a.Flags&FlagUserVerified != 0
}

// ParseAuthenticatorData decodes the raw authenticator data blob.
func ParseAuthenticatorData(raw []byte) (*AuthenticatorData, error) {
	if len(raw) < minAuthDataLen {
		return nil, errTruncatedAuthData
	}

	data := &AuthenticatorData{
		Flags:   raw[flagsOffset],
		Counter: binary.BigEndian.Uint32(raw[counterOffset:]),
		Raw:     raw,
	}
	copy(data.RPIDHash[:], raw[:rpIDHashSize])

	if data.Flags&FlagAttestedCredential == 0 {
		return data, nil
	}

	rest := raw[minAuthDataLen:]
	if len(rest) < aaguidSize+2 {
		return nil, errTruncatedAuthData
	}

	cred := &AttestedCredential{}
	copy(cred.AAGUID[:], rest[:aaguidSize])
	rest = rest[aaguidSize:]

	idLen := int(binary.BigEndian.Uint16(rest))
	rest = rest[2:]
	if len(rest) < idLen {
		return nil, errTruncatedAuthData
	}
	cred.CredentialID = rest[:idLen]
	rest = rest[idLen:]

	keyLen, err := cose.ItemLength(rest)
	if err != nil {
		return nil, fmt.Errorf("credential public key: %w", err)
	}
	cred.PublicKey = rest[:keyLen]

	data.Credential = cred
	return data, nil
}
