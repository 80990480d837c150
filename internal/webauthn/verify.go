package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/portalis-labs/keygate/internal/cose"
)

var errBadSignature = errors.New("assertion signature does not verify")

// VerifyAssertion checks an assertion signature against a public key in its
// compact binary map form. The signed payload is the raw authenticator data
// concatenated with the SHA-256 hash of the client data, and the signature
// is ASN.1 DER over P-256.
func VerifyAssertion(publicKeyWire, authData, clientDataJSON, signature []byte) error {
	x, y, err := cose.DecodeEC2PublicKey(publicKeyWire)
	if err != nil {
		return err
	}

	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x[:]),
		Y:     new(big.Int).SetBytes(y[:]),
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	payload := make([]byte, 0, len(authData)+len(clientDataHash))
	payload = append(payload, authData...)
	payload = append(payload, clientDataHash[:]...)
	digest := sha256.Sum256(payload)

	if !ecdsa.VerifyASN1(pub, digest[:], signature) {
		return errBadSignature
	}
	return nil
}
