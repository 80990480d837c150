// Package chain talks to the wallet factory contract: a read-only address
// lookup for the resolver and a state-changing registration call for the
// on-chain mirror.
package chain

import "github.com/ethereum/go-ethereum/crypto"

// wordSize is the calldata word width.
const wordSize = 32

// selector returns the 4-byte function selector for a signature.
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// credentialWord packs an authenticator-issued identifier into a calldata
// word by right-padding with zero bytes. This must match the convention the
// contract side uses to encode the same identifier; it is a fixed protocol
// choice, not left to the encoder. Identifiers longer than one word keep
// their leading 32 bytes.
func credentialWord(credentialIdentifier string) [wordSize]byte {
	var word [wordSize]byte
	copy(word[:], credentialIdentifier)
	return word
}
