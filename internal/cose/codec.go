// Package cose encodes and decodes the 5-field elliptic-curve public key
// that platform authenticators attach to newly minted credentials.
//
// Decoding accepts whatever well-formed map an authenticator produced.
// Encoding is a hand-specified fixed byte layout rather than a
// general-purpose map encoder: both directions must agree bit-for-bit with
// the subsystem that packs the same key into contract calldata, and a fixed
// schema with two known coordinate lengths makes the full wire image
// knowable in advance.
package cose

import "errors"

// Map labels of the EC2 key schema.
const (
	labelKeyType   = 1
	labelAlgorithm = 3
	labelCurve     = -1
	labelX         = -2
	labelY         = -3

	keyTypeEC2 = 2  // 2-parameter elliptic curve key
	curveP256  = 1  // the one curve this system supports
	algES256   = -7 // informational only, not validated beyond presence
)

// CoordinateSize is the byte length of each affine coordinate.
const CoordinateSize = 32

// EncodedSize is the total wire length produced by EncodeEC2PublicKey.
const EncodedSize = 77

var (
	// ErrUnsupportedKeyType is returned when the key-type tag is not EC2.
	ErrUnsupportedKeyType = errors.New("unsupported key type")

	// ErrUnsupportedCurve is returned when the curve tag is not P-256.
	ErrUnsupportedCurve = errors.New("unsupported curve")

	// ErrMalformedCoordinate is returned when either coordinate is missing,
	// has a length other than 32 bytes, or the surrounding map cannot be
	// decoded at all.
	ErrMalformedCoordinate = errors.New("malformed coordinate")

	// ErrMissingAlgorithm is returned when the algorithm field is absent.
	ErrMissingAlgorithm = errors.New("missing algorithm field")
)

// DecodeEC2PublicKey parses the compact binary map form of an EC2 public key
// and returns its raw affine coordinates.
func DecodeEC2PublicKey(wire []byte) (x, y [CoordinateSize]byte, err error) {
	r := NewReader(wire)

	entries, err := r.ReadMapLen()
	if err != nil {
		return x, y, ErrMalformedCoordinate
	}

	var (
		keyType, curve int64
		sawKeyType     bool
		sawCurve       bool
		sawAlgorithm   bool
		xBytes, yBytes []byte
	)

	for i := 0; i < entries; i++ {
		label, err := r.ReadInt()
		if err != nil {
			return x, y, ErrMalformedCoordinate
		}
		switch label {
		case labelKeyType:
			if keyType, err = r.ReadInt(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
			sawKeyType = true
		case labelAlgorithm:
			if _, err = r.ReadInt(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
			sawAlgorithm = true
		case labelCurve:
			if curve, err = r.ReadInt(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
			sawCurve = true
		case labelX:
			if xBytes, err = r.ReadBytes(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
		case labelY:
			if yBytes, err = r.ReadBytes(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
		default:
			if err = r.Skip(); err != nil {
				return x, y, ErrMalformedCoordinate
			}
		}
	}

	if !sawKeyType || keyType != keyTypeEC2 {
		return x, y, ErrUnsupportedKeyType
	}
	if !sawCurve || curve != curveP256 {
		return x, y, ErrUnsupportedCurve
	}
	if !sawAlgorithm {
		return x, y, ErrMissingAlgorithm
	}
	if len(xBytes) != CoordinateSize || len(yBytes) != CoordinateSize {
		return x, y, ErrMalformedCoordinate
	}

	copy(x[:], xBytes)
	copy(y[:], yBytes)
	return x, y, nil
}

// EncodeEC2PublicKey produces the fixed 77-byte wire image:
// a map header for 5 entries, the four scalar field pairs in label order,
// then each coordinate as a byte-string-of-32 header plus 32 raw bytes.
func EncodeEC2PublicKey(x, y [CoordinateSize]byte) []byte {
	out := make([]byte, 0, EncodedSize)
	out = append(out,
		0xa5,       // map, 5 entries
		0x01, 0x02, // 1: 2 (kty: EC2)
		0x03, 0x26, // 3: -7 (alg: ES256)
		0x20, 0x01, // -1: 1 (crv: P-256)
	)
	out = append(out, 0x21, 0x58, 0x20) // -2: bytes(32)
	out = append(out, x[:]...)
	out = append(out, 0x22, 0x58, 0x20) // -3: bytes(32)
	out = append(out, y[:]...)
	return out
}
