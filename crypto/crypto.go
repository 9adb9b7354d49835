// Package crypto implements the abstract hash/sign/verify operations
// spec.md leaves to an external collaborator ("the choice of hash
// primitive... and signature scheme... the core only requires the
// abstract operations"). SHA-256 is used for hashing, exactly as the
// original Python reference (`hashlib.sha256`). For signing, the original
// reference uses ECDSA over P-192; Go's standard library elliptic curve
// set starts at P-224, so P-224 stands in as the closest available curve.
// Every size that downstream wire formats depend on (PublicKeySize,
// SignatureSize) is derived from the curve at init time, so the rest of
// the system never hardcodes a width.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/kma-coin/kmacoin/common"
)

// Curve is the elliptic curve backing every key pair in the system.
var Curve = elliptic.P224()

var (
	coordSize = (Curve.Params().BitSize + 7) / 8

	// PublicKeySize is the width, in bytes, of a serialized public key
	// (raw X||Y, no ASN.1 framing, mirroring the Python `ecdsa` package's
	// `to_string()` representation).
	PublicKeySize = 2 * coordSize

	// PrivateKeySize is the width, in bytes, of a serialized private key.
	PrivateKeySize = coordSize

	// SignatureSize is the width, in bytes, of a serialized signature
	// (raw R||S).
	SignatureSize = 2 * coordSize
)

// PrivateKey wraps an ECDSA private key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey wraps an ECDSA public key.
type PublicKey struct {
	key *ecdsa.PublicKey
}

// Hash is the global hash function used throughout the system: block IDs,
// transaction IDs and the proof-of-work check are all `Hash(serialize(x))`.
func Hash(data []byte) common.Hash {
	return sha256.Sum256(data)
}

// GenerateKey creates a new private/public key pair.
func GenerateKey() (*PrivateKey, *PublicKey, error) {
	key, err := ecdsa.GenerateKey(Curve, rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	priv := &PrivateKey{key: key}
	pub := &PublicKey{key: &key.PublicKey}
	return priv, pub, nil
}

// Sign signs data with the given private key, returning a fixed-width
// raw R||S signature.
func Sign(priv *PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, priv.key, digest[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, SignatureSize)
	r.FillBytes(sig[:coordSize])
	s.FillBytes(sig[coordSize:])
	return sig, nil
}

// Verify reports whether sig is a valid signature of data under pub. Any
// malformed signature (wrong length) is simply rejected, never panics,
// since it may arrive from an untrusted peer.
func Verify(pub *PublicKey, sig []byte, data []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	r := new(big.Int).SetBytes(sig[:coordSize])
	s := new(big.Int).SetBytes(sig[coordSize:])
	digest := sha256.Sum256(data)
	return ecdsa.Verify(pub.key, digest[:], r, s)
}

// PrivateKeyToBytes serializes a private key to its fixed-width scalar
// representation.
func PrivateKeyToBytes(priv *PrivateKey) []byte {
	b := make([]byte, PrivateKeySize)
	priv.key.D.FillBytes(b)
	return b
}

// PublicKeyToBytes serializes a public key to its fixed-width X||Y
// representation. This is the "owner" bytes embedded in every Coin.
func PublicKeyToBytes(pub *PublicKey) []byte {
	b := make([]byte, PublicKeySize)
	pub.key.X.FillBytes(b[:coordSize])
	pub.key.Y.FillBytes(b[coordSize:])
	return b
}

// BytesToPrivateKey loads a private key from its serialized scalar, also
// deriving the corresponding public point.
func BytesToPrivateKey(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, errInvalidKeyLength
	}
	d := new(big.Int).SetBytes(b)
	x, y := Curve.ScalarBaseMult(b)
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: Curve, X: x, Y: y},
		D:         d,
	}
	return &PrivateKey{key: key}, nil
}

// BytesToPublicKey loads a public key from its serialized X||Y bytes.
func BytesToPublicKey(b []byte) (*PublicKey, error) {
	if len(b) != PublicKeySize {
		return nil, errInvalidKeyLength
	}
	x := new(big.Int).SetBytes(b[:coordSize])
	y := new(big.Int).SetBytes(b[coordSize:])
	if !Curve.IsOnCurve(x, y) {
		return nil, errPointNotOnCurve
	}
	return &PublicKey{key: &ecdsa.PublicKey{Curve: Curve, X: x, Y: y}}, nil
}

// Public returns the public key matching priv.
func (priv *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: &priv.key.PublicKey}
}
