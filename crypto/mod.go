// Package crypto defines the elliptic-curve abstraction used by the keygen
// and signing ceremonies. A Scheme bundles a curve group with the
// chain-specific challenge, response and verification rules so that the
// protocol code is written once and instantiated per chain.
package crypto

import (
	"golang.org/x/xerrors"
)

// Scalar is an element of the group's scalar field. Operations return new
// values and never mutate the receiver, except Zeroize.
type Scalar interface {
	Add(Scalar) Scalar
	Sub(Scalar) Scalar
	Mul(Scalar) Scalar

	// Invert returns the multiplicative inverse, or an error for zero.
	Invert() (Scalar, error)

	IsZero() bool
	Equal(Scalar) bool

	// Bytes returns the canonical fixed-width encoding of the group.
	Bytes() []byte

	// Zeroize clears the underlying representation. The scalar must not be
	// used afterwards.
	Zeroize()
}

// Point is an element of the curve group.
type Point interface {
	Add(Point) Point
	Sub(Point) Point

	// Mul returns the point multiplied by the given scalar.
	Mul(Scalar) Point

	IsIdentity() bool
	Equal(Point) bool

	// Bytes returns the canonical compressed encoding.
	Bytes() []byte
}

// Group provides constructors for scalars and points of one curve.
type Group interface {
	// Identity returns the neutral element of the group.
	Identity() Point

	// ScalarZero and ScalarOne return the additive and multiplicative
	// neutral scalars.
	ScalarZero() Scalar
	ScalarOne() Scalar

	// ScalarFromUint32 lifts a party index into the scalar field.
	ScalarFromUint32(uint32) Scalar

	// ScalarFromBytes interprets 32 bytes as an integer reduced modulo the
	// group order. Used to map hash digests to challenge scalars.
	ScalarFromBytes(b [32]byte) Scalar

	// RandomScalar samples a scalar from the given stream.
	RandomScalar(rng Rng) Scalar

	// BaseMul returns the generator multiplied by the scalar.
	BaseMul(Scalar) Point

	DeserializeScalar(data []byte) (Scalar, error)
	DeserializePoint(data []byte) (Point, error)
}

// Signature is a Schnorr signature produced by a signing ceremony. R is the
// group nonce commitment and Z the aggregated response.
type Signature struct {
	R Point
	Z Scalar
}

// Scheme describes one supported chain's signing rules on top of a Group.
type Scheme interface {
	// Name returns a short identifier such as "evm" or "bitcoin".
	Name() string

	Group() Group

	// BuildChallenge derives the Schnorr challenge scalar from the public
	// key, the group nonce commitment and the payload.
	BuildChallenge(pubkey Point, nonceCommitment Point, payload SigningPayload) Scalar

	// BuildResponse combines a party's nonce with its effective secret for
	// the given challenge. The sign convention is scheme specific.
	BuildResponse(nonce Scalar, secret Scalar, challenge Scalar) Scalar

	// IsPartyResponseValid checks one party's response against its local
	// public key y, its Lagrange coefficient and its nonce commitment.
	IsPartyResponseValid(y Point, lambda Scalar, commitment Point, challenge Scalar, response Scalar) bool

	// VerifySignature checks the final aggregate signature.
	VerifySignature(sig Signature, pubkey Point, payload SigningPayload) error

	// IsPubkeyCompatible reports whether the chain accepts keys of this
	// form. An incompatible key calls for a fresh keygen rather than a
	// protocol failure.
	IsPubkeyCompatible(pubkey Point) bool

	// VerifyPayloads validates the number and format of payloads requested
	// for one signing ceremony.
	VerifyPayloads(payloads []SigningPayload) error
}

// SigningPayload is a scheme-defined message digest to sign.
type SigningPayload []byte

// KeyShare holds one party's long-term secret share and the aggregate public
// key it belongs to.
type KeyShare struct {
	Y Point
	X Scalar
}

// Zeroize clears the secret share.
func (k *KeyShare) Zeroize() {
	if k.X != nil {
		k.X.Zeroize()
	}
}

// ErrDeserialization is returned when bytes do not decode to a valid group
// element.
var ErrDeserialization = xerrors.New("malformed group element")

// ErrInvalidSignature is returned when a signature fails verification.
var ErrInvalidSignature = xerrors.New("signature verification failed")
