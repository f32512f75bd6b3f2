// Package secp256k1 provides the secp256k1 group and the schemes built on
// it: an EVM scheme with a keccak based challenge and a Bitcoin scheme
// following the taproot tagged-hash construction.
package secp256k1

import (
	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

const scalarLen = 32

// Group exposes secp256k1 scalar and point constructors.
//
// - implements crypto.Group
type Group struct{}

// NewGroup returns the secp256k1 group.
func NewGroup() Group {
	return Group{}
}

// Identity implements crypto.Group.
func (Group) Identity() crypto.Point {
	return &Point{}
}

// ScalarZero implements crypto.Group.
func (Group) ScalarZero() crypto.Scalar {
	return &Scalar{}
}

// ScalarOne implements crypto.Group.
func (Group) ScalarOne() crypto.Scalar {
	s := &Scalar{}
	s.v.SetInt(1)

	return s
}

// ScalarFromUint32 implements crypto.Group.
func (Group) ScalarFromUint32(v uint32) crypto.Scalar {
	s := &Scalar{}
	s.v.SetInt(v)

	return s
}

// ScalarFromBytes implements crypto.Group.
func (Group) ScalarFromBytes(b [32]byte) crypto.Scalar {
	s := &Scalar{}
	s.v.SetBytes(&b)

	return s
}

// RandomScalar implements crypto.Group.
func (Group) RandomScalar(rng crypto.Rng) crypto.Scalar {
	// Rejection sampling keeps the distribution uniform over the field.
	for {
		var b [32]byte
		rng.XORKeyStream(b[:], b[:])

		s := &Scalar{}
		overflow := s.v.SetBytes(&b)

		if overflow == 0 && !s.v.IsZero() {
			return s
		}
	}
}

// BaseMul implements crypto.Group.
func (Group) BaseMul(s crypto.Scalar) crypto.Point {
	var res dcrec.JacobianPoint
	dcrec.ScalarBaseMultNonConst(&s.(*Scalar).v, &res)

	return newPoint(&res)
}

// DeserializeScalar implements crypto.Group.
func (Group) DeserializeScalar(data []byte) (crypto.Scalar, error) {
	if len(data) != scalarLen {
		return nil, xerrors.Errorf("expected %d bytes, got %d: %w",
			scalarLen, len(data), crypto.ErrDeserialization)
	}

	var b [32]byte
	copy(b[:], data)

	s := &Scalar{}
	if s.v.SetBytes(&b) != 0 {
		return nil, xerrors.Errorf("scalar out of range: %w", crypto.ErrDeserialization)
	}

	return s, nil
}

// DeserializePoint implements crypto.Group.
func (Group) DeserializePoint(data []byte) (crypto.Point, error) {
	return deserializePoint(data)
}
