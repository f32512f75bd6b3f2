// Package ed25519 provides the edwards25519 group and a Schnorr scheme with
// the classic SHA-512 challenge over (R, A, M).
package ed25519

import (
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

var suite = edwards25519.NewBlakeSHA256Ed25519()

// Scalar is an element of the ed25519 scalar field.
//
// - implements crypto.Scalar
type Scalar struct {
	v kyber.Scalar
}

// Add implements crypto.Scalar.
func (s Scalar) Add(other crypto.Scalar) crypto.Scalar {
	return Scalar{v: suite.Scalar().Add(s.v, other.(Scalar).v)}
}

// Sub implements crypto.Scalar.
func (s Scalar) Sub(other crypto.Scalar) crypto.Scalar {
	return Scalar{v: suite.Scalar().Sub(s.v, other.(Scalar).v)}
}

// Mul implements crypto.Scalar.
func (s Scalar) Mul(other crypto.Scalar) crypto.Scalar {
	return Scalar{v: suite.Scalar().Mul(s.v, other.(Scalar).v)}
}

// Invert implements crypto.Scalar.
func (s Scalar) Invert() (crypto.Scalar, error) {
	if s.IsZero() {
		return nil, xerrors.New("zero scalar has no inverse")
	}

	return Scalar{v: suite.Scalar().Inv(s.v)}, nil
}

// IsZero implements crypto.Scalar.
func (s Scalar) IsZero() bool {
	return s.v.Equal(suite.Scalar().Zero())
}

// Equal implements crypto.Scalar.
func (s Scalar) Equal(other crypto.Scalar) bool {
	return s.v.Equal(other.(Scalar).v)
}

// Bytes implements crypto.Scalar.
func (s Scalar) Bytes() []byte {
	data, err := s.v.MarshalBinary()
	if err != nil {
		panic("scalar marshaling cannot fail: " + err.Error())
	}

	return data
}

// Zeroize implements crypto.Scalar.
func (s Scalar) Zeroize() {
	s.v.Zero()
}

// Point is a point on the edwards25519 curve.
//
// - implements crypto.Point
type Point struct {
	v kyber.Point
}

// Add implements crypto.Point.
func (p Point) Add(other crypto.Point) crypto.Point {
	return Point{v: suite.Point().Add(p.v, other.(Point).v)}
}

// Sub implements crypto.Point.
func (p Point) Sub(other crypto.Point) crypto.Point {
	return Point{v: suite.Point().Sub(p.v, other.(Point).v)}
}

// Mul implements crypto.Point.
func (p Point) Mul(s crypto.Scalar) crypto.Point {
	return Point{v: suite.Point().Mul(s.(Scalar).v, p.v)}
}

// IsIdentity implements crypto.Point.
func (p Point) IsIdentity() bool {
	return p.v.Equal(suite.Point().Null())
}

// Equal implements crypto.Point.
func (p Point) Equal(other crypto.Point) bool {
	return p.v.Equal(other.(Point).v)
}

// Bytes implements crypto.Point.
func (p Point) Bytes() []byte {
	data, err := p.v.MarshalBinary()
	if err != nil {
		panic("point marshaling cannot fail: " + err.Error())
	}

	return data
}

// Group exposes ed25519 scalar and point constructors.
//
// - implements crypto.Group
type Group struct{}

// NewGroup returns the edwards25519 group.
func NewGroup() Group {
	return Group{}
}

// Identity implements crypto.Group.
func (Group) Identity() crypto.Point {
	return Point{v: suite.Point().Null()}
}

// ScalarZero implements crypto.Group.
func (Group) ScalarZero() crypto.Scalar {
	return Scalar{v: suite.Scalar().Zero()}
}

// ScalarOne implements crypto.Group.
func (Group) ScalarOne() crypto.Scalar {
	return Scalar{v: suite.Scalar().One()}
}

// ScalarFromUint32 implements crypto.Group.
func (Group) ScalarFromUint32(v uint32) crypto.Scalar {
	return Scalar{v: suite.Scalar().SetInt64(int64(v))}
}

// ScalarFromBytes implements crypto.Group.
func (Group) ScalarFromBytes(b [32]byte) crypto.Scalar {
	return Scalar{v: suite.Scalar().SetBytes(b[:])}
}

// RandomScalar implements crypto.Group.
func (Group) RandomScalar(rng crypto.Rng) crypto.Scalar {
	return Scalar{v: suite.Scalar().Pick(rng)}
}

// BaseMul implements crypto.Group.
func (Group) BaseMul(s crypto.Scalar) crypto.Point {
	return Point{v: suite.Point().Mul(s.(Scalar).v, nil)}
}

// DeserializeScalar implements crypto.Group.
func (Group) DeserializeScalar(data []byte) (crypto.Scalar, error) {
	s := suite.Scalar()

	err := s.UnmarshalBinary(data)
	if err != nil {
		return nil, xerrors.Errorf("parsing scalar: %v: %w", err, crypto.ErrDeserialization)
	}

	return Scalar{v: s}, nil
}

// DeserializePoint implements crypto.Group.
func (Group) DeserializePoint(data []byte) (crypto.Point, error) {
	p := suite.Point()

	err := p.UnmarshalBinary(data)
	if err != nil {
		return nil, xerrors.Errorf("parsing point: %v: %w", err, crypto.ErrDeserialization)
	}

	return Point{v: p}, nil
}
