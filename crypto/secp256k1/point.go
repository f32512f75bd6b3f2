package secp256k1

import (
	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

const compressedLen = 33

// Point is a point on the secp256k1 curve, kept in affine form. The point at
// infinity is represented by zero coordinates.
//
// - implements crypto.Point
type Point struct {
	v dcrec.JacobianPoint
}

func newPoint(v *dcrec.JacobianPoint) *Point {
	p := &Point{}
	p.v.Set(v)

	if p.v.Z.IsZero() {
		p.v.X.SetInt(0)
		p.v.Y.SetInt(0)

		return p
	}

	p.v.ToAffine()

	return p
}

// Add implements crypto.Point.
func (p *Point) Add(other crypto.Point) crypto.Point {
	var res dcrec.JacobianPoint
	dcrec.AddNonConst(&p.v, &other.(*Point).v, &res)

	return newPoint(&res)
}

// Sub implements crypto.Point.
func (p *Point) Sub(other crypto.Point) crypto.Point {
	neg := newPoint(&other.(*Point).v)
	if !neg.IsIdentity() {
		neg.v.Y.Negate(1).Normalize()
	}

	var res dcrec.JacobianPoint
	dcrec.AddNonConst(&p.v, &neg.v, &res)

	return newPoint(&res)
}

// Mul implements crypto.Point.
func (p *Point) Mul(s crypto.Scalar) crypto.Point {
	var res dcrec.JacobianPoint
	dcrec.ScalarMultNonConst(&s.(*Scalar).v, &p.v, &res)

	return newPoint(&res)
}

// IsIdentity implements crypto.Point.
func (p *Point) IsIdentity() bool {
	return p.v.Z.IsZero()
}

// Equal implements crypto.Point.
func (p *Point) Equal(other crypto.Point) bool {
	o := other.(*Point)

	return p.v.X.Equals(&o.v.X) && p.v.Y.Equals(&o.v.Y) && p.v.Z.Equals(&o.v.Z)
}

// Bytes implements crypto.Point. The identity serializes to 33 zero bytes,
// which no valid compressed point can collide with.
func (p *Point) Bytes() []byte {
	if p.IsIdentity() {
		return make([]byte, compressedLen)
	}

	x := new(dcrec.FieldVal).Set(&p.v.X)
	y := new(dcrec.FieldVal).Set(&p.v.Y)

	return dcrec.NewPublicKey(x, y).SerializeCompressed()
}

// hasEvenY reports whether the affine y coordinate is even, as required by
// taproot style verifiers.
func (p *Point) hasEvenY() bool {
	return !p.v.Y.IsOdd()
}

func deserializePoint(data []byte) (*Point, error) {
	if len(data) != compressedLen {
		return nil, xerrors.Errorf("expected %d bytes, got %d: %w",
			compressedLen, len(data), crypto.ErrDeserialization)
	}

	pub, err := dcrec.ParsePubKey(data)
	if err != nil {
		return nil, xerrors.Errorf("parsing point: %v: %w", err, crypto.ErrDeserialization)
	}

	p := &Point{}
	pub.AsJacobian(&p.v)

	return p, nil
}
