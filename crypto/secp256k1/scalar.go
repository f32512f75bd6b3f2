package secp256k1

import (
	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

// Scalar is an element of the secp256k1 scalar field.
//
// - implements crypto.Scalar
type Scalar struct {
	v dcrec.ModNScalar
}

func newScalar(v *dcrec.ModNScalar) *Scalar {
	s := &Scalar{}
	s.v.Set(v)

	return s
}

// Add implements crypto.Scalar.
func (s *Scalar) Add(other crypto.Scalar) crypto.Scalar {
	res := newScalar(&s.v)
	res.v.Add(&other.(*Scalar).v)

	return res
}

// Sub implements crypto.Scalar.
func (s *Scalar) Sub(other crypto.Scalar) crypto.Scalar {
	neg := newScalar(&other.(*Scalar).v)
	neg.v.Negate()
	neg.v.Add(&s.v)

	return neg
}

// Mul implements crypto.Scalar.
func (s *Scalar) Mul(other crypto.Scalar) crypto.Scalar {
	res := newScalar(&s.v)
	res.v.Mul(&other.(*Scalar).v)

	return res
}

// Invert implements crypto.Scalar.
func (s *Scalar) Invert() (crypto.Scalar, error) {
	if s.v.IsZero() {
		return nil, xerrors.New("zero scalar has no inverse")
	}

	res := newScalar(&s.v)
	res.v.InverseNonConst()

	return res, nil
}

// IsZero implements crypto.Scalar.
func (s *Scalar) IsZero() bool {
	return s.v.IsZero()
}

// Equal implements crypto.Scalar.
func (s *Scalar) Equal(other crypto.Scalar) bool {
	return s.v.Equals(&other.(*Scalar).v)
}

// Bytes implements crypto.Scalar.
func (s *Scalar) Bytes() []byte {
	b := s.v.Bytes()

	return b[:]
}

// Zeroize implements crypto.Scalar.
func (s *Scalar) Zeroize() {
	s.v.Zero()
}
