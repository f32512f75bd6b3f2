package ed25519

import (
	"crypto/sha512"

	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

// Solana style batches stay well below this.
const maxPayloads = 100

// Scheme signs arbitrary messages with an ed25519 Schnorr signature.
//
// - implements crypto.Scheme
type Scheme struct {
	group Group
}

// NewScheme returns the ed25519 signing scheme.
func NewScheme() Scheme {
	return Scheme{group: NewGroup()}
}

// Name implements crypto.Scheme.
func (Scheme) Name() string {
	return "ed25519"
}

// Group implements crypto.Scheme.
func (s Scheme) Group() crypto.Group {
	return s.group
}

// BuildChallenge implements crypto.Scheme.
func (s Scheme) BuildChallenge(pubkey, nonceCommitment crypto.Point,
	payload crypto.SigningPayload) crypto.Scalar {

	h := sha512.New()
	h.Write(nonceCommitment.Bytes())
	h.Write(pubkey.Bytes())
	h.Write(payload)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return s.group.ScalarFromBytes(digest)
}

// BuildResponse implements crypto.Scheme.
func (Scheme) BuildResponse(nonce, secret, challenge crypto.Scalar) crypto.Scalar {
	return nonce.Add(secret.Mul(challenge))
}

// IsPartyResponseValid implements crypto.Scheme.
func (s Scheme) IsPartyResponseValid(y crypto.Point, lambda crypto.Scalar,
	commitment crypto.Point, challenge, response crypto.Scalar) bool {

	lhs := s.group.BaseMul(response)
	rhs := commitment.Add(y.Mul(challenge.Mul(lambda)))

	return lhs.Equal(rhs)
}

// VerifySignature implements crypto.Scheme.
func (s Scheme) VerifySignature(sig crypto.Signature, pubkey crypto.Point,
	payload crypto.SigningPayload) error {

	if sig.R == nil || sig.Z == nil || sig.R.IsIdentity() || sig.Z.IsZero() {
		return xerrors.Errorf("degenerate signature: %w", crypto.ErrInvalidSignature)
	}

	challenge := s.BuildChallenge(pubkey, sig.R, payload)

	lhs := s.group.BaseMul(sig.Z)
	rhs := sig.R.Add(pubkey.Mul(challenge))

	if !lhs.Equal(rhs) {
		return crypto.ErrInvalidSignature
	}

	return nil
}

// IsPubkeyCompatible implements crypto.Scheme. Every valid ed25519 point is
// accepted.
func (Scheme) IsPubkeyCompatible(pubkey crypto.Point) bool {
	return !pubkey.IsIdentity()
}

// VerifyPayloads implements crypto.Scheme.
func (Scheme) VerifyPayloads(payloads []crypto.SigningPayload) error {
	if len(payloads) == 0 || len(payloads) > maxPayloads {
		return xerrors.Errorf("expected between 1 and %d payloads, got %d",
			maxPayloads, len(payloads))
	}

	for i, payload := range payloads {
		if len(payload) == 0 {
			return xerrors.Errorf("payload %d is empty", i)
		}
	}

	return nil
}
