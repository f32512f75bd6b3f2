package secp256k1

import (
	"crypto/sha256"

	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

const (
	btcPayloadLen = 32

	// One ceremony may sign every input of a transaction at once.
	btcMaxPayloads = 2000

	btcChallengeTag = "BIP0340/challenge"
)

// BitcoinScheme signs 32-byte sighashes with the taproot tagged-hash
// challenge. Aggregate keys must have an even y coordinate so that verifiers
// working from x-only keys reconstruct the same point.
//
// - implements crypto.Scheme
type BitcoinScheme struct {
	group Group
}

// NewBitcoinScheme returns the Bitcoin signing scheme.
func NewBitcoinScheme() BitcoinScheme {
	return BitcoinScheme{group: NewGroup()}
}

// Name implements crypto.Scheme.
func (BitcoinScheme) Name() string {
	return "bitcoin"
}

// Group implements crypto.Scheme.
func (s BitcoinScheme) Group() crypto.Group {
	return s.group
}

// BuildChallenge implements crypto.Scheme.
func (s BitcoinScheme) BuildChallenge(pubkey, nonceCommitment crypto.Point,
	payload crypto.SigningPayload) crypto.Scalar {

	var data []byte
	data = append(data, nonceCommitment.Bytes()[1:]...)
	data = append(data, pubkey.Bytes()[1:]...)
	data = append(data, payload...)

	return s.group.ScalarFromBytes(taggedHash(btcChallengeTag, data))
}

// BuildResponse implements crypto.Scheme.
func (BitcoinScheme) BuildResponse(nonce, secret, challenge crypto.Scalar) crypto.Scalar {
	return nonce.Add(secret.Mul(challenge))
}

// IsPartyResponseValid implements crypto.Scheme.
func (s BitcoinScheme) IsPartyResponseValid(y crypto.Point, lambda crypto.Scalar,
	commitment crypto.Point, challenge, response crypto.Scalar) bool {

	// G * z == R_i + y * (c * lambda)
	lhs := s.group.BaseMul(response)
	rhs := commitment.Add(y.Mul(challenge.Mul(lambda)))

	return lhs.Equal(rhs)
}

// VerifySignature implements crypto.Scheme.
func (s BitcoinScheme) VerifySignature(sig crypto.Signature, pubkey crypto.Point,
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

// IsPubkeyCompatible implements crypto.Scheme.
func (BitcoinScheme) IsPubkeyCompatible(pubkey crypto.Point) bool {
	if pubkey.IsIdentity() {
		return false
	}

	return pubkey.(*Point).hasEvenY()
}

// VerifyPayloads implements crypto.Scheme.
func (BitcoinScheme) VerifyPayloads(payloads []crypto.SigningPayload) error {
	if len(payloads) == 0 || len(payloads) > btcMaxPayloads {
		return xerrors.Errorf("expected between 1 and %d payloads, got %d",
			btcMaxPayloads, len(payloads))
	}

	for i, payload := range payloads {
		if len(payload) != btcPayloadLen {
			return xerrors.Errorf("payload %d: expected %d bytes, got %d",
				i, btcPayloadLen, len(payload))
		}
	}

	return nil
}

func taggedHash(tag string, data []byte) [32]byte {
	tagDigest := sha256.Sum256([]byte(tag))

	h := sha256.New()
	h.Write(tagDigest[:])
	h.Write(tagDigest[:])
	h.Write(data)

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return digest
}
