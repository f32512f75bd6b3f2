package secp256k1

import (
	"encoding/hex"

	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/crypto"
)

const evmPayloadLen = 32

// halfOrder is floor(N / 2) for the secp256k1 group order. Aggregate keys
// whose x coordinate is above it cannot be used by the on-chain verifier.
var halfOrder = mustHexBytes("7fffffffffffffffffffffffffffffff5d576e7357a4501ddfe92f46681b20a0")

// EvmScheme signs 32-byte digests for EVM chains. The challenge binds the
// public key, the payload and the Ethereum address of the nonce commitment,
// matching how an on-chain contract recomputes it with ecrecover.
//
// - implements crypto.Scheme
type EvmScheme struct {
	group Group
}

// NewEvmScheme returns the EVM signing scheme.
func NewEvmScheme() EvmScheme {
	return EvmScheme{group: NewGroup()}
}

// Name implements crypto.Scheme.
func (EvmScheme) Name() string {
	return "evm"
}

// Group implements crypto.Scheme.
func (s EvmScheme) Group() crypto.Group {
	return s.group
}

// BuildChallenge implements crypto.Scheme.
func (s EvmScheme) BuildChallenge(pubkey, nonceCommitment crypto.Point,
	payload crypto.SigningPayload) crypto.Scalar {

	comp := pubkey.Bytes()

	var data []byte
	data = append(data, comp[1:]...)     // x coordinate
	data = append(data, comp[0]&1)       // y parity
	data = append(data, payload...)
	data = append(data, nonceAddress(nonceCommitment)...)

	var digest [32]byte
	copy(digest[:], ethcrypto.Keccak256(data))

	return s.group.ScalarFromBytes(digest)
}

// BuildResponse implements crypto.Scheme. The verifier contract expects the
// subtraction convention.
func (EvmScheme) BuildResponse(nonce, secret, challenge crypto.Scalar) crypto.Scalar {
	return nonce.Sub(secret.Mul(challenge))
}

// IsPartyResponseValid implements crypto.Scheme.
func (s EvmScheme) IsPartyResponseValid(y crypto.Point, lambda crypto.Scalar,
	commitment crypto.Point, challenge, response crypto.Scalar) bool {

	// G * z == R_i - y * (c * lambda)
	lhs := s.group.BaseMul(response)
	rhs := commitment.Sub(y.Mul(challenge.Mul(lambda)))

	return lhs.Equal(rhs)
}

// VerifySignature implements crypto.Scheme.
func (s EvmScheme) VerifySignature(sig crypto.Signature, pubkey crypto.Point,
	payload crypto.SigningPayload) error {

	if sig.R == nil || sig.Z == nil || sig.R.IsIdentity() || sig.Z.IsZero() {
		return xerrors.Errorf("degenerate signature: %w", crypto.ErrInvalidSignature)
	}

	challenge := s.BuildChallenge(pubkey, sig.R, payload)

	lhs := s.group.BaseMul(sig.Z).Add(pubkey.Mul(challenge))
	if !lhs.Equal(sig.R) {
		return crypto.ErrInvalidSignature
	}

	return nil
}

// IsPubkeyCompatible implements crypto.Scheme.
func (EvmScheme) IsPubkeyCompatible(pubkey crypto.Point) bool {
	if pubkey.IsIdentity() {
		return false
	}

	x := pubkey.Bytes()[1:]

	for i := range x {
		if x[i] != halfOrder[i] {
			return x[i] < halfOrder[i]
		}
	}

	return false
}

// VerifyPayloads implements crypto.Scheme. EVM ceremonies sign exactly one
// 32-byte digest.
func (EvmScheme) VerifyPayloads(payloads []crypto.SigningPayload) error {
	if len(payloads) != 1 {
		return xerrors.Errorf("expected a single payload, got %d", len(payloads))
	}

	if len(payloads[0]) != evmPayloadLen {
		return xerrors.Errorf("expected a %d-byte payload, got %d bytes",
			evmPayloadLen, len(payloads[0]))
	}

	return nil
}

// nonceAddress derives the Ethereum address of a nonce commitment.
func nonceAddress(commitment crypto.Point) []byte {
	p := commitment.(*Point)

	x := new(dcrec.FieldVal).Set(&p.v.X)
	y := new(dcrec.FieldVal).Set(&p.v.Y)

	uncompressed := dcrec.NewPublicKey(x, y).SerializeUncompressed()

	return ethcrypto.Keccak256(uncompressed[1:])[12:]
}

func mustHexBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}
