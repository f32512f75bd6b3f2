package secp256k1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumkey/tsc/crypto"
)

// runs the scheme as a single signer with lambda = 1, the degenerate case of
// the threshold protocol.
func signSingleParty(t *testing.T, scheme crypto.Scheme,
	payload crypto.SigningPayload, seed byte) (crypto.Signature, crypto.Point) {

	g := scheme.Group()
	rng := crypto.NewRng([32]byte{seed})

	var secret crypto.Scalar
	var pubkey crypto.Point
	for {
		secret = g.RandomScalar(rng)
		pubkey = g.BaseMul(secret)

		if scheme.IsPubkeyCompatible(pubkey) {
			break
		}
	}

	nonce := g.RandomScalar(rng)
	commitment := g.BaseMul(nonce)

	challenge := scheme.BuildChallenge(pubkey, commitment, payload)
	response := scheme.BuildResponse(nonce, secret, challenge)

	require.True(t, scheme.IsPartyResponseValid(
		pubkey, g.ScalarOne(), commitment, challenge, response))

	return crypto.Signature{R: commitment, Z: response}, pubkey
}

func TestEvmScheme_SignAndVerify(t *testing.T) {
	scheme := NewEvmScheme()
	payload := make(crypto.SigningPayload, 32)
	payload[0] = 42

	sig, pubkey := signSingleParty(t, scheme, payload, 1)

	require.NoError(t, scheme.VerifySignature(sig, pubkey, payload))

	other := make(crypto.SigningPayload, 32)
	require.ErrorIs(t, scheme.VerifySignature(sig, pubkey, other), crypto.ErrInvalidSignature)
}

func TestBitcoinScheme_SignAndVerify(t *testing.T) {
	scheme := NewBitcoinScheme()
	payload := make(crypto.SigningPayload, 32)
	payload[31] = 7

	sig, pubkey := signSingleParty(t, scheme, payload, 2)

	require.NoError(t, scheme.VerifySignature(sig, pubkey, payload))

	other := make(crypto.SigningPayload, 32)
	require.ErrorIs(t, scheme.VerifySignature(sig, pubkey, other), crypto.ErrInvalidSignature)
}

func TestEvmScheme_VerifyPayloads(t *testing.T) {
	scheme := NewEvmScheme()

	require.NoError(t, scheme.VerifyPayloads(
		[]crypto.SigningPayload{make(crypto.SigningPayload, 32)}))

	err := scheme.VerifyPayloads([]crypto.SigningPayload{
		make(crypto.SigningPayload, 32),
		make(crypto.SigningPayload, 32),
	})
	require.Error(t, err)

	err = scheme.VerifyPayloads([]crypto.SigningPayload{make(crypto.SigningPayload, 16)})
	require.Error(t, err)
}

func TestBitcoinScheme_VerifyPayloads(t *testing.T) {
	scheme := NewBitcoinScheme()

	payloads := []crypto.SigningPayload{
		make(crypto.SigningPayload, 32),
		make(crypto.SigningPayload, 32),
	}
	require.NoError(t, scheme.VerifyPayloads(payloads))

	require.Error(t, scheme.VerifyPayloads(nil))

	payloads[1] = make(crypto.SigningPayload, 31)
	require.Error(t, scheme.VerifyPayloads(payloads))
}

func TestBitcoinScheme_IsPubkeyCompatible(t *testing.T) {
	scheme := NewBitcoinScheme()
	g := scheme.Group()
	rng := crypto.NewRng([32]byte{9})

	require.False(t, scheme.IsPubkeyCompatible(g.Identity()))

	// Negating a key flips the y parity, so exactly one of the pair is
	// accepted.
	secret := g.RandomScalar(rng)
	pubkey := g.BaseMul(secret)
	negated := g.BaseMul(g.ScalarZero().Sub(secret))

	require.NotEqual(t,
		scheme.IsPubkeyCompatible(pubkey),
		scheme.IsPubkeyCompatible(negated))
}

func TestSchemes_DegenerateSignatures(t *testing.T) {
	scheme := NewEvmScheme()
	g := scheme.Group()
	payload := make(crypto.SigningPayload, 32)
	pubkey := g.BaseMul(g.ScalarOne())

	err := scheme.VerifySignature(crypto.Signature{}, pubkey, payload)
	require.ErrorIs(t, err, crypto.ErrInvalidSignature)

	err = scheme.VerifySignature(crypto.Signature{
		R: g.Identity(),
		Z: g.ScalarOne(),
	}, pubkey, payload)
	require.ErrorIs(t, err, crypto.ErrInvalidSignature)
}
