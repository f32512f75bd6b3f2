package keygen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/crypto"
	"github.com/quorumkey/tsc/crypto/secp256k1"
)

func testRng(tag byte) crypto.Rng {
	var seed [32]byte
	seed[0] = tag

	return crypto.NewRng(seed)
}

func TestEvaluateScalarPolynomial(t *testing.T) {
	g := secp256k1.NewGroup()

	// 3 + 2x + x^2 at x = 2 is 11.
	coeffs := []crypto.Scalar{
		g.ScalarFromUint32(3),
		g.ScalarFromUint32(2),
		g.ScalarFromUint32(1),
	}

	res := evaluateScalarPolynomial(g, coeffs, g.ScalarFromUint32(2))
	require.True(t, res.Equal(g.ScalarFromUint32(11)))
}

func TestEvaluateScalarPolynomial_ResultDoesNotAliasCoefficient(t *testing.T) {
	g := secp256k1.NewGroup()

	coeffs := []crypto.Scalar{g.ScalarFromUint32(5)}

	res := evaluateScalarPolynomial(g, coeffs, g.ScalarFromUint32(7))
	require.True(t, res.Equal(g.ScalarFromUint32(5)))

	coeffs[0].Zeroize()
	require.True(t, res.Equal(g.ScalarFromUint32(5)))
}

func TestShareVerification(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(1)

	coeffs := generateCoefficients(g, rng, 2)
	require.Len(t, coeffs, 3)

	comms := commitCoefficients(g, coeffs)

	allIdxs := []ceremony.PartyIdx{1, 2, 3, 4}
	shares := generateShares(g, coeffs, allIdxs)

	for _, idx := range allIdxs {
		require.True(t, verifyShare(g, comms, idx, shares[idx]))
	}

	// A share does not verify for another party's index.
	require.False(t, verifyShare(g, comms, 2, shares[1]))

	// Nor does a tampered one.
	bad := shares[1].Add(g.ScalarOne())
	require.False(t, verifyShare(g, comms, 1, bad))
}

func TestZKP(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(2)

	var context HashContext
	context[0] = 0xaa

	secret := g.RandomScalar(rng)
	pubkey := g.BaseMul(secret)

	proof := generateZKP(g, rng, secret, 3, context)
	require.True(t, verifyZKP(g, pubkey, proof, 3, context))

	// The proof is bound to the prover's index and the ceremony context.
	require.False(t, verifyZKP(g, pubkey, proof, 4, context))

	var otherContext HashContext
	otherContext[0] = 0xbb
	require.False(t, verifyZKP(g, pubkey, proof, 3, otherContext))

	// And to the claimed public contribution.
	require.False(t, verifyZKP(g, g.BaseMul(g.ScalarOne()), proof, 3, context))
}

func TestHashCommitments(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(3)

	comms := commitCoefficients(g, generateCoefficients(g, rng, 2))

	h1 := hashCommitments(comms)
	h2 := hashCommitments(comms)
	require.Len(t, h1, 32)
	require.Equal(t, h1, h2)

	other := commitCoefficients(g, generateCoefficients(g, rng, 2))
	require.NotEqual(t, h1, hashCommitments(other))
}

func TestAggregatePubkey(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(4)

	comms1 := commitCoefficients(g, generateCoefficients(g, rng, 1))
	comms2 := commitCoefficients(g, generateCoefficients(g, rng, 1))

	pubkey := aggregatePubkey(g, map[ceremony.PartyIdx][]crypto.Point{
		1: comms1,
		2: comms2,
	})

	require.True(t, pubkey.Equal(comms1[0].Add(comms2[0])))
}

func TestAggregatePubkey_PanicsOnReducedThreshold(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(5)

	comms1 := commitCoefficients(g, generateCoefficients(g, rng, 1))

	// A second party cancelling the highest-degree commitment would lower
	// the effective threshold.
	comms2 := []crypto.Point{
		g.BaseMul(g.ScalarOne()),
		g.Identity().Sub(comms1[1]),
	}

	require.Panics(t, func() {
		aggregatePubkey(g, map[ceremony.PartyIdx][]crypto.Point{
			1: comms1,
			2: comms2,
		})
	})
}

func TestDerivePartyPublicKeys(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(6)

	allIdxs := []ceremony.PartyIdx{1, 2, 3, 4}

	commitments := map[ceremony.PartyIdx][]crypto.Point{}
	for _, idx := range allIdxs {
		commitments[idx] = commitCoefficients(g, generateCoefficients(g, rng, 2))
	}

	pubkeys := derivePartyPublicKeys(g, allIdxs, commitments)
	require.Len(t, pubkeys, len(allIdxs))

	for _, idx := range allIdxs {
		expected := g.Identity()
		for _, comms := range commitments {
			expected = expected.Add(evaluateCommitments(g, comms, idx))
		}

		require.True(t, pubkeys[idx].Equal(expected))
	}
}

func TestSharesMatchDerivedPublicKeys(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(7)

	allIdxs := []ceremony.PartyIdx{1, 2, 3}

	coeffs := map[ceremony.PartyIdx][]crypto.Scalar{}
	commitments := map[ceremony.PartyIdx][]crypto.Point{}

	for _, idx := range allIdxs {
		coeffs[idx] = generateCoefficients(g, rng, 1)
		commitments[idx] = commitCoefficients(g, coeffs[idx])
	}

	pubkeys := derivePartyPublicKeys(g, allIdxs, commitments)

	// Every party's summed share must land exactly on its derived public
	// key.
	for _, idx := range allIdxs {
		share := g.ScalarZero()
		for _, dealer := range allIdxs {
			shares := generateShares(g, coeffs[dealer], allIdxs)
			share = share.Add(shares[idx])
		}

		require.True(t, g.BaseMul(share).Equal(pubkeys[idx]))
	}
}
