package signing

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

// evalPoly computes f(x) for the scalar polynomial given by coeffs.
func evalPoly(g crypto.Group, coeffs []crypto.Scalar, x uint32) crypto.Scalar {
	res := g.ScalarZero().Add(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		res = res.Mul(g.ScalarFromUint32(x)).Add(coeffs[i])
	}

	return res
}

func TestLagrangeCoeff_Interpolation(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(1)

	// A degree-2 polynomial is fixed by any three evaluations.
	coeffs := []crypto.Scalar{
		g.RandomScalar(rng),
		g.RandomScalar(rng),
		g.RandomScalar(rng),
	}

	signers := []ceremony.PartyIdx{1, 3, 4}

	sum := g.ScalarZero()
	for _, idx := range signers {
		lambda, err := lagrangeCoeff(g, idx, signers)
		require.NoError(t, err)

		sum = sum.Add(lambda.Mul(evalPoly(g, coeffs, uint32(idx))))
	}

	require.True(t, sum.Equal(coeffs[0]))
}

func TestLagrangeCoeff_DuplicateIndices(t *testing.T) {
	g := secp256k1.NewGroup()

	_, err := lagrangeCoeff(g, 1, []ceremony.PartyIdx{1, 2, 2})
	require.Error(t, err)
}

func TestBindingValue(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(2)

	allIdxs := []ceremony.PartyIdx{1, 2, 3}
	payload := crypto.SigningPayload(make([]byte, 32))

	commitments := make(map[ceremony.PartyIdx]commitment, len(allIdxs))
	for _, idx := range allIdxs {
		pair := sampleNoncePair(g, rng)
		commitments[idx] = commitment{d: pair.dPub, e: pair.ePub}
	}

	rho1 := bindingValue(g, 1, payload, commitments, allIdxs)
	require.True(t, rho1.Equal(bindingValue(g, 1, payload, commitments, allIdxs)))

	// The binding value separates parties and payloads.
	require.False(t, rho1.Equal(bindingValue(g, 2, payload, commitments, allIdxs)))

	other := crypto.SigningPayload(append(make([]byte, 31), 1))
	require.False(t, rho1.Equal(bindingValue(g, 1, other, commitments, allIdxs)))
}

func TestGroupCommitment(t *testing.T) {
	g := secp256k1.NewGroup()
	rng := testRng(3)

	allIdxs := []ceremony.PartyIdx{1, 2}
	payload := crypto.SigningPayload(make([]byte, 32))

	pairs := make(map[ceremony.PartyIdx]*noncePair, len(allIdxs))
	commitments := make(map[ceremony.PartyIdx]commitment, len(allIdxs))

	for _, idx := range allIdxs {
		pairs[idx] = sampleNoncePair(g, rng)
		commitments[idx] = commitment{d: pairs[idx].dPub, e: pairs[idx].ePub}
	}

	bindings := allBindings(g, payload, commitments, allIdxs)
	r := groupCommitment(g, commitments, bindings, allIdxs)

	// R must equal G * sum(d_i + e_i * rho_i).
	exponent := g.ScalarZero()
	for _, idx := range allIdxs {
		exponent = exponent.Add(pairs[idx].d.Add(pairs[idx].e.Mul(bindings[idx])))
	}

	require.True(t, r.Equal(g.BaseMul(exponent)))
}

// dealShares builds the per-party signing state a keygen ceremony would have
// produced, from a dealer polynomial.
func dealShares(g crypto.Group, rng crypto.Rng, threshold uint32,
	allIdxs []ceremony.PartyIdx) (crypto.Point, map[ceremony.PartyIdx]crypto.KeyShare,
	map[ceremony.PartyIdx]crypto.Point) {

	coeffs := make([]crypto.Scalar, threshold+1)
	for i := range coeffs {
		coeffs[i] = g.RandomScalar(rng)
	}

	pubkey := g.BaseMul(coeffs[0])

	shares := make(map[ceremony.PartyIdx]crypto.KeyShare, len(allIdxs))
	partyKeys := make(map[ceremony.PartyIdx]crypto.Point, len(allIdxs))

	for _, idx := range allIdxs {
		x := evalPoly(g, coeffs, uint32(idx))
		shares[idx] = crypto.KeyShare{Y: pubkey, X: x}
		partyKeys[idx] = g.BaseMul(x)
	}

	return pubkey, shares, partyKeys
}

func TestGenerateAndAggregate(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()
	g := scheme.Group()
	rng := testRng(4)

	signers := []ceremony.PartyIdx{1, 2, 3}
	payload := crypto.SigningPayload(make([]byte, 32))

	pubkey, shares, partyKeys := dealShares(g, rng, 2, signers)

	pairs := make(map[ceremony.PartyIdx]*noncePair, len(signers))
	commitments := make(map[ceremony.PartyIdx]commitment, len(signers))

	for _, idx := range signers {
		pairs[idx] = sampleNoncePair(g, rng)
		commitments[idx] = commitment{d: pairs[idx].dPub, e: pairs[idx].ePub}
	}

	responses := make(map[ceremony.PartyIdx]crypto.Scalar, len(signers))

	for _, idx := range signers {
		share := shares[idx]

		response, err := generateLocalSig(scheme, payload, &share,
			pairs[idx], commitments, idx, signers)
		require.NoError(t, err)

		responses[idx] = response
	}

	sig, bad, err := aggregateSignature(scheme, payload, signers,
		pubkey, partyKeys, commitments, responses)
	require.NoError(t, err)
	require.Nil(t, bad)

	require.NoError(t, scheme.VerifySignature(sig, pubkey, payload))

	other := crypto.SigningPayload(append(make([]byte, 31), 9))
	require.Error(t, scheme.VerifySignature(sig, pubkey, other))
}

func TestAggregateSignature_ReportsBadShare(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()
	g := scheme.Group()
	rng := testRng(5)

	signers := []ceremony.PartyIdx{1, 2, 3}
	payload := crypto.SigningPayload(make([]byte, 32))

	pubkey, shares, partyKeys := dealShares(g, rng, 2, signers)

	pairs := make(map[ceremony.PartyIdx]*noncePair, len(signers))
	commitments := make(map[ceremony.PartyIdx]commitment, len(signers))

	for _, idx := range signers {
		pairs[idx] = sampleNoncePair(g, rng)
		commitments[idx] = commitment{d: pairs[idx].dPub, e: pairs[idx].ePub}
	}

	responses := make(map[ceremony.PartyIdx]crypto.Scalar, len(signers))

	for _, idx := range signers {
		share := shares[idx]

		response, err := generateLocalSig(scheme, payload, &share,
			pairs[idx], commitments, idx, signers)
		require.NoError(t, err)

		responses[idx] = response
	}

	responses[2] = responses[2].Add(g.ScalarOne())

	_, bad, err := aggregateSignature(scheme, payload, signers,
		pubkey, partyKeys, commitments, responses)
	require.NoError(t, err)
	require.Equal(t, []ceremony.PartyIdx{2}, bad)
}
