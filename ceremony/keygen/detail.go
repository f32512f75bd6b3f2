package keygen

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/crypto"
)

// generateCoefficients samples the threshold+1 coefficients of a fresh
// sharing polynomial. The constant term is the party's secret contribution.
func generateCoefficients(g crypto.Group, rng crypto.Rng,
	threshold uint32) []crypto.Scalar {

	coeffs := make([]crypto.Scalar, threshold+1)
	for i := range coeffs {
		coeffs[i] = g.RandomScalar(rng)
	}

	return coeffs
}

// commitCoefficients lifts every coefficient to the curve.
func commitCoefficients(g crypto.Group, coeffs []crypto.Scalar) []crypto.Point {
	comms := make([]crypto.Point, len(coeffs))
	for i, c := range coeffs {
		comms[i] = g.BaseMul(c)
	}

	return comms
}

// evaluateScalarPolynomial evaluates the polynomial at x using Horner's
// rule. The result never aliases a coefficient, so the polynomial can be
// zeroized independently.
func evaluateScalarPolynomial(g crypto.Group, coeffs []crypto.Scalar,
	x crypto.Scalar) crypto.Scalar {

	res := g.ScalarZero().Add(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		res = res.Mul(x).Add(coeffs[i])
	}

	return res
}

// evaluateCommitments evaluates the group-encoded polynomial at a party
// index, yielding the expected public image of that party's share.
func evaluateCommitments(g crypto.Group, comms []crypto.Point,
	idx ceremony.PartyIdx) crypto.Point {

	x := g.ScalarFromUint32(uint32(idx))

	res := comms[len(comms)-1]
	for i := len(comms) - 2; i >= 0; i-- {
		res = res.Mul(x).Add(comms[i])
	}

	return res
}

// generateShares evaluates our polynomial at every party's index.
func generateShares(g crypto.Group, coeffs []crypto.Scalar,
	allIdxs []ceremony.PartyIdx) map[ceremony.PartyIdx]crypto.Scalar {

	shares := make(map[ceremony.PartyIdx]crypto.Scalar, len(allIdxs))
	for _, idx := range allIdxs {
		shares[idx] = evaluateScalarPolynomial(g, coeffs, g.ScalarFromUint32(uint32(idx)))
	}

	return shares
}

// verifyShare checks a received share against the sender's verified
// commitments.
func verifyShare(g crypto.Group, comms []crypto.Point, recipient ceremony.PartyIdx,
	share crypto.Scalar) bool {

	return g.BaseMul(share).Equal(evaluateCommitments(g, comms, recipient))
}

// hashCommitments computes the value broadcast during the first stage.
func hashCommitments(comms []crypto.Point) []byte {
	h := sha256.New()
	for _, c := range comms {
		h.Write(c.Bytes())
	}

	return h.Sum(nil)
}

// zkpChallenge binds the proof to the prover's public contribution, its
// nonce commitment, its index and the ceremony context.
func zkpChallenge(g crypto.Group, pubkey, nonceCommitment crypto.Point,
	idx ceremony.PartyIdx, context HashContext) crypto.Scalar {

	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], uint32(idx))

	h := sha256.New()
	h.Write(pubkey.Bytes())
	h.Write(nonceCommitment.Bytes())
	h.Write(idxBytes[:])
	h.Write(context[:])

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return g.ScalarFromBytes(digest)
}

type zkProof struct {
	r crypto.Point
	z crypto.Scalar
}

// generateZKP proves knowledge of the secret behind the first coefficient
// commitment.
func generateZKP(g crypto.Group, rng crypto.Rng, secret crypto.Scalar,
	idx ceremony.PartyIdx, context HashContext) zkProof {

	nonce := g.RandomScalar(rng)
	r := g.BaseMul(nonce)

	c := zkpChallenge(g, g.BaseMul(secret), r, idx, context)
	z := nonce.Add(secret.Mul(c))

	nonce.Zeroize()

	return zkProof{r: r, z: z}
}

// verifyZKP checks a proof against the claimed first coefficient
// commitment.
func verifyZKP(g crypto.Group, firstComm crypto.Point, proof zkProof,
	idx ceremony.PartyIdx, context HashContext) bool {

	c := zkpChallenge(g, firstComm, proof.r, idx, context)

	// G * z == R + comm * c
	return g.BaseMul(proof.z).Equal(proof.r.Add(firstComm.Mul(c)))
}

// aggregatePubkey sums every party's first coefficient commitment into the
// joint public key. The sum of the highest-degree commitments being the
// identity would mean the effective threshold was maliciously reduced, which
// the hash commitment round makes cryptographically implausible.
func aggregatePubkey(g crypto.Group,
	commitments map[ceremony.PartyIdx][]crypto.Point) crypto.Point {

	pubkey := g.Identity()
	highDegree := g.Identity()

	for _, comms := range commitments {
		pubkey = pubkey.Add(comms[0])
		highDegree = highDegree.Add(comms[len(comms)-1])
	}

	if highDegree.IsIdentity() {
		panic("sum of highest-degree commitments is the identity")
	}

	return pubkey
}

// derivePartyPublicKeys computes every party's local public key, the sum of
// all commitment polynomials evaluated at its index. The evaluations are
// independent, so they are fanned out over a small worker pool.
func derivePartyPublicKeys(g crypto.Group, allIdxs []ceremony.PartyIdx,
	commitments map[ceremony.PartyIdx][]crypto.Point) map[ceremony.PartyIdx]crypto.Point {

	workers := 8
	if len(allIdxs) < workers {
		workers = len(allIdxs)
	}

	jobChan := make(chan ceremony.PartyIdx, len(allIdxs))
	for _, idx := range allIdxs {
		jobChan <- idx
	}
	close(jobChan)

	var mu sync.Mutex
	pubkeys := make(map[ceremony.PartyIdx]crypto.Point, len(allIdxs))

	var wg sync.WaitGroup
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for idx := range jobChan {
				y := g.Identity()
				for _, comms := range commitments {
					y = y.Add(evaluateCommitments(g, comms, idx))
				}

				mu.Lock()
				pubkeys[idx] = y
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	return pubkeys
}

// zeroizeScalars clears a batch of secret scalars.
func zeroizeScalars(scalars map[ceremony.PartyIdx]crypto.Scalar) {
	for _, s := range scalars {
		if s != nil {
			s.Zeroize()
		}
	}
}
