package signing

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/xerrors"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/crypto"
)

// noncePair is the (d, e) pair of single-use nonces of one payload instance,
// with their public commitments.
type noncePair struct {
	d    crypto.Scalar
	e    crypto.Scalar
	dPub crypto.Point
	ePub crypto.Point
}

func sampleNoncePair(g crypto.Group, rng crypto.Rng) *noncePair {
	d := g.RandomScalar(rng)
	e := g.RandomScalar(rng)

	return &noncePair{
		d:    d,
		e:    e,
		dPub: g.BaseMul(d),
		ePub: g.BaseMul(e),
	}
}

func (n *noncePair) zeroize() {
	n.d.Zeroize()
	n.e.Zeroize()
}

// commitment is a decoded nonce commitment of one party for one payload.
type commitment struct {
	d crypto.Point
	e crypto.Point
}

// lagrangeCoeff computes the Lagrange interpolation coefficient of a signer
// at zero over the signer set.
func lagrangeCoeff(g crypto.Group, signer ceremony.PartyIdx,
	allIdxs []ceremony.PartyIdx) (crypto.Scalar, error) {

	num := g.ScalarOne()
	den := g.ScalarOne()

	si := g.ScalarFromUint32(uint32(signer))

	for _, j := range allIdxs {
		if j == signer {
			continue
		}

		sj := g.ScalarFromUint32(uint32(j))
		num = num.Mul(sj)
		den = den.Mul(sj.Sub(si))
	}

	denInv, err := den.Invert()
	if err != nil {
		return nil, xerrors.Errorf("duplicate signer indices: %v", err)
	}

	return num.Mul(denInv), nil
}

// bindingValue derives the rho value tying one party's nonces to the full
// commitment set and the payload, so nonces cannot be reused across
// contexts.
func bindingValue(g crypto.Group, idx ceremony.PartyIdx,
	payload crypto.SigningPayload, commitments map[ceremony.PartyIdx]commitment,
	allIdxs []ceremony.PartyIdx) crypto.Scalar {

	var idxBytes [4]byte
	binary.BigEndian.PutUint32(idxBytes[:], uint32(idx))

	h := sha256.New()
	h.Write([]byte("I"))
	h.Write(idxBytes[:])
	h.Write(payload)

	// Processed in index order so every party derives the same value.
	for _, j := range allIdxs {
		binary.BigEndian.PutUint32(idxBytes[:], uint32(j))

		comm := commitments[j]
		h.Write(idxBytes[:])
		h.Write(comm.d.Bytes())
		h.Write(comm.e.Bytes())
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))

	return g.ScalarFromBytes(digest)
}

func allBindings(g crypto.Group, payload crypto.SigningPayload,
	commitments map[ceremony.PartyIdx]commitment,
	allIdxs []ceremony.PartyIdx) map[ceremony.PartyIdx]crypto.Scalar {

	bindings := make(map[ceremony.PartyIdx]crypto.Scalar, len(allIdxs))
	for _, idx := range allIdxs {
		bindings[idx] = bindingValue(g, idx, payload, commitments, allIdxs)
	}

	return bindings
}

// groupCommitment combines the individual commitments into the R of the
// final signature.
func groupCommitment(g crypto.Group, commitments map[ceremony.PartyIdx]commitment,
	bindings map[ceremony.PartyIdx]crypto.Scalar,
	allIdxs []ceremony.PartyIdx) crypto.Point {

	r := g.Identity()
	for _, idx := range allIdxs {
		comm := commitments[idx]
		r = r.Add(comm.d.Add(comm.e.Mul(bindings[idx])))
	}

	return r
}

// generateLocalSig computes this party's signature share for one payload.
func generateLocalSig(scheme crypto.Scheme, payload crypto.SigningPayload,
	key *crypto.KeyShare, nonces *noncePair,
	commitments map[ceremony.PartyIdx]commitment, ownIdx ceremony.PartyIdx,
	allIdxs []ceremony.PartyIdx) (crypto.Scalar, error) {

	g := scheme.Group()

	bindings := allBindings(g, payload, commitments, allIdxs)
	r := groupCommitment(g, commitments, bindings, allIdxs)

	lambda, err := lagrangeCoeff(g, ownIdx, allIdxs)
	if err != nil {
		return nil, err
	}

	nonceShare := nonces.d.Add(nonces.e.Mul(bindings[ownIdx]))
	keyShare := lambda.Mul(key.X)

	challenge := scheme.BuildChallenge(key.Y, r, payload)

	response := scheme.BuildResponse(nonceShare, keyShare, challenge)

	nonceShare.Zeroize()
	keyShare.Zeroize()

	return response, nil
}

// aggregateSignature combines the shares for one payload, verifying each
// share against its party's local public key first. It returns the invalid
// parties instead of a signature when any share fails.
func aggregateSignature(scheme crypto.Scheme, payload crypto.SigningPayload,
	allIdxs []ceremony.PartyIdx, aggPubkey crypto.Point,
	partyPubkeys map[ceremony.PartyIdx]crypto.Point,
	commitments map[ceremony.PartyIdx]commitment,
	responses map[ceremony.PartyIdx]crypto.Scalar) (crypto.Signature, []ceremony.PartyIdx, error) {

	g := scheme.Group()

	bindings := allBindings(g, payload, commitments, allIdxs)
	r := groupCommitment(g, commitments, bindings, allIdxs)
	challenge := scheme.BuildChallenge(aggPubkey, r, payload)

	var invalid []ceremony.PartyIdx

	for _, idx := range allIdxs {
		lambda, err := lagrangeCoeff(g, idx, allIdxs)
		if err != nil {
			return crypto.Signature{}, nil, err
		}

		comm := commitments[idx]
		commI := comm.d.Add(comm.e.Mul(bindings[idx]))

		if !scheme.IsPartyResponseValid(
			partyPubkeys[idx], lambda, commI, challenge, responses[idx]) {

			invalid = append(invalid, idx)
		}
	}

	if len(invalid) > 0 {
		return crypto.Signature{}, invalid, nil
	}

	z := g.ScalarZero()
	for _, idx := range allIdxs {
		z = z.Add(responses[idx])
	}

	sig := crypto.Signature{R: r, Z: z}

	// Every share checked out, so this cannot fail short of a bug.
	err := scheme.VerifySignature(sig, aggPubkey, payload)
	if err != nil {
		return crypto.Signature{}, nil, xerrors.Errorf(
			"aggregate signature failed final verification: %v", err)
	}

	return sig, nil, nil
}
