package keygen

import (
	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/crypto"
)

// Result is the output of a successful keygen ceremony: the joint public
// key, this party's secret share, and every party's derived local public
// key, which signing ceremonies later use to check individual signature
// shares.
type Result struct {
	KeyShare        crypto.KeyShare
	PartyPublicKeys map[ceremony.PartyIdx]crypto.Point
	Params          ceremony.ThresholdParameters
	Mapping         *ceremony.PartyIdxMapping

	// Compatible is false when the aggregate key fails the scheme's
	// compatibility predicate. The caller is expected to run a fresh
	// ceremony with a new seed; this is policy, not a failure.
	Compatible bool
}

// Zeroize clears the secret share.
func (r *Result) Zeroize() {
	r.KeyShare.Zeroize()
}
