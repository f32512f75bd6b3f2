// Package keygen implements the distributed key generation ceremony: hash
// commitments, coefficient commitments with knowledge proofs, secret share
// distribution, and the complaint and blame rounds that resolve bad shares.
package keygen

import (
	"github.com/quorumkey/tsc/ceremony"
)

// Stage names, in protocol order.
const (
	StageHashCommitments1          = "HashCommitments1"
	StageVerifyHashCommitments2    = "VerifyHashCommitmentsBroadcast2"
	StageCoefficientCommitments3   = "CoefficientCommitments3"
	StageVerifyCommitments4        = "VerifyCommitmentsBroadcast4"
	StageSecretShares5             = "SecretSharesStage5"
	StageComplaints6               = "ComplaintsStage6"
	StageVerifyComplaints7         = "VerifyComplaintsBroadcastStage7"
	StageBlameResponses8           = "BlameResponsesStage8"
	StageVerifyBlameResponses9     = "VerifyBlameResponsesBroadcastStage9"
)

// IsInitialStage reports whether messages of the given stage may arrive
// before the local start request.
func IsInitialStage(stage string) bool {
	return stage == StageHashCommitments1
}

// HashContext is the 32-byte replay protection nonce every knowledge proof
// of the ceremony is bound to.
type HashContext [32]byte

// HashComm1 is the hash of a party's coefficient commitments, broadcast
// before the commitments themselves so nobody can choose a polynomial after
// seeing the others.
type HashComm1 struct {
	Hash []byte `json:"hash"`
}

// ZKP is a Schnorr proof of knowledge of the secret behind the first
// coefficient commitment.
type ZKP struct {
	R []byte `json:"r"`
	Z []byte `json:"z"`
}

// CoeffComm3 reveals a party's coefficient commitments together with the
// knowledge proof for its secret.
type CoeffComm3 struct {
	Commitments [][]byte `json:"commitments"`
	Proof       ZKP      `json:"proof"`
}

// SecretShare5 is the evaluation of the sender's sharing polynomial at the
// recipient's index. Sent point to point, never broadcast.
type SecretShare5 struct {
	Value []byte `json:"value"`
}

// Complaints6 lists the parties whose secret share failed verification
// against their commitments, or who sent none.
type Complaints6 struct {
	Blamed []ceremony.PartyIdx `json:"blamed"`
}

// BlameResponse8 reveals, for every complaining party, the share that was
// originally sent to it. Revealing these is safe: recovering a secret takes
// the shares of every other party.
type BlameResponse8 struct {
	Shares map[ceremony.PartyIdx][]byte `json:"shares"`
}
