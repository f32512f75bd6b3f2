// Package signing implements the threshold Schnorr signing ceremony:
// commitment broadcast, local signature shares, and aggregation with
// per-party share verification. One ceremony may sign several payloads in
// parallel under the same key; their protocol instances advance in lockstep
// and succeed or fail together.
package signing

// Stage names, in protocol order.
const (
	StageAwaitCommitments1   = "AwaitCommitments1"
	StageVerifyCommitments2  = "VerifyCommitmentsBroadcast2"
	StageLocalSigs3          = "LocalSigStage3"
	StageVerifyLocalSigs4    = "VerifyLocalSigsBroadcastStage4"
)

// IsInitialStage reports whether messages of the given stage may arrive
// before the local start request.
func IsInitialStage(stage string) bool {
	return stage == StageAwaitCommitments1
}

// NonceCommitment is the public half of one single-use nonce pair.
type NonceCommitment struct {
	D []byte `json:"d"`
	E []byte `json:"e"`
}

// Comm1 carries one nonce commitment per payload.
type Comm1 struct {
	Commitments []NonceCommitment `json:"commitments"`
}

// LocalSig3 carries one local signature share per payload.
type LocalSig3 struct {
	Responses [][]byte `json:"responses"`
}
