package ceremony

import "fmt"

// FailureKind classifies why a ceremony failed.
type FailureKind int

const (
	// FailureBroadcastInconsistency marks senders a majority of reporters
	// disagree about.
	FailureBroadcastInconsistency FailureKind = iota

	// FailureBroadcastInsufficientMessages marks senders that stayed
	// silent at a broadcast stage when too little data remained to reach
	// agreement.
	FailureBroadcastInsufficientMessages

	// FailureDeserialization marks a sender whose agreed payload did not
	// decode as the expected stage message.
	FailureDeserialization

	// FailureInvalidCommitment marks a revealed coefficient set whose hash
	// commitment or knowledge proof check failed.
	FailureInvalidCommitment

	// FailureInvalidSecretShare marks a sender whose secret share did not
	// match its commitments and who failed to resolve the complaint.
	FailureInvalidSecretShare

	// FailureInvalidComplaint marks a party that complained about an
	// unknown index.
	FailureInvalidComplaint

	// FailureInvalidBlameResponse marks a party whose revealed share in
	// response to a complaint was itself invalid.
	FailureInvalidBlameResponse

	// FailureInvalidSigShare marks a signature share that was consistently
	// broadcast yet cryptographically wrong.
	FailureInvalidSigShare
)

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	switch k {
	case FailureBroadcastInconsistency:
		return "broadcast inconsistency"
	case FailureBroadcastInsufficientMessages:
		return "insufficient broadcast messages"
	case FailureDeserialization:
		return "deserialization error"
	case FailureInvalidCommitment:
		return "invalid commitment"
	case FailureInvalidSecretShare:
		return "invalid secret share"
	case FailureInvalidComplaint:
		return "invalid complaint"
	case FailureInvalidBlameResponse:
		return "invalid blame response"
	case FailureInvalidSigShare:
		return "invalid signature share"
	default:
		return fmt.Sprintf("unknown failure %d", int(k))
	}
}

// FailureReason is the terminal failure report of a ceremony: what went
// wrong and at which stage.
type FailureReason struct {
	Kind  FailureKind
	Stage string
}

// String implements fmt.Stringer.
func (r FailureReason) String() string {
	if r.Stage == "" {
		return r.Kind.String()
	}

	return fmt.Sprintf("%v at stage %s", r.Kind, r.Stage)
}
