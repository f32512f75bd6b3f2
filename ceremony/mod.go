// Package ceremony implements the generic multi-round protocol engine shared
// by the keygen and signing ceremonies: the stage state machine, the reliable
// broadcast primitive with all-to-all verification, and the per-ceremony
// runner that buffers, delays and times out messages.
package ceremony

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/quorumkey/tsc/crypto"
)

// ID identifies a ceremony inside its namespace. Keygen and signing ids are
// independent namespaces.
type ID uint64

// PartyID is the stable identity of a participant.
type PartyID string

// PartyIdx is the dense 1..n protocol index of a participant within one
// ceremony.
type PartyIdx uint32

// Kind separates the two ceremony id namespaces.
type Kind string

const (
	// KindKeygen tags key generation ceremonies.
	KindKeygen Kind = "keygen"

	// KindSigning tags signing ceremonies.
	KindSigning Kind = "signing"
)

const (
	// DefaultStageTimeout bounds how long a single stage waits for
	// messages before it is finalized with whatever arrived.
	DefaultStageTimeout = 30 * time.Second

	// DefaultUnauthorisedTimeout bounds how long buffered messages for a
	// not-yet-requested ceremony are kept.
	DefaultUnauthorisedTimeout = 5 * time.Minute
)

// Config carries the policy constants of the engine. Timeouts and the
// threshold formula are policy, not protocol invariants.
type Config struct {
	StageTimeout        time.Duration
	UnauthorisedTimeout time.Duration
}

// DefaultConfig returns the production policy values.
func DefaultConfig() Config {
	return Config{
		StageTimeout:        DefaultStageTimeout,
		UnauthorisedTimeout: DefaultUnauthorisedTimeout,
	}
}

// OutgoingMessage is a framed stage message handed to the transport layer.
// An empty recipient list means broadcast to every other participant.
type OutgoingMessage struct {
	Kind       Kind
	CeremonyID ID
	Recipients []PartyID
	Data       []byte
}

// Common is the state shared by every stage of one ceremony.
type Common struct {
	Kind       Kind
	CeremonyID ID
	OwnIdx     PartyIdx
	AllIdxs    []PartyIdx
	Mapping    *PartyIdxMapping
	Outgoing   chan<- OutgoingMessage
	Rng        crypto.Rng
	Logger     zerolog.Logger
}

// NumParties returns the participant count of the ceremony.
func (c *Common) NumParties() int {
	return len(c.AllIdxs)
}
