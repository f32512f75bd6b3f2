package ceremony

import (
	"encoding/json"
	"sort"

	"golang.org/x/xerrors"
)

// DataToSend is what a processor emits when its stage starts. Broadcast is
// sent identically to every party, Private carries per-recipient payloads
// such as secret shares. Exactly one of the two is set.
type DataToSend struct {
	Broadcast interface{}
	Private   map[PartyIdx]interface{}
}

// Processor holds the protocol logic of one broadcast round. BroadcastStage
// handles sending, collection and timeouts around it.
type Processor interface {
	// Name tags the stage's messages on the wire.
	Name() string

	// Init computes the data this party contributes to the round.
	Init() (DataToSend, error)

	// ShouldDelay reports whether the given stage name is the round right
	// after this one.
	ShouldDelay(stage string) bool

	// Process resolves the round from the collected payloads, keyed by
	// sender. Parties that sent nothing have no entry.
	Process(messages map[PartyIdx]Raw) StageOutcome
}

// BroadcastStage runs one send-and-collect round of a ceremony around a
// Processor.
//
// - implements ceremony.Stage
type BroadcastStage struct {
	common    *Common
	processor Processor
	messages  map[PartyIdx]Raw
}

// NewBroadcastStage wraps a processor into a runnable stage.
func NewBroadcastStage(common *Common, processor Processor) *BroadcastStage {
	return &BroadcastStage{
		common:    common,
		processor: processor,
		messages:  make(map[PartyIdx]Raw),
	}
}

// Name implements ceremony.Stage.
func (s *BroadcastStage) Name() string {
	return s.processor.Name()
}

// Init implements ceremony.Stage. Our own payload is recorded directly, so
// the transport never loops a message back to us.
func (s *BroadcastStage) Init() error {
	data, err := s.processor.Init()
	if err != nil {
		return xerrors.Errorf("initializing stage %s: %v", s.Name(), err)
	}

	if data.Broadcast != nil {
		raw, err := json.Marshal(data.Broadcast)
		if err != nil {
			return xerrors.Errorf("encoding %s broadcast: %v", s.Name(), err)
		}

		wire, err := EncodeWire(s.Name(), json.RawMessage(raw))
		if err != nil {
			return err
		}

		s.messages[s.common.OwnIdx] = raw
		s.common.Outgoing <- OutgoingMessage{
			Kind:       s.common.Kind,
			CeremonyID: s.common.CeremonyID,
			Data:       wire,
		}

		return nil
	}

	for idx, payload := range data.Private {
		raw, err := json.Marshal(payload)
		if err != nil {
			return xerrors.Errorf("encoding %s payload for %d: %v", s.Name(), idx, err)
		}

		if idx == s.common.OwnIdx {
			s.messages[idx] = raw
			continue
		}

		wire, err := EncodeWire(s.Name(), json.RawMessage(raw))
		if err != nil {
			return err
		}

		id, found := s.common.Mapping.ID(idx)
		if !found {
			return xerrors.Errorf("no identity for party %d", idx)
		}

		s.common.Outgoing <- OutgoingMessage{
			Kind:       s.common.Kind,
			CeremonyID: s.common.CeremonyID,
			Recipients: []PartyID{id},
			Data:       wire,
		}
	}

	return nil
}

// ProcessMessage implements ceremony.Stage. The first payload per sender
// wins; duplicates and non-participants are dropped.
func (s *BroadcastStage) ProcessMessage(sender PartyIdx, payload Raw) bool {
	if !s.isParticipant(sender) {
		s.common.Logger.Debug().
			Uint32("sender", uint32(sender)).
			Str("stage", s.Name()).
			Msg("ignoring message from non-participant index")

		return len(s.messages) == s.common.NumParties()
	}

	if _, found := s.messages[sender]; found {
		s.common.Logger.Debug().
			Uint32("sender", uint32(sender)).
			Str("stage", s.Name()).
			Msg("ignoring duplicate message")

		return len(s.messages) == s.common.NumParties()
	}

	s.messages[sender] = payload

	return len(s.messages) == s.common.NumParties()
}

func (s *BroadcastStage) isParticipant(idx PartyIdx) bool {
	for _, i := range s.common.AllIdxs {
		if i == idx {
			return true
		}
	}

	return false
}

// ShouldDelay implements ceremony.Stage.
func (s *BroadcastStage) ShouldDelay(stage string) bool {
	return s.processor.ShouldDelay(stage)
}

// AwaitedParties implements ceremony.Stage.
func (s *BroadcastStage) AwaitedParties() []PartyIdx {
	var awaited []PartyIdx
	for _, idx := range s.common.AllIdxs {
		if _, found := s.messages[idx]; !found {
			awaited = append(awaited, idx)
		}
	}

	return awaited
}

// Finalize implements ceremony.Stage.
func (s *BroadcastStage) Finalize() StageOutcome {
	return s.processor.Process(s.messages)
}

// Zeroize implements ceremony.Zeroizer by forwarding to the processor when it
// holds secret material.
func (s *BroadcastStage) Zeroize() {
	if z, ok := s.processor.(Zeroizer); ok {
		z.Zeroize()
	}
}

// VerificationPayload builds the verification-round payload from the
// messages collected during the preceding broadcast round: the full received
// vector, with explicit nulls for silent parties.
func VerificationPayload(allIdxs []PartyIdx, collected map[PartyIdx]Raw) BroadcastVerificationMessage {
	data := make(map[PartyIdx]Raw, len(allIdxs))
	for _, idx := range allIdxs {
		data[idx] = collected[idx]
	}

	return BroadcastVerificationMessage{Data: data}
}

// VerifyBroadcasts applies the majority rule to the verification reports of
// one broadcast round. For every sender, the payload reported by strictly
// more than threshold verifiers becomes canonical. Senders whose payload a
// majority reports as absent are blamed for insufficient messages; senders
// with no majority at all are blamed for an inconsistent broadcast. Parties
// that merely failed to send a verification report are never blamed, since
// convicting them would take another voting round.
//
// A nil agreed map means the round failed. The blame list may then be empty:
// a starved verification round over a complete broadcast round leaves nobody
// to convict.
func VerifyBroadcasts(allIdxs []PartyIdx, ownIdx PartyIdx, threshold uint32,
	reports map[PartyIdx]Raw) (map[PartyIdx]Raw, []PartyIdx, FailureKind) {

	parsed := make(map[PartyIdx]BroadcastVerificationMessage)

	for verifier, raw := range reports {
		if IsRawNil(raw) {
			continue
		}

		var msg BroadcastVerificationMessage

		err := json.Unmarshal(raw, &msg)
		if err != nil {
			// An unreadable report counts as a missing one.
			continue
		}

		parsed[verifier] = msg
	}

	if len(parsed) <= int(threshold) {
		// Not enough reports for any majority. Our own record of the
		// broadcast round names the parties that were silent there.
		var silent []PartyIdx
		for _, sender := range allIdxs {
			if IsRawNil(parsed[ownIdx].Data[sender]) {
				silent = append(silent, sender)
			}
		}

		sortIdxs(silent)

		return nil, silent, FailureBroadcastInsufficientMessages
	}

	agreed := make(map[PartyIdx]Raw, len(allIdxs))

	var inconsistent, silent []PartyIdx

	for _, sender := range allIdxs {
		votes := make(map[string]int)

		for _, msg := range parsed {
			raw := msg.Data[sender]
			if IsRawNil(raw) {
				votes[""]++
			} else {
				votes[string(raw)]++
			}
		}

		winner, found := majority(votes, threshold)

		switch {
		case !found:
			inconsistent = append(inconsistent, sender)
		case winner == "":
			silent = append(silent, sender)
		default:
			agreed[sender] = Raw(winner)
		}
	}

	if len(inconsistent) > 0 {
		sortIdxs(inconsistent)

		return nil, inconsistent, FailureBroadcastInconsistency
	}

	if len(silent) > 0 {
		sortIdxs(silent)

		return nil, silent, FailureBroadcastInsufficientMessages
	}

	return agreed, nil, 0
}

func majority(votes map[string]int, threshold uint32) (string, bool) {
	for value, count := range votes {
		if count > int(threshold) {
			return value, true
		}
	}

	return "", false
}

func sortIdxs(idxs []PartyIdx) {
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
}
