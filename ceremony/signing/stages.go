package signing

import (
	"encoding/json"
	"sort"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/ceremony/keygen"
	"github.com/quorumkey/tsc/crypto"
)

// state is the data shared by every stage of one signing ceremony. The party
// indices live in the key's original index space; the participant set may be
// any subset of size threshold+1 or more.
type state struct {
	common   *ceremony.Common
	scheme   crypto.Scheme
	key      *keygen.Result
	payloads []crypto.SigningPayload

	nonces []*noncePair

	// one commitment map per payload, filled at stage 2
	commitments []map[ceremony.PartyIdx]commitment
}

// NewCeremony builds the initial stage of a signing ceremony over the given
// payloads.
func NewCeremony(common *ceremony.Common, scheme crypto.Scheme,
	key *keygen.Result, payloads []crypto.SigningPayload) ceremony.Stage {

	st := &state{
		common:   common,
		scheme:   scheme,
		key:      key,
		payloads: payloads,
	}

	return ceremony.NewBroadcastStage(common, &awaitCommitments1{state: st})
}

func (s *state) fail(kind ceremony.FailureKind, stage string,
	blamed []ceremony.PartyIdx) ceremony.StageOutcome {

	s.Zeroize()

	sort.Slice(blamed, func(i, j int) bool { return blamed[i] < blamed[j] })

	return ceremony.Fail(ceremony.FailureReason{Kind: kind, Stage: stage}, blamed)
}

// Zeroize implements ceremony.Zeroizer. It wipes the nonces the ceremony
// still holds; the long-lived key share belongs to the caller and stays. Every
// processor inherits it, so a cancelled runner can reach it through the
// current stage.
func (s *state) Zeroize() {
	for _, n := range s.nonces {
		n.zeroize()
	}
	s.nonces = nil
}

// awaitCommitments1 samples one nonce pair per payload and broadcasts the
// commitments.
//
// - implements ceremony.Processor
type awaitCommitments1 struct {
	*state
}

func (p *awaitCommitments1) Name() string {
	return StageAwaitCommitments1
}

func (p *awaitCommitments1) Init() (ceremony.DataToSend, error) {
	s := p.state
	g := s.scheme.Group()

	s.nonces = make([]*noncePair, len(s.payloads))
	comms := make([]NonceCommitment, len(s.payloads))

	for i := range s.payloads {
		s.nonces[i] = sampleNoncePair(g, s.common.Rng)
		comms[i] = NonceCommitment{
			D: s.nonces[i].dPub.Bytes(),
			E: s.nonces[i].ePub.Bytes(),
		}
	}

	return ceremony.DataToSend{Broadcast: Comm1{Commitments: comms}}, nil
}

func (p *awaitCommitments1) ShouldDelay(stage string) bool {
	return stage == StageVerifyCommitments2
}

func (p *awaitCommitments1) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyCommitments2{state: p.state, collected: messages}))
}

// verifyCommitments2 resolves the commitment broadcast and decodes the
// canonical commitment vectors.
//
// - implements ceremony.Processor
type verifyCommitments2 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyCommitments2) Name() string {
	return StageVerifyCommitments2
}

func (p *verifyCommitments2) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyCommitments2) ShouldDelay(stage string) bool {
	return stage == StageLocalSigs3
}

func (p *verifyCommitments2) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state
	g := s.scheme.Group()

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.key.Params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	s.commitments = make([]map[ceremony.PartyIdx]commitment, len(s.payloads))
	for i := range s.commitments {
		s.commitments[i] = make(map[ceremony.PartyIdx]commitment, len(agreed))
	}

	var badSenders []ceremony.PartyIdx

	for idx, raw := range agreed {
		var comm Comm1

		err := json.Unmarshal(raw, &comm)
		if err != nil || len(comm.Commitments) != len(s.payloads) {
			badSenders = append(badSenders, idx)
			continue
		}

		for i, c := range comm.Commitments {
			d, errD := g.DeserializePoint(c.D)
			e, errE := g.DeserializePoint(c.E)

			if errD != nil || errE != nil {
				badSenders = append(badSenders, idx)
				break
			}

			s.commitments[i][idx] = commitment{d: d, e: e}
		}
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	return ceremony.NextStage(ceremony.NewBroadcastStage(s.common,
		&localSigs3{state: s}))
}

// localSigs3 computes and broadcasts this party's signature share for every
// payload. The nonces are cleared as soon as the shares exist.
//
// - implements ceremony.Processor
type localSigs3 struct {
	*state
}

func (p *localSigs3) Name() string {
	return StageLocalSigs3
}

func (p *localSigs3) Init() (ceremony.DataToSend, error) {
	s := p.state

	responses := make([][]byte, len(s.payloads))

	for i, payload := range s.payloads {
		response, err := generateLocalSig(s.scheme, payload, &s.key.KeyShare,
			s.nonces[i], s.commitments[i], s.common.OwnIdx, s.common.AllIdxs)
		if err != nil {
			return ceremony.DataToSend{}, err
		}

		responses[i] = response.Bytes()
	}

	for _, n := range s.nonces {
		n.zeroize()
	}
	s.nonces = nil

	return ceremony.DataToSend{Broadcast: LocalSig3{Responses: responses}}, nil
}

func (p *localSigs3) ShouldDelay(stage string) bool {
	return stage == StageVerifyLocalSigs4
}

func (p *localSigs3) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyLocalSigs4{state: p.state, collected: messages}))
}

// verifyLocalSigs4 resolves the share broadcast, verifies every party's
// share individually, and aggregates the final signatures. A share can be
// consistently broadcast yet cryptographically wrong; such parties are
// reported without a further round.
//
// - implements ceremony.Processor
type verifyLocalSigs4 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyLocalSigs4) Name() string {
	return StageVerifyLocalSigs4
}

func (p *verifyLocalSigs4) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyLocalSigs4) ShouldDelay(string) bool {
	return false
}

func (p *verifyLocalSigs4) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state
	g := s.scheme.Group()

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.key.Params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	responses := make([]map[ceremony.PartyIdx]crypto.Scalar, len(s.payloads))
	for i := range responses {
		responses[i] = make(map[ceremony.PartyIdx]crypto.Scalar, len(agreed))
	}

	var badSenders []ceremony.PartyIdx

	for idx, raw := range agreed {
		var sig LocalSig3

		err := json.Unmarshal(raw, &sig)
		if err != nil || len(sig.Responses) != len(s.payloads) {
			badSenders = append(badSenders, idx)
			continue
		}

		for i, data := range sig.Responses {
			response, err := g.DeserializeScalar(data)
			if err != nil {
				badSenders = append(badSenders, idx)
				break
			}

			responses[i][idx] = response
		}
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	// All payloads must succeed for the ceremony to return anything.
	signatures := make([]crypto.Signature, len(s.payloads))

	var invalid []ceremony.PartyIdx

	for i, payload := range s.payloads {
		sig, badShares, err := aggregateSignature(s.scheme, payload,
			s.common.AllIdxs, s.key.KeyShare.Y, s.key.PartyPublicKeys,
			s.commitments[i], responses[i])
		if err != nil {
			s.common.Logger.Error().Err(err).Msg("signature aggregation failed")
			return s.fail(ceremony.FailureInvalidSigShare, p.Name(), nil)
		}

		if badShares != nil {
			invalid = append(invalid, badShares...)
			continue
		}

		signatures[i] = sig
	}

	if len(invalid) > 0 {
		return s.fail(ceremony.FailureInvalidSigShare, p.Name(), dedupIdxs(invalid))
	}

	return ceremony.Done(signatures)
}

func dedupIdxs(idxs []ceremony.PartyIdx) []ceremony.PartyIdx {
	seen := make(map[ceremony.PartyIdx]struct{}, len(idxs))

	var out []ceremony.PartyIdx
	for _, idx := range idxs {
		if _, found := seen[idx]; !found {
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
	}

	return out
}
