package keygen

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/crypto"
)

// state is the data shared by every stage of one keygen ceremony.
type state struct {
	common  *ceremony.Common
	scheme  crypto.Scheme
	params  ceremony.ThresholdParameters
	context HashContext

	coefficients []crypto.Scalar
	ownComms     []crypto.Point
	ownProof     zkProof

	hashComms   map[ceremony.PartyIdx][]byte
	commitments map[ceremony.PartyIdx][]crypto.Point

	// outgoing shares are kept until the blame rounds are over
	outgoing map[ceremony.PartyIdx]crypto.Scalar
	shares   map[ceremony.PartyIdx]crypto.Scalar

	// complainer -> set of parties it complained about
	complaints map[ceremony.PartyIdx][]ceremony.PartyIdx
}

// NewCeremony builds the initial stage of a keygen ceremony.
func NewCeremony(common *ceremony.Common, scheme crypto.Scheme,
	params ceremony.ThresholdParameters, context HashContext) ceremony.Stage {

	st := &state{
		common:  common,
		scheme:  scheme,
		params:  params,
		context: context,
	}

	return ceremony.NewBroadcastStage(common, &hashCommitments1{state: st})
}

func (s *state) group() crypto.Group {
	return s.scheme.Group()
}

func (s *state) fail(kind ceremony.FailureKind, stage string,
	blamed []ceremony.PartyIdx) ceremony.StageOutcome {

	s.Zeroize()

	sort.Slice(blamed, func(i, j int) bool { return blamed[i] < blamed[j] })

	return ceremony.Fail(ceremony.FailureReason{Kind: kind, Stage: stage}, blamed)
}

// Zeroize implements ceremony.Zeroizer. It wipes every secret the ceremony
// still holds; every processor inherits it, so a cancelled runner can reach
// it through the current stage.
func (s *state) Zeroize() {
	for _, c := range s.coefficients {
		c.Zeroize()
	}
	s.coefficients = nil

	zeroizeScalars(s.shares)
	zeroizeScalars(s.outgoing)
	s.shares = nil
	s.outgoing = nil
}

// hashCommitments1 samples the sharing polynomial and broadcasts only the
// hash of its commitments.
//
// - implements ceremony.Processor
type hashCommitments1 struct {
	*state
}

func (p *hashCommitments1) Name() string {
	return StageHashCommitments1
}

func (p *hashCommitments1) Init() (ceremony.DataToSend, error) {
	s := p.state
	g := s.group()

	s.coefficients = generateCoefficients(g, s.common.Rng, s.params.Threshold)
	s.ownComms = commitCoefficients(g, s.coefficients)
	s.ownProof = generateZKP(g, s.common.Rng, s.coefficients[0], s.common.OwnIdx, s.context)

	return ceremony.DataToSend{
		Broadcast: HashComm1{Hash: hashCommitments(s.ownComms)},
	}, nil
}

func (p *hashCommitments1) ShouldDelay(stage string) bool {
	return stage == StageVerifyHashCommitments2
}

func (p *hashCommitments1) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyHashCommitments2{state: p.state, collected: messages}))
}

// verifyHashCommitments2 resolves the hash broadcast by majority vote.
//
// - implements ceremony.Processor
type verifyHashCommitments2 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyHashCommitments2) Name() string {
	return StageVerifyHashCommitments2
}

func (p *verifyHashCommitments2) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyHashCommitments2) ShouldDelay(stage string) bool {
	return stage == StageCoefficientCommitments3
}

func (p *verifyHashCommitments2) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	s.hashComms = make(map[ceremony.PartyIdx][]byte, len(agreed))

	var badSenders []ceremony.PartyIdx

	for idx, raw := range agreed {
		var comm HashComm1

		err := json.Unmarshal(raw, &comm)
		if err != nil || len(comm.Hash) != 32 {
			badSenders = append(badSenders, idx)
			continue
		}

		s.hashComms[idx] = comm.Hash
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	return ceremony.NextStage(ceremony.NewBroadcastStage(s.common,
		&coefficientCommitments3{state: s}))
}

// coefficientCommitments3 reveals the actual commitments and the knowledge
// proof.
//
// - implements ceremony.Processor
type coefficientCommitments3 struct {
	*state
}

func (p *coefficientCommitments3) Name() string {
	return StageCoefficientCommitments3
}

func (p *coefficientCommitments3) Init() (ceremony.DataToSend, error) {
	s := p.state

	comms := make([][]byte, len(s.ownComms))
	for i, c := range s.ownComms {
		comms[i] = c.Bytes()
	}

	return ceremony.DataToSend{
		Broadcast: CoeffComm3{
			Commitments: comms,
			Proof: ZKP{
				R: s.ownProof.r.Bytes(),
				Z: s.ownProof.z.Bytes(),
			},
		},
	}, nil
}

func (p *coefficientCommitments3) ShouldDelay(stage string) bool {
	return stage == StageVerifyCommitments4
}

func (p *coefficientCommitments3) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyCommitments4{state: p.state, collected: messages}))
}

// verifyCommitments4 resolves the reveal broadcast, then checks every
// party's proof and hash commitment. Both must pass before a commitment set
// is accepted.
//
// - implements ceremony.Processor
type verifyCommitments4 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyCommitments4) Name() string {
	return StageVerifyCommitments4
}

func (p *verifyCommitments4) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyCommitments4) ShouldDelay(stage string) bool {
	return stage == StageSecretShares5
}

func (p *verifyCommitments4) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state
	g := s.group()

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	s.commitments = make(map[ceremony.PartyIdx][]crypto.Point, len(agreed))

	var badSenders, invalid []ceremony.PartyIdx

	for idx, raw := range agreed {
		comms, proof, err := decodeCoeffComm(g, raw, s.params.Threshold)
		if err != nil {
			badSenders = append(badSenders, idx)
			continue
		}

		if !verifyZKP(g, comms[0], proof, idx, s.context) ||
			!bytes.Equal(hashCommitments(comms), s.hashComms[idx]) {

			invalid = append(invalid, idx)
			continue
		}

		s.commitments[idx] = comms
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	if len(invalid) > 0 {
		return s.fail(ceremony.FailureInvalidCommitment, p.Name(), invalid)
	}

	return ceremony.NextStage(ceremony.NewBroadcastStage(s.common,
		&secretShares5{state: s}))
}

func decodeCoeffComm(g crypto.Group, raw ceremony.Raw,
	threshold uint32) ([]crypto.Point, zkProof, error) {

	var comm CoeffComm3

	err := json.Unmarshal(raw, &comm)
	if err != nil {
		return nil, zkProof{}, err
	}

	if len(comm.Commitments) != int(threshold)+1 {
		return nil, zkProof{}, crypto.ErrDeserialization
	}

	comms := make([]crypto.Point, len(comm.Commitments))
	for i, data := range comm.Commitments {
		comms[i], err = g.DeserializePoint(data)
		if err != nil {
			return nil, zkProof{}, err
		}
	}

	r, err := g.DeserializePoint(comm.Proof.R)
	if err != nil {
		return nil, zkProof{}, err
	}

	z, err := g.DeserializeScalar(comm.Proof.Z)
	if err != nil {
		return nil, zkProof{}, err
	}

	return comms, zkProof{r: r, z: z}, nil
}

// secretShares5 distributes one polynomial evaluation to every party, point
// to point. Shares are intentionally different per recipient, so this round
// is not broadcast verified; bad shares surface as complaints instead.
//
// - implements ceremony.Processor
type secretShares5 struct {
	*state
}

func (p *secretShares5) Name() string {
	return StageSecretShares5
}

func (p *secretShares5) Init() (ceremony.DataToSend, error) {
	s := p.state
	g := s.group()

	s.outgoing = generateShares(g, s.coefficients, s.common.AllIdxs)

	// The polynomial served its purpose.
	for _, c := range s.coefficients {
		c.Zeroize()
	}
	s.coefficients = nil

	private := make(map[ceremony.PartyIdx]interface{}, len(s.outgoing))
	for idx, share := range s.outgoing {
		private[idx] = SecretShare5{Value: share.Bytes()}
	}

	return ceremony.DataToSend{Private: private}, nil
}

func (p *secretShares5) ShouldDelay(stage string) bool {
	return stage == StageComplaints6
}

func (p *secretShares5) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state
	g := s.group()

	s.shares = make(map[ceremony.PartyIdx]crypto.Scalar, len(messages))

	var complaints []ceremony.PartyIdx

	for _, sender := range s.common.AllIdxs {
		raw, found := messages[sender]
		if !found || ceremony.IsRawNil(raw) {
			complaints = append(complaints, sender)
			continue
		}

		share, err := decodeShare(g, raw)
		if err != nil || !verifyShare(g, s.commitments[sender], s.common.OwnIdx, share) {
			complaints = append(complaints, sender)
			continue
		}

		s.shares[sender] = share
	}

	return ceremony.NextStage(ceremony.NewBroadcastStage(s.common,
		&complaints6{state: s, ownComplaints: complaints}))
}

func decodeShare(g crypto.Group, raw ceremony.Raw) (crypto.Scalar, error) {
	var share SecretShare5

	err := json.Unmarshal(raw, &share)
	if err != nil {
		return nil, err
	}

	return g.DeserializeScalar(share.Value)
}

// complaints6 broadcasts which senders failed the share check.
//
// - implements ceremony.Processor
type complaints6 struct {
	*state
	ownComplaints []ceremony.PartyIdx
}

func (p *complaints6) Name() string {
	return StageComplaints6
}

func (p *complaints6) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: Complaints6{Blamed: p.ownComplaints},
	}, nil
}

func (p *complaints6) ShouldDelay(stage string) bool {
	return stage == StageVerifyComplaints7
}

func (p *complaints6) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyComplaints7{state: p.state, collected: messages}))
}

// verifyComplaints7 resolves the complaint broadcast. With no complaints the
// ceremony finishes here.
//
// - implements ceremony.Processor
type verifyComplaints7 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyComplaints7) Name() string {
	return StageVerifyComplaints7
}

func (p *verifyComplaints7) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyComplaints7) ShouldDelay(stage string) bool {
	return stage == StageBlameResponses8
}

func (p *verifyComplaints7) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	s.complaints = make(map[ceremony.PartyIdx][]ceremony.PartyIdx)

	var badSenders, invalid []ceremony.PartyIdx

	total := 0

	for complainer, raw := range agreed {
		var comp Complaints6

		err := json.Unmarshal(raw, &comp)
		if err != nil || len(comp.Blamed) > s.common.NumParties() {
			badSenders = append(badSenders, complainer)
			continue
		}

		valid := true

		for _, idx := range comp.Blamed {
			// Complaining about an unknown party or oneself gives
			// the complainer away.
			if idx == complainer || idx < 1 || int(idx) > s.common.NumParties() {
				invalid = append(invalid, complainer)
				valid = false
				break
			}
		}

		if !valid {
			continue
		}

		s.complaints[complainer] = comp.Blamed
		total += len(comp.Blamed)
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	if len(invalid) > 0 {
		return s.fail(ceremony.FailureInvalidComplaint, p.Name(), invalid)
	}

	if total == 0 {
		return s.finalize()
	}

	return ceremony.NextStage(ceremony.NewBroadcastStage(s.common,
		&blameResponses8{state: s}))
}

// blameResponses8 has every complained-about party reveal, verifiably this
// time, the shares it originally sent to its complainers.
//
// - implements ceremony.Processor
type blameResponses8 struct {
	*state
}

func (p *blameResponses8) Name() string {
	return StageBlameResponses8
}

func (p *blameResponses8) Init() (ceremony.DataToSend, error) {
	s := p.state

	response := BlameResponse8{Shares: make(map[ceremony.PartyIdx][]byte)}

	for complainer, blamed := range s.complaints {
		for _, idx := range blamed {
			if idx == s.common.OwnIdx {
				response.Shares[complainer] = s.outgoing[complainer].Bytes()
			}
		}
	}

	return ceremony.DataToSend{Broadcast: response}, nil
}

func (p *blameResponses8) ShouldDelay(stage string) bool {
	return stage == StageVerifyBlameResponses9
}

func (p *blameResponses8) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	return ceremony.NextStage(ceremony.NewBroadcastStage(p.state.common,
		&verifyBlameResponses9{state: p.state, collected: messages}))
}

// verifyBlameResponses9 resolves the blame responses and settles every
// complaint: either the revealed share is valid and adopted, or its owner is
// reported.
//
// - implements ceremony.Processor
type verifyBlameResponses9 struct {
	*state
	collected map[ceremony.PartyIdx]ceremony.Raw
}

func (p *verifyBlameResponses9) Name() string {
	return StageVerifyBlameResponses9
}

func (p *verifyBlameResponses9) Init() (ceremony.DataToSend, error) {
	return ceremony.DataToSend{
		Broadcast: ceremony.VerificationPayload(p.state.common.AllIdxs, p.collected),
	}, nil
}

func (p *verifyBlameResponses9) ShouldDelay(string) bool {
	return false
}

func (p *verifyBlameResponses9) Process(messages map[ceremony.PartyIdx]ceremony.Raw) ceremony.StageOutcome {
	s := p.state
	g := s.group()

	agreed, blamed, kind := ceremony.VerifyBroadcasts(
		s.common.AllIdxs, s.common.OwnIdx, s.params.Threshold, messages)
	if agreed == nil {
		return s.fail(kind, p.Name(), blamed)
	}

	responses := make(map[ceremony.PartyIdx]BlameResponse8, len(agreed))

	var badSenders []ceremony.PartyIdx

	for idx, raw := range agreed {
		var resp BlameResponse8

		err := json.Unmarshal(raw, &resp)
		if err != nil || len(resp.Shares) > s.common.NumParties() {
			badSenders = append(badSenders, idx)
			continue
		}

		responses[idx] = resp
	}

	if len(badSenders) > 0 {
		return s.fail(ceremony.FailureDeserialization, p.Name(), badSenders)
	}

	var unresolved, invalid []ceremony.PartyIdx

	for complainer, blamedSet := range s.complaints {
		for _, accused := range blamedSet {
			revealed, ok := responses[accused].Shares[complainer]
			if !ok {
				// No reveal at all leaves the original complaint
				// standing against the accused.
				unresolved = append(unresolved, accused)
				continue
			}

			share, err := g.DeserializeScalar(revealed)
			if err != nil || !verifyShare(g, s.commitments[accused], complainer, share) {
				invalid = append(invalid, accused)
				continue
			}

			if complainer == s.common.OwnIdx {
				s.shares[accused] = share
			}
		}
	}

	if len(unresolved) > 0 {
		return s.fail(ceremony.FailureInvalidSecretShare, p.Name(), dedupIdxs(unresolved))
	}

	if len(invalid) > 0 {
		return s.fail(ceremony.FailureInvalidBlameResponse, p.Name(), dedupIdxs(invalid))
	}

	return s.finalize()
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

// finalize assembles the key from the verified shares and commitments, then
// clears all intermediate secrets.
func (s *state) finalize() ceremony.StageOutcome {
	g := s.group()

	pubkey := aggregatePubkey(g, s.commitments)

	secret := g.ScalarZero()
	for _, idx := range s.common.AllIdxs {
		secret = secret.Add(s.shares[idx])
	}

	zeroizeScalars(s.shares)
	zeroizeScalars(s.outgoing)
	s.shares = nil
	s.outgoing = nil

	result := &Result{
		KeyShare: crypto.KeyShare{
			Y: pubkey,
			X: secret,
		},
		PartyPublicKeys: derivePartyPublicKeys(g, s.common.AllIdxs, s.commitments),
		Params:          s.params,
		Mapping:         s.common.Mapping,
		Compatible:      s.scheme.IsPubkeyCompatible(pubkey),
	}

	return ceremony.Done(result)
}
