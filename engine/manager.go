// Package engine exposes the ceremony manager: the component that validates
// start requests, tracks many concurrent keygen and signing ceremonies by
// id, routes inbound peer messages to the right runner, and reports
// outcomes. Transport and on-chain submission stay outside; the boundary is
// channels of framed messages.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	tsc "github.com/quorumkey/tsc"
	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/ceremony/keygen"
	"github.com/quorumkey/tsc/ceremony/signing"
	"github.com/quorumkey/tsc/crypto"
)

// ceremonyIDWindow bounds how far ahead of the latest authorized ceremony an
// unauthorised ceremony id may be before its messages are dropped.
const ceremonyIDWindow = 6000

// Manager tracks every ceremony of one scheme. Keygen and signing ids are
// independent namespaces: the same numeric id may exist in both at once.
type Manager struct {
	sync.Mutex

	me       ceremony.PartyID
	scheme   crypto.Scheme
	cfg      ceremony.Config
	outgoing chan<- ceremony.OutgoingMessage
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	keygens  *namespace
	signings *namespace
}

// namespace holds the runners and id bookkeeping of one ceremony kind.
type namespace struct {
	kind      ceremony.Kind
	runners   map[ceremony.ID]*ceremony.Runner
	latest    ceremony.ID
	isInitial func(string) bool
}

// NewManager creates a manager for the given scheme. The outgoing channel
// receives every message the ceremonies need delivered to peers.
func NewManager(me ceremony.PartyID, scheme crypto.Scheme,
	outgoing chan<- ceremony.OutgoingMessage, cfg ceremony.Config) *Manager {

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		me:       me,
		scheme:   scheme,
		cfg:      cfg,
		outgoing: outgoing,
		logger: tsc.Logger.With().
			Str("component", "ceremony-manager").
			Str("scheme", scheme.Name()).Logger(),
		ctx:    ctx,
		cancel: cancel,
		keygens: &namespace{
			kind:      ceremony.KindKeygen,
			runners:   make(map[ceremony.ID]*ceremony.Runner),
			isInitial: keygen.IsInitialStage,
		},
		signings: &namespace{
			kind:      ceremony.KindSigning,
			runners:   make(map[ceremony.ID]*ceremony.Runner),
			isInitial: signing.IsInitialStage,
		},
	}
}

// Close stops every running ceremony.
func (m *Manager) Close() {
	m.cancel()
}

// RequestKeygen starts a key generation ceremony with the given participant
// set. The outcome is eventually delivered on the returned channel; on
// success its Result is a *keygen.Result.
func (m *Manager) RequestKeygen(id ceremony.ID, participants []ceremony.PartyID,
	context keygen.HashContext, seed [32]byte) (<-chan ceremony.Report, error) {

	m.Lock()
	defer m.Unlock()

	if id <= m.keygens.latest {
		return nil, xerrors.Errorf("keygen ceremony id %d already used", id)
	}

	mapping, err := ceremony.NewPartyIdxMapping(participants)
	if err != nil {
		return nil, xerrors.Errorf("invalid participant set: %v", err)
	}

	ownIdx, found := mapping.Idx(m.me)
	if !found {
		return nil, xerrors.Errorf("own identity %q not in participant set", m.me)
	}

	params := ceremony.DefaultThresholdParameters(mapping.Count())

	common := m.newCommon(ceremony.KindKeygen, id, ownIdx, mapping.AllIdxs(), mapping, seed)

	stage := keygen.NewCeremony(common, m.scheme, params, context)

	return m.start(m.keygens, id, stage, mapping), nil
}

// RequestSigning starts a signing ceremony over one or more payloads with a
// subset of the key's original parties. The outcome is eventually delivered
// on the returned channel; on success its Result is a []crypto.Signature.
func (m *Manager) RequestSigning(id ceremony.ID, signers []ceremony.PartyID,
	key *keygen.Result, payloads []crypto.SigningPayload,
	seed [32]byte) (<-chan ceremony.Report, error) {

	m.Lock()
	defer m.Unlock()

	if id <= m.signings.latest {
		return nil, xerrors.Errorf("signing ceremony id %d already used", id)
	}

	err := m.scheme.VerifyPayloads(payloads)
	if err != nil {
		return nil, xerrors.Errorf("invalid payloads: %v", err)
	}

	if len(signers) < int(key.Params.Threshold)+1 {
		return nil, xerrors.Errorf("need at least %d signers, got %d",
			key.Params.Threshold+1, len(signers))
	}

	signerIdxs := make([]ceremony.PartyIdx, 0, len(signers))
	seen := make(map[ceremony.PartyIdx]struct{}, len(signers))

	var ownIdx ceremony.PartyIdx

	for _, signer := range signers {
		idx, found := key.Mapping.Idx(signer)
		if !found {
			return nil, xerrors.Errorf("signer %q does not hold a share of this key", signer)
		}

		if _, dup := seen[idx]; dup {
			return nil, xerrors.Errorf("duplicate signer %q", signer)
		}
		seen[idx] = struct{}{}

		signerIdxs = append(signerIdxs, idx)

		if signer == m.me {
			ownIdx = idx
		}
	}

	if ownIdx == 0 {
		return nil, xerrors.Errorf("own identity %q not in signer set", m.me)
	}

	sort.Slice(signerIdxs, func(i, j int) bool { return signerIdxs[i] < signerIdxs[j] })

	common := m.newCommon(ceremony.KindSigning, id, ownIdx, signerIdxs, key.Mapping, seed)

	stage := signing.NewCeremony(common, m.scheme, key, payloads)

	return m.start(m.signings, id, stage, key.Mapping), nil
}

// ProcessKeygenMessage routes an inbound keygen message to its ceremony,
// creating an unauthorised runner when the id is plausible but not yet
// requested locally.
func (m *Manager) ProcessKeygenMessage(sender ceremony.PartyID, id ceremony.ID, data []byte) {
	m.processMessage(m.keygens, sender, id, data)
}

// ProcessSigningMessage routes an inbound signing message to its ceremony.
func (m *Manager) ProcessSigningMessage(sender ceremony.PartyID, id ceremony.ID, data []byte) {
	m.processMessage(m.signings, sender, id, data)
}

func (m *Manager) processMessage(ns *namespace, sender ceremony.PartyID,
	id ceremony.ID, data []byte) {

	if sender == m.me {
		return
	}

	m.Lock()
	defer m.Unlock()

	runner, found := ns.runners[id]
	if !found {
		// A finished or stale ceremony leaves no runner behind.
		if id <= ns.latest || id > ns.latest+ceremonyIDWindow {
			m.logger.Debug().
				Uint64("ceremony_id", uint64(id)).
				Str("kind", string(ns.kind)).
				Msg("dropping message outside the ceremony id window")

			return
		}

		runner = m.spawnRunner(ns, id)
	}

	runner.Deliver(sender, data)
}

// newCommon assembles the per-ceremony shared state.
func (m *Manager) newCommon(kind ceremony.Kind, id ceremony.ID, ownIdx ceremony.PartyIdx,
	allIdxs []ceremony.PartyIdx, mapping *ceremony.PartyIdxMapping,
	seed [32]byte) *ceremony.Common {

	return &ceremony.Common{
		Kind:       kind,
		CeremonyID: id,
		OwnIdx:     ownIdx,
		AllIdxs:    allIdxs,
		Mapping:    mapping,
		Outgoing:   m.outgoing,
		Rng:        crypto.NewRng(seed),
		Logger: m.logger.With().
			Uint64("ceremony_id", uint64(id)).
			Str("kind", string(kind)).Logger(),
	}
}

// start authorizes the ceremony on its runner, creating it if no early
// messages did already, and wires the metrics around the outcome.
func (m *Manager) start(ns *namespace, id ceremony.ID, stage ceremony.Stage,
	mapping *ceremony.PartyIdxMapping) <-chan ceremony.Report {

	runner, found := ns.runners[id]
	if !found {
		runner = m.spawnRunner(ns, id)
	}

	ns.latest = id

	results := make(chan ceremony.Report, 1)
	out := make(chan ceremony.Report, 1)

	promCeremonies.WithLabelValues(string(ns.kind)).Inc()

	started := time.Now()

	go func() {
		select {
		case report := <-results:
			outcome := "success"
			if report.Failed() {
				outcome = "failure"
			}

			promOutcomes.WithLabelValues(string(ns.kind), outcome).Inc()
			promDuration.WithLabelValues(string(ns.kind)).
				Observe(time.Since(started).Seconds())

			out <- report

		case <-m.ctx.Done():
		}
	}()

	runner.Start(ceremony.Request{
		InitialStage: stage,
		Mapping:      mapping,
		Results:      results,
	})

	return out
}

func (m *Manager) spawnRunner(ns *namespace, id ceremony.ID) *ceremony.Runner {
	runner := ceremony.NewRunner(id, m.cfg, ns.isInitial,
		m.logger.With().Str("kind", string(ns.kind)).Logger())

	ns.runners[id] = runner

	promRunning.Inc()

	go func() {
		runner.Run(m.ctx)

		m.Lock()
		delete(ns.runners, id)
		m.Unlock()

		promRunning.Dec()
	}()

	return runner
}
