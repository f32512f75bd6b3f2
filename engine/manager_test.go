package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quorumkey/tsc/ceremony"
	"github.com/quorumkey/tsc/ceremony/keygen"
	"github.com/quorumkey/tsc/crypto"
	"github.com/quorumkey/tsc/crypto/secp256k1"
)

// cluster wires several managers together through an in-process router.
type cluster struct {
	ids      []ceremony.PartyID
	managers map[ceremony.PartyID]*Manager
	stop     chan struct{}
}

func newCluster(t *testing.T, n int, cfg ceremony.Config) *cluster {
	scheme := secp256k1.NewEvmScheme()

	c := &cluster{
		managers: make(map[ceremony.PartyID]*Manager, n),
		stop:     make(chan struct{}),
	}

	for i := 0; i < n; i++ {
		c.ids = append(c.ids, ceremony.PartyID(fmt.Sprintf("node-%d", i)))
	}

	for _, id := range c.ids {
		outgoing := make(chan ceremony.OutgoingMessage, 256)
		c.managers[id] = NewManager(id, scheme, outgoing, cfg)

		go c.route(id, outgoing)
	}

	t.Cleanup(func() {
		close(c.stop)
		for _, m := range c.managers {
			m.Close()
		}
	})

	return c
}

// route delivers one manager's outgoing messages to their recipients.
func (c *cluster) route(sender ceremony.PartyID, outgoing <-chan ceremony.OutgoingMessage) {
	for {
		select {
		case msg := <-outgoing:
			recipients := msg.Recipients
			if len(recipients) == 0 {
				recipients = c.ids
			}

			for _, id := range recipients {
				if id == sender {
					continue
				}

				m, found := c.managers[id]
				if !found {
					continue
				}

				switch msg.Kind {
				case ceremony.KindKeygen:
					m.ProcessKeygenMessage(sender, msg.CeremonyID, msg.Data)
				case ceremony.KindSigning:
					m.ProcessSigningMessage(sender, msg.CeremonyID, msg.Data)
				}
			}

		case <-c.stop:
			return
		}
	}
}

func seedFor(tag byte, id ceremony.PartyID) [32]byte {
	var seed [32]byte
	seed[0] = tag
	copy(seed[1:], id)

	return seed
}

func collectReports(t *testing.T, chans map[ceremony.PartyID]<-chan ceremony.Report) map[ceremony.PartyID]ceremony.Report {
	reports := make(map[ceremony.PartyID]ceremony.Report, len(chans))

	for id, ch := range chans {
		select {
		case report := <-ch:
			reports[id] = report
		case <-time.After(30 * time.Second):
			t.Fatalf("no report from %s", id)
		}
	}

	return reports
}

func runClusterKeygen(t *testing.T, c *cluster, id ceremony.ID,
	tag byte) map[ceremony.PartyID]*keygen.Result {

	var context keygen.HashContext
	context[0] = byte(id)

	chans := make(map[ceremony.PartyID]<-chan ceremony.Report, len(c.ids))

	for _, pid := range c.ids {
		ch, err := c.managers[pid].RequestKeygen(id, c.ids, context, seedFor(tag, pid))
		require.NoError(t, err)

		chans[pid] = ch
	}

	keys := make(map[ceremony.PartyID]*keygen.Result, len(c.ids))

	for pid, report := range collectReports(t, chans) {
		require.False(t, report.Failed(), "%s: %v", pid, report.Reason)
		keys[pid] = report.Result.(*keygen.Result)
	}

	return keys
}

func TestManager_KeygenAndSigningEndToEnd(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()

	c := newCluster(t, 4, ceremony.DefaultConfig())
	keys := runClusterKeygen(t, c, 1, 0x10)

	// Everyone holds the same aggregate key.
	pubkey := keys[c.ids[0]].KeyShare.Y
	for _, key := range keys {
		require.True(t, key.KeyShare.Y.Equal(pubkey))
		require.Equal(t, uint32(2), key.Params.Threshold)
	}

	payload := crypto.SigningPayload(make([]byte, 32))
	payload[0] = 0x01

	chans := make(map[ceremony.PartyID]<-chan ceremony.Report, len(c.ids))

	for _, pid := range c.ids {
		ch, err := c.managers[pid].RequestSigning(1, c.ids, keys[pid],
			[]crypto.SigningPayload{payload}, seedFor(0x20, pid))
		require.NoError(t, err)

		chans[pid] = ch
	}

	for pid, report := range collectReports(t, chans) {
		require.False(t, report.Failed(), "%s: %v", pid, report.Reason)

		sigs := report.Result.([]crypto.Signature)
		require.Len(t, sigs, 1)
		require.NoError(t, scheme.VerifySignature(sigs[0], pubkey, payload))

		other := crypto.SigningPayload(make([]byte, 32))
		other[0] = 0x02
		require.ErrorIs(t, scheme.VerifySignature(sigs[0], pubkey, other),
			crypto.ErrInvalidSignature)
	}
}

func TestManager_SigningWithSubset(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()

	c := newCluster(t, 4, ceremony.DefaultConfig())
	keys := runClusterKeygen(t, c, 1, 0x30)

	payload := crypto.SigningPayload(make([]byte, 32))

	// Threshold 2: three signers suffice, node-2 sits out.
	signers := []ceremony.PartyID{c.ids[0], c.ids[1], c.ids[3]}

	chans := make(map[ceremony.PartyID]<-chan ceremony.Report, len(signers))

	for _, pid := range signers {
		ch, err := c.managers[pid].RequestSigning(1, signers, keys[pid],
			[]crypto.SigningPayload{payload}, seedFor(0x40, pid))
		require.NoError(t, err)

		chans[pid] = ch
	}

	for pid, report := range collectReports(t, chans) {
		require.False(t, report.Failed(), "%s: %v", pid, report.Reason)

		sigs := report.Result.([]crypto.Signature)
		require.NoError(t, scheme.VerifySignature(sigs[0],
			keys[signers[0]].KeyShare.Y, payload))
	}
}

func TestManager_DistinctCeremoniesDistinctKeys(t *testing.T) {
	c := newCluster(t, 4, ceremony.DefaultConfig())

	first := runClusterKeygen(t, c, 1, 0x50)
	second := runClusterKeygen(t, c, 2, 0x60)

	require.False(t, first[c.ids[0]].KeyShare.Y.Equal(second[c.ids[0]].KeyShare.Y))
}

func TestManager_KeygenWithSilentParty(t *testing.T) {
	cfg := ceremony.Config{
		StageTimeout:        500 * time.Millisecond,
		UnauthorisedTimeout: time.Minute,
	}

	c := newCluster(t, 4, cfg)

	// node-3 never requests the ceremony and never answers.
	silent := c.ids[3]

	var context keygen.HashContext

	chans := make(map[ceremony.PartyID]<-chan ceremony.Report, 3)

	for _, pid := range c.ids[:3] {
		ch, err := c.managers[pid].RequestKeygen(1, c.ids, context, seedFor(0x70, pid))
		require.NoError(t, err)

		chans[pid] = ch
	}

	for pid, report := range collectReports(t, chans) {
		require.True(t, report.Failed(), "%s", pid)
		require.Equal(t, ceremony.FailureBroadcastInsufficientMessages, report.Reason.Kind)
		require.Equal(t, []ceremony.PartyID{silent}, report.Blamed)
	}
}

func TestManager_RequestValidation(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()

	outgoing := make(chan ceremony.OutgoingMessage, 16)
	m := NewManager("node-0", scheme, outgoing, ceremony.DefaultConfig())
	defer m.Close()

	var context keygen.HashContext
	var seed [32]byte

	// The requester must be part of the participant set.
	_, err := m.RequestKeygen(1, []ceremony.PartyID{"node-1", "node-2"}, context, seed)
	require.Error(t, err)

	participants := []ceremony.PartyID{"node-0", "node-1", "node-2", "node-3"}

	_, err = m.RequestKeygen(5, participants, context, seed)
	require.NoError(t, err)

	// Ids are strictly increasing within the namespace.
	_, err = m.RequestKeygen(5, participants, context, seed)
	require.EqualError(t, err, "keygen ceremony id 5 already used")

	_, err = m.RequestKeygen(3, participants, context, seed)
	require.Error(t, err)

	// Duplicate participants are rejected.
	_, err = m.RequestKeygen(6, []ceremony.PartyID{"node-0", "node-0"}, context, seed)
	require.Error(t, err)
}

func TestManager_SigningRequestValidation(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()
	g := scheme.Group()

	outgoing := make(chan ceremony.OutgoingMessage, 16)
	m := NewManager("node-0", scheme, outgoing, ceremony.DefaultConfig())
	defer m.Close()

	mapping, err := ceremony.NewPartyIdxMapping(
		[]ceremony.PartyID{"node-0", "node-1", "node-2", "node-3"})
	require.NoError(t, err)

	secret := g.ScalarOne()
	key := &keygen.Result{
		KeyShare: crypto.KeyShare{Y: g.BaseMul(secret), X: secret},
		PartyPublicKeys: map[ceremony.PartyIdx]crypto.Point{
			1: g.BaseMul(secret), 2: g.BaseMul(secret),
			3: g.BaseMul(secret), 4: g.BaseMul(secret),
		},
		Params:  ceremony.ThresholdParameters{ShareCount: 4, Threshold: 2},
		Mapping: mapping,
	}

	payload := crypto.SigningPayload(make([]byte, 32))
	all := mapping.AllIDs()

	var seed [32]byte

	// The scheme rejects malformed payload sets up front.
	_, err = m.RequestSigning(1, all, key, []crypto.SigningPayload{payload, payload}, seed)
	require.Error(t, err)

	_, err = m.RequestSigning(1, all, key, []crypto.SigningPayload{make([]byte, 16)}, seed)
	require.Error(t, err)

	// Too few signers for threshold 2.
	_, err = m.RequestSigning(1, all[:2], key, []crypto.SigningPayload{payload}, seed)
	require.EqualError(t, err, "need at least 3 signers, got 2")

	// Signers must hold shares of the key, without duplicates, and must
	// include the requester.
	_, err = m.RequestSigning(1, []ceremony.PartyID{"node-0", "node-1", "stranger"},
		key, []crypto.SigningPayload{payload}, seed)
	require.Error(t, err)

	_, err = m.RequestSigning(1, []ceremony.PartyID{"node-0", "node-1", "node-1"},
		key, []crypto.SigningPayload{payload}, seed)
	require.Error(t, err)

	_, err = m.RequestSigning(1, all[1:], key, []crypto.SigningPayload{payload}, seed)
	require.EqualError(t, err, `own identity "node-0" not in signer set`)

	_, err = m.RequestSigning(1, all, key, []crypto.SigningPayload{payload}, seed)
	require.NoError(t, err)

	_, err = m.RequestSigning(1, all, key, []crypto.SigningPayload{payload}, seed)
	require.EqualError(t, err, "signing ceremony id 1 already used")
}

func TestManager_DropsMessagesOutsideIDWindow(t *testing.T) {
	scheme := secp256k1.NewEvmScheme()

	outgoing := make(chan ceremony.OutgoingMessage, 16)
	m := NewManager("node-0", scheme, outgoing, ceremony.DefaultConfig())
	defer m.Close()

	// Neither creates a runner nor panics.
	m.ProcessKeygenMessage("node-1", ceremonyIDWindow+1, []byte(`{"stage":"HashCommitments1","payload":{}}`))

	m.Lock()
	require.Empty(t, m.keygens.runners)
	m.Unlock()

	// A plausible id gets an unauthorised runner.
	m.ProcessKeygenMessage("node-1", 3, []byte(`{"stage":"HashCommitments1","payload":{}}`))

	m.Lock()
	require.Len(t, m.keygens.runners, 1)
	m.Unlock()

	// Own traffic looped back by the transport is ignored.
	m.ProcessSigningMessage("node-0", 1, []byte(`{"stage":"AwaitCommitments1","payload":{}}`))

	m.Lock()
	require.Empty(t, m.signings.runners)
	m.Unlock()
}
