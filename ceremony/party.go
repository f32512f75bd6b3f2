package ceremony

import (
	"sort"

	"golang.org/x/xerrors"
)

// PartyIdxMapping is the bijection between participant identities and the
// dense 1..n indices used by the protocol math. It is built once per ceremony
// and never changes afterwards.
type PartyIdxMapping struct {
	ids     []PartyID
	idToIdx map[PartyID]PartyIdx
}

// NewPartyIdxMapping builds the mapping from a participant set. Identities
// are sorted so that every party derives the same indices.
func NewPartyIdxMapping(parties []PartyID) (*PartyIdxMapping, error) {
	if len(parties) == 0 {
		return nil, xerrors.New("empty participant set")
	}

	ids := make([]PartyID, len(parties))
	copy(ids, parties)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	idToIdx := make(map[PartyID]PartyIdx, len(ids))
	for i, id := range ids {
		if _, found := idToIdx[id]; found {
			return nil, xerrors.Errorf("duplicate participant %q", id)
		}

		idToIdx[id] = PartyIdx(i + 1)
	}

	return &PartyIdxMapping{ids: ids, idToIdx: idToIdx}, nil
}

// Count returns the number of participants.
func (m *PartyIdxMapping) Count() int {
	return len(m.ids)
}

// Idx returns the protocol index of an identity.
func (m *PartyIdxMapping) Idx(id PartyID) (PartyIdx, bool) {
	idx, found := m.idToIdx[id]

	return idx, found
}

// ID returns the identity behind a protocol index.
func (m *PartyIdxMapping) ID(idx PartyIdx) (PartyID, bool) {
	if idx < 1 || int(idx) > len(m.ids) {
		return "", false
	}

	return m.ids[idx-1], true
}

// AllIdxs returns every protocol index in ascending order.
func (m *PartyIdxMapping) AllIdxs() []PartyIdx {
	idxs := make([]PartyIdx, len(m.ids))
	for i := range m.ids {
		idxs[i] = PartyIdx(i + 1)
	}

	return idxs
}

// AllIDs returns the sorted identities.
func (m *PartyIdxMapping) AllIDs() []PartyID {
	ids := make([]PartyID, len(m.ids))
	copy(ids, m.ids)

	return ids
}

// IDsOf maps a set of protocol indices back to sorted identities. Unknown
// indices are skipped.
func (m *PartyIdxMapping) IDsOf(idxs []PartyIdx) []PartyID {
	ids := make([]PartyID, 0, len(idxs))
	for _, idx := range idxs {
		id, found := m.ID(idx)
		if found {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
