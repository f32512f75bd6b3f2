package ceremony

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// Raw is an undecoded stage payload. Payloads stay raw until broadcast
// consistency has been established, so that malformed data is detected by the
// same majority vote as inconsistent data.
type Raw = json.RawMessage

// Wire is the framing of every peer-to-peer ceremony message: the stage it
// belongs to and the still-encoded payload.
type Wire struct {
	Stage   string `json:"stage"`
	Payload Raw    `json:"payload"`
}

// EncodeWire frames a stage payload.
func EncodeWire(stage string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Errorf("encoding %s payload: %v", stage, err)
	}

	data, err := json.Marshal(Wire{Stage: stage, Payload: raw})
	if err != nil {
		return nil, xerrors.Errorf("framing %s message: %v", stage, err)
	}

	return data, nil
}

// DecodeWire parses the framing of an inbound message without touching the
// payload.
func DecodeWire(data []byte) (Wire, error) {
	var wire Wire

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return wire, xerrors.Errorf("decoding message frame: %v", err)
	}

	if wire.Stage == "" {
		return wire, xerrors.New("message frame has no stage")
	}

	return wire, nil
}

// IsRawNil reports whether a raw payload is absent. A missing entry encodes
// as JSON null.
func IsRawNil(raw Raw) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// BroadcastVerificationMessage carries the full vector of payloads one party
// received during the preceding broadcast stage, keyed by sender index. A
// null entry means nothing was received from that sender.
type BroadcastVerificationMessage struct {
	Data map[PartyIdx]Raw `json:"data"`
}
