package ceremony

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWire_Codec(t *testing.T) {
	data, err := EncodeWire("StageA", map[string]int{"value": 42})
	require.NoError(t, err)

	wire, err := DecodeWire(data)
	require.NoError(t, err)
	require.Equal(t, "StageA", wire.Stage)
	require.JSONEq(t, `{"value":42}`, string(wire.Payload))
}

func TestDecodeWire_Invalid(t *testing.T) {
	_, err := DecodeWire([]byte("not json"))
	require.Error(t, err)

	_, err = DecodeWire([]byte(`{"payload":{}}`))
	require.EqualError(t, err, "message frame has no stage")
}

func TestIsRawNil(t *testing.T) {
	require.True(t, IsRawNil(nil))
	require.True(t, IsRawNil(Raw("null")))
	require.False(t, IsRawNil(Raw("{}")))
	require.False(t, IsRawNil(Raw(`"null"`)))
}

func TestBroadcastVerificationMessage_NullEntries(t *testing.T) {
	msg := BroadcastVerificationMessage{Data: map[PartyIdx]Raw{
		1: Raw(`{"hash":"00"}`),
		2: nil,
	}}

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded BroadcastVerificationMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.False(t, IsRawNil(decoded.Data[1]))
	require.True(t, IsRawNil(decoded.Data[2]))
}
