package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		c, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}

	_, err := Lookup("protobuf")
	assert.Error(t, err)
}

func TestJSONCodec_UnmarshalRejectsGarbage(t *testing.T) {
	var payload map[string]interface{}
	err := (JSONCodec{}).Unmarshal([]byte("{not json"), &payload)
	assert.Error(t, err)
}

func TestJSONCodec_NumbersDecodeAsFloat64(t *testing.T) {
	var payload map[string]interface{}
	require.NoError(t, (JSONCodec{}).Unmarshal([]byte(`{"user_id": 731231231231231}`), &payload))

	_, ok := payload["user_id"].(float64)
	assert.True(t, ok)
}

func TestMsgpackCodec_StringsStayStrings(t *testing.T) {
	codec := MsgpackCodec{}

	data, err := codec.Marshal(map[string]interface{}{
		"datetime": "2024-06-01T12:30:45.123456",
		"user_id":  uint64(123456789),
	})
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, codec.Unmarshal(data, &payload))

	// Loose decoding keeps string values as string, not []byte
	assert.Equal(t, "2024-06-01T12:30:45.123456", payload["datetime"])
}

func TestMsgpackCodec_UnmarshalRejectsTruncatedInput(t *testing.T) {
	codec := MsgpackCodec{}

	data, err := codec.Marshal(map[string]interface{}{"user_id": uint64(42)})
	require.NoError(t, err)

	var payload map[string]interface{}
	err = codec.Unmarshal(data[:len(data)-1], &payload)
	assert.Error(t, err)
}
