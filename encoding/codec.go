// Package encoding provides the payload codecs used on the bus boundary.
// ALL payload serialization MUST go through this package to ensure consistent
// behavior between publishers and the relay.
//
// Thread Safety: codecs are stateless and safe for concurrent use.
package encoding

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes bus payloads for a single wire format.
type Codec interface {
	// Name returns the format name used in configuration ("json", "msgpack").
	Name() string
	// Marshal encodes a value to wire bytes.
	Marshal(v interface{}) ([]byte, error)
	// Unmarshal decodes wire bytes into v.
	Unmarshal(data []byte, v interface{}) error
}

var codecs = map[string]Codec{
	"json":    JSONCodec{},
	"msgpack": MsgpackCodec{},
}

// Lookup returns the codec for the given format name.
func Lookup(format string) (Codec, error) {
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unknown payload format: %s", format)
	}
	return c, nil
}

// JSONCodec is the default wire format. Cross-process publishers written in
// other languages emit JSON, so numbers decode as float64.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// MsgpackCodec is the compact wire format.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

// Marshal encodes a value to msgpack format.
func (MsgpackCodec) Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data using loose interface decoding.
// When decoding into interface{}, strings are preserved as Go strings (not
// []byte). Handlers key into payloads by string field and compare string
// values, so []byte leaking through would break every lookup.
func (MsgpackCodec) Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	return dec.Decode(v)
}
