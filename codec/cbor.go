package codec

import "github.com/fxamacker/cbor/v2"

// CBOR is a Codec backed by fxamacker/cbor/v2 in its default encoding mode.
// The zero value is ready to use.
type CBOR struct{}

func (CBOR) Name() string { return "cbor" }

func (CBOR) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBOR) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }
