// Package codec defines the pluggable serializer used for cache values.
//
// A Codec turns a value into bytes for storage and back. The cache layer
// never infers a wire format from a value's runtime shape; the coordinator
// is constructed with exactly one Codec and uses it for every encode and
// decode. JSON is the default and keeps stored values readable in Redis;
// Msgpack and CBOR trade readability for size and speed.
package codec

// Codec encodes and decodes cache values.
type Codec interface {
	// Name identifies the codec in errors and logs.
	Name() string
	// Marshal encodes v to bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes data into the value pointed to by v.
	Unmarshal(data []byte, v any) error
}
