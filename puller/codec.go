package puller

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec is a minimal grpc/encoding.Codec that marshals request/response
// structs as JSON instead of protobuf wire format. The pull RPC's messages
// are plain Go structs rather than protoc-generated types (no .proto
// compiler is available in this environment), so grpc's default proto codec
// cannot be used; registering an explicit content-subtype keeps the
// exchange self-describing over the wire while still riding on
// google.golang.org/grpc's connection, framing, and deadline machinery.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return codecName }

const codecName = "statsd-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
