package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// Name is the gRPC content subtype the codec is registered under.
const Name = "lww"

// Codec carries Message values over gRPC. Values that are not Messages but
// proto.Messages, such as health and reflection payloads, or requests decoded
// by a client built from api/lwwdict.proto, go through the proto runtime.
// Both share the protobuf wire format, so a server forced to this codec
// answers standard protobuf clients too.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case Message:
		return m.MarshalWire()
	case proto.Message:
		return proto.Marshal(m)
	}
	return nil, fmt.Errorf("wire: cannot marshal %T", v)
}

// Unmarshal decodes data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case Message:
		return m.UnmarshalWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	}
	return fmt.Errorf("wire: cannot unmarshal into %T", v)
}

// Name returns the content subtype.
func (Codec) Name() string {
	return Name
}
