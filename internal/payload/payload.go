package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrReservedAttribute is returned for attributes named "timestamp", which
// is carried by the record itself.
var ErrReservedAttribute = errors.New("payload: attribute name \"timestamp\" is reserved")

var marshalOpts = proto.MarshalOptions{Deterministic: true}

// FromMap encodes attrs. Values must be representable in a protobuf Struct:
// nil, bool, numbers, strings, []any and map[string]any.
func FromMap(attrs map[string]any) ([]byte, error) {
	if _, ok := attrs["timestamp"]; ok {
		return nil, ErrReservedAttribute
	}
	s, err := structpb.NewStruct(attrs)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	b, err := marshalOpts.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return b, nil
}

// ToMap decodes b. An empty payload yields an empty map.
func ToMap(b []byte) (map[string]any, error) {
	s, err := decode(b)
	if err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}

// ToJSON renders b as a JSON object.
func ToJSON(b []byte) ([]byte, error) {
	s, err := decode(b)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

func decode(b []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return s, nil
}

// ParseAttrs parses "name=value" pairs. Values that parse as JSON (numbers,
// booleans, null, quoted strings, arrays, objects) keep their JSON type;
// anything else is taken as a plain string.
func ParseAttrs(pairs []string) (map[string]any, error) {
	attrs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q (expected name=value)", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		attrs[name] = v
	}
	return attrs, nil
}
