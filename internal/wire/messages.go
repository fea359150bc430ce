package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every type the codec can carry.
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(b []byte) error
}

// Entry is one keyed record. It is also the Add and Update request.
type Entry struct {
	Key       string
	Payload   []byte
	Timestamp int64
}

// RemoveRequest asks a replica to remove Key as of Timestamp.
type RemoveRequest struct {
	Key       string
	Timestamp int64
}

// KeyRequest names a single key for Lookup and Get.
type KeyRequest struct {
	Key string
}

// LookupResponse reports visibility and, for Get, the visible record.
type LookupResponse struct {
	Visible   bool
	Payload   []byte
	Timestamp int64
}

// State is a full replica state: both record sets plus the sender's ID.
type State struct {
	Add    []*Entry
	Remove []*Entry
	Origin string
}

// StateRequest asks a replica for its full state.
type StateRequest struct {
	From string
}

// MergeRequest ships a replica state to be merged by the receiver. Full
// marks a complete replica state as opposed to a delta.
type MergeRequest struct {
	From  string
	State *State
	Full  bool
}

// MergeResponse reports how many keys the merge changed per set.
type MergeResponse struct {
	Adds    int64
	Removes int64
}

// Empty is the response of Add, Update and Remove.
type Empty struct{}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendMessage(b []byte, num protowire.Number, m Message) ([]byte, error) {
	inner, err := m.MarshalWire()
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

// fieldFunc consumes the value of one field and returns the bytes read or a
// negative protowire error code. It returns 0 for fields it does not know.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

// parse walks the fields of b, skipping the ones fn does not handle.
func parse(name string, b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: %s: %w", name, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return fmt.Errorf("wire: %s field %d: %w", name, num, err)
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("wire: %s field %d: %w", name, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func consumeString(b []byte, dst *string) int {
	v, n := protowire.ConsumeString(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

// consumeBytes copies the value: the codec's input buffer may be reused.
func consumeBytes(b []byte, dst *[]byte) int {
	v, n := protowire.ConsumeBytes(b)
	if n >= 0 {
		*dst = append([]byte(nil), v...)
	}
	return n
}

func consumeVarint(b []byte, dst *uint64) int {
	v, n := protowire.ConsumeVarint(b)
	if n >= 0 {
		*dst = v
	}
	return n
}

// MarshalWire encodes the entry.
func (e *Entry) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, e.Key)
	b = appendBytes(b, 2, e.Payload)
	b = appendVarint(b, 3, uint64(e.Timestamp))
	return b, nil
}

// UnmarshalWire decodes the entry.
func (e *Entry) UnmarshalWire(b []byte) error {
	*e = Entry{}
	return parse("Entry", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &e.Key), nil
		case num == 2 && typ == protowire.BytesType:
			return consumeBytes(b, &e.Payload), nil
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			e.Timestamp = int64(v)
			return n, nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the request.
func (r *RemoveRequest) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, r.Key)
	b = appendVarint(b, 3, uint64(r.Timestamp))
	return b, nil
}

// UnmarshalWire decodes the request.
func (r *RemoveRequest) UnmarshalWire(b []byte) error {
	*r = RemoveRequest{}
	return parse("RemoveRequest", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &r.Key), nil
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			r.Timestamp = int64(v)
			return n, nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the request.
func (r *KeyRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, r.Key), nil
}

// UnmarshalWire decodes the request.
func (r *KeyRequest) UnmarshalWire(b []byte) error {
	*r = KeyRequest{}
	return parse("KeyRequest", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeString(b, &r.Key), nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the response.
func (r *LookupResponse) MarshalWire() ([]byte, error) {
	var b []byte
	if r.Visible {
		b = appendVarint(b, 1, 1)
	}
	b = appendBytes(b, 2, r.Payload)
	b = appendVarint(b, 3, uint64(r.Timestamp))
	return b, nil
}

// UnmarshalWire decodes the response.
func (r *LookupResponse) UnmarshalWire(b []byte) error {
	*r = LookupResponse{}
	return parse("LookupResponse", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			r.Visible = protowire.DecodeBool(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			return consumeBytes(b, &r.Payload), nil
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			r.Timestamp = int64(v)
			return n, nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the state. Entries are written in slice order.
func (s *State) MarshalWire() ([]byte, error) {
	var (
		b   []byte
		err error
	)
	for _, e := range s.Add {
		if b, err = appendMessage(b, 1, e); err != nil {
			return nil, err
		}
	}
	for _, e := range s.Remove {
		if b, err = appendMessage(b, 2, e); err != nil {
			return nil, err
		}
	}
	b = appendString(b, 3, s.Origin)
	return b, nil
}

// UnmarshalWire decodes the state.
func (s *State) UnmarshalWire(b []byte) error {
	*s = State{}
	return parse("State", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			e := new(Entry)
			if err := e.UnmarshalWire(v); err != nil {
				return 0, err
			}
			if num == 1 {
				s.Add = append(s.Add, e)
			} else {
				s.Remove = append(s.Remove, e)
			}
			return n, nil
		case num == 3 && typ == protowire.BytesType:
			return consumeString(b, &s.Origin), nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the request.
func (r *StateRequest) MarshalWire() ([]byte, error) {
	return appendString(nil, 1, r.From), nil
}

// UnmarshalWire decodes the request.
func (r *StateRequest) UnmarshalWire(b []byte) error {
	*r = StateRequest{}
	return parse("StateRequest", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeString(b, &r.From), nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the request.
func (r *MergeRequest) MarshalWire() ([]byte, error) {
	var err error
	b := appendString(nil, 1, r.From)
	if r.State != nil {
		if b, err = appendMessage(b, 2, r.State); err != nil {
			return nil, err
		}
	}
	if r.Full {
		b = appendVarint(b, 3, 1)
	}
	return b, nil
}

// UnmarshalWire decodes the request.
func (r *MergeRequest) UnmarshalWire(b []byte) error {
	*r = MergeRequest{}
	return parse("MergeRequest", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &r.From), nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			st := new(State)
			if err := st.UnmarshalWire(v); err != nil {
				return 0, err
			}
			r.State = st
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			n := consumeVarint(b, &v)
			r.Full = protowire.DecodeBool(v)
			return n, nil
		}
		return 0, nil
	})
}

// MarshalWire encodes the response.
func (r *MergeResponse) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(r.Adds))
	b = appendVarint(b, 2, uint64(r.Removes))
	return b, nil
}

// UnmarshalWire decodes the response.
func (r *MergeResponse) UnmarshalWire(b []byte) error {
	*r = MergeResponse{}
	return parse("MergeResponse", b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		var v uint64
		switch {
		case num == 1 && typ == protowire.VarintType:
			n := consumeVarint(b, &v)
			r.Adds = int64(v)
			return n, nil
		case num == 2 && typ == protowire.VarintType:
			n := consumeVarint(b, &v)
			r.Removes = int64(v)
			return n, nil
		}
		return 0, nil
	})
}

// MarshalWire encodes nothing.
func (*Empty) MarshalWire() ([]byte, error) { return nil, nil }

// UnmarshalWire skips any fields present.
func (e *Empty) UnmarshalWire(b []byte) error {
	return parse("Empty", b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return 0, nil
	})
}
