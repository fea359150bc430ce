package wire

import (
	"fmt"

	"lwwdict/internal/lww"
)

// EntryFromRecord converts a dictionary record.
func EntryFromRecord(key string, rec lww.Record) *Entry {
	return &Entry{
		Key:       key,
		Payload:   rec.Payload,
		Timestamp: int64(rec.Timestamp),
	}
}

// Record converts the entry back to a dictionary record.
func (e *Entry) Record() lww.Record {
	return lww.NewRecord(e.Payload, lww.Timestamp(e.Timestamp))
}

// FromDictionary captures both sets of d, sorted by key.
func FromDictionary(d *lww.Dictionary, origin string) *State {
	st := &State{Origin: origin}
	d.AddStore().Range(func(key string, rec lww.Record) bool {
		st.Add = append(st.Add, EntryFromRecord(key, rec))
		return true
	})
	d.RemoveStore().Range(func(key string, rec lww.Record) bool {
		st.Remove = append(st.Remove, EntryFromRecord(key, rec))
		return true
	})
	return st
}

// Dictionary rebuilds a dictionary from the state. Every record must carry a
// valid timestamp; duplicate keys resolve with the usual insert rule.
func (s *State) Dictionary() (*lww.Dictionary, error) {
	d := lww.New()
	if s == nil {
		return d, nil
	}
	add := make(map[string]lww.Record, len(s.Add))
	for _, e := range s.Add {
		if err := insertEntry(add, e); err != nil {
			return nil, fmt.Errorf("add set: %w", err)
		}
	}
	remove := make(map[string]lww.Record, len(s.Remove))
	for _, e := range s.Remove {
		if err := insertEntry(remove, e); err != nil {
			return nil, fmt.Errorf("remove set: %w", err)
		}
	}
	return lww.FromSets(add, remove), nil
}

func insertEntry(dst map[string]lww.Record, e *Entry) error {
	rec := e.Record()
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("key %q: %w", e.Key, err)
	}
	if existing, ok := dst[e.Key]; ok && !rec.Timestamp.After(existing.Timestamp) {
		return nil
	}
	dst[e.Key] = rec
	return nil
}

// EncodeDictionary encodes d as a State message.
func EncodeDictionary(d *lww.Dictionary, origin string) ([]byte, error) {
	return FromDictionary(d, origin).MarshalWire()
}

// DecodeDictionary parses a State message into a dictionary and returns the
// origin recorded in it.
func DecodeDictionary(b []byte) (*lww.Dictionary, string, error) {
	var st State
	if err := st.UnmarshalWire(b); err != nil {
		return nil, "", err
	}
	d, err := st.Dictionary()
	if err != nil {
		return nil, "", err
	}
	return d, st.Origin, nil
}
