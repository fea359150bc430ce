package lww

import "bytes"

// Record is the unit stored in both sets: an opaque payload plus the
// timestamp that orders it. The payload is never inspected.
type Record struct {
	Payload   []byte
	Timestamp Timestamp
}

// NewRecord returns a record owning a copy of payload.
func NewRecord(payload []byte, ts Timestamp) Record {
	return Record{
		Payload:   clonePayload(payload),
		Timestamp: ts,
	}
}

// Validate checks the record's timestamp.
func (r Record) Validate() error {
	return ValidateTimestamp(r.Timestamp)
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{
		Payload:   clonePayload(r.Payload),
		Timestamp: r.Timestamp,
	}
}

// WithTimestamp returns a deep copy of the record dated at ts.
// Removal records are built this way so the add set and the remove set
// never share payload storage.
func (r Record) WithTimestamp(ts Timestamp) Record {
	c := r.Clone()
	c.Timestamp = ts
	return c
}

// Equal reports whether both records carry the same timestamp and payload bytes.
func (r Record) Equal(other Record) bool {
	return r.Timestamp == other.Timestamp && bytes.Equal(r.Payload, other.Payload)
}

func clonePayload(p []byte) []byte {
	if p == nil {
		return nil
	}
	return append([]byte(nil), p...)
}
