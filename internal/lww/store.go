package lww

import "sort"

// RecordStore maps keys to the newest record offered for them. It backs
// both the add set and the remove set of a Dictionary.
//
// For every present key the stored timestamp is the maximum ever passed to
// Insert for that key. Older and equally old records are dropped without
// a trace, which keeps Union idempotent, commutative and associative.
type RecordStore struct {
	records map[string]Record
}

// NewRecordStore creates an empty store.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		records: make(map[string]Record),
	}
}

// Insert stores rec under key unless the key already holds a record with an
// equal or later timestamp. Ties keep the existing record. The store keeps
// its own copy of the payload. Insert reports whether the store changed.
func (s *RecordStore) Insert(key string, rec Record) bool {
	if existing, ok := s.records[key]; ok && !rec.Timestamp.After(existing.Timestamp) {
		return false
	}
	s.records[key] = rec.Clone()
	return true
}

// Union inserts every record of src into s and returns how many keys changed.
// src is not modified.
func (s *RecordStore) Union(src *RecordStore) int {
	if src == nil || src == s {
		return 0
	}
	changed := 0
	for key, rec := range src.records {
		if s.Insert(key, rec) {
			changed++
		}
	}
	return changed
}

// Get returns a copy of the record stored under key.
func (s *RecordStore) Get(key string) (Record, bool) {
	rec, ok := s.records[key]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Len returns the number of keys in the store.
func (s *RecordStore) Len() int {
	return len(s.records)
}

// Keys returns the stored keys in ascending order.
func (s *RecordStore) Keys() []string {
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Range calls fn for every record in key order until fn returns false.
// The record passed to fn is a copy.
func (s *RecordStore) Range(fn func(key string, rec Record) bool) {
	for _, k := range s.Keys() {
		if !fn(k, s.records[k].Clone()) {
			return
		}
	}
}

// Records returns a deep copy of the store contents.
func (s *RecordStore) Records() map[string]Record {
	out := make(map[string]Record, len(s.records))
	for k, rec := range s.records {
		out[k] = rec.Clone()
	}
	return out
}

// Clone returns an independent copy of the store.
func (s *RecordStore) Clone() *RecordStore {
	return &RecordStore{records: s.Records()}
}

// Equal reports whether both stores hold the same keys with equal records.
func (s *RecordStore) Equal(other *RecordStore) bool {
	if len(s.records) != len(other.records) {
		return false
	}
	for k, rec := range s.records {
		o, ok := other.records[k]
		if !ok || !rec.Equal(o) {
			return false
		}
	}
	return true
}
