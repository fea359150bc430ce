package lww

// MergeStats counts the keys a merge changed in each set.
type MergeStats struct {
	Adds    int
	Removes int
}

// Changed reports whether the merge modified the receiver.
func (m MergeStats) Changed() bool {
	return m.Adds > 0 || m.Removes > 0
}

// Dictionary is one replica of the LWW element dictionary.
// The zero value is not usable; create one with New.
type Dictionary struct {
	addSet    *RecordStore
	removeSet *RecordStore
}

// New creates an empty dictionary.
func New() *Dictionary {
	return &Dictionary{
		addSet:    NewRecordStore(),
		removeSet: NewRecordStore(),
	}
}

// FromSets builds a dictionary from raw add and remove records, inserting
// each one with store semantics. It is how decoded replica state is rebuilt.
func FromSets(add, remove map[string]Record) *Dictionary {
	d := New()
	for k, rec := range add {
		d.addSet.Insert(k, rec)
	}
	for k, rec := range remove {
		d.removeSet.Insert(k, rec)
	}
	return d
}

// Add offers rec as the value of key. The add set keeps whichever record
// for key has the latest timestamp. The remove set is never touched.
func (d *Dictionary) Add(key string, rec Record) {
	d.addSet.Insert(key, rec)
}

// Update is Add: both express a newer value for key dated rec.Timestamp.
func (d *Dictionary) Update(key string, rec Record) {
	d.Add(key, rec)
}

// Remove hides key as of ts. It only takes effect when key is currently
// visible and ts is strictly later than the current add record; otherwise
// it is silently dropped. The tombstone is a copy of the add record
// carrying the removal timestamp.
func (d *Dictionary) Remove(key string, ts Timestamp) {
	if !d.Lookup(key) {
		return
	}
	added := d.addSet.records[key]
	if !ts.After(added.Timestamp) {
		return
	}
	d.removeSet.Insert(key, added.WithTimestamp(ts))
}

// Lookup reports whether key is visible: it must have an add record that is
// strictly newer than its remove record, if any. Equal timestamps mean removed.
func (d *Dictionary) Lookup(key string) bool {
	added, ok := d.addSet.records[key]
	if !ok {
		return false
	}
	removed, ok := d.removeSet.records[key]
	if !ok {
		return true
	}
	return added.Timestamp.After(removed.Timestamp)
}

// Get returns a copy of the add record of key when key is visible.
func (d *Dictionary) Get(key string) (Record, bool) {
	if !d.Lookup(key) {
		return Record{}, false
	}
	return d.addSet.Get(key)
}

// Keys returns the visible keys in ascending order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, d.addSet.Len())
	for _, k := range d.addSet.Keys() {
		if d.Lookup(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of visible keys.
func (d *Dictionary) Len() int {
	n := 0
	for k := range d.addSet.records {
		if d.Lookup(k) {
			n++
		}
	}
	return n
}

// Sizes returns the number of records in the add set and the remove set.
func (d *Dictionary) Sizes() (adds, removes int) {
	return d.addSet.Len(), d.removeSet.Len()
}

// Merge folds replica into d by unioning the add sets and then the remove
// sets. replica is read-only. The two unions are separate steps; callers
// that need the merge to appear atomic must hold a lock around the call.
func (d *Dictionary) Merge(replica *Dictionary) MergeStats {
	if replica == nil || replica == d {
		return MergeStats{}
	}
	return MergeStats{
		Adds:    d.addSet.Union(replica.addSet),
		Removes: d.removeSet.Union(replica.removeSet),
	}
}

// AddSet returns a deep copy of the add set.
func (d *Dictionary) AddSet() map[string]Record {
	return d.addSet.Records()
}

// RemoveSet returns a deep copy of the remove set.
func (d *Dictionary) RemoveSet() map[string]Record {
	return d.removeSet.Records()
}

// AddStore exposes the add set read-only through a copy.
func (d *Dictionary) AddStore() *RecordStore {
	return d.addSet.Clone()
}

// RemoveStore exposes the remove set read-only through a copy.
func (d *Dictionary) RemoveStore() *RecordStore {
	return d.removeSet.Clone()
}

// Clone returns an independent copy of the dictionary.
func (d *Dictionary) Clone() *Dictionary {
	return &Dictionary{
		addSet:    d.addSet.Clone(),
		removeSet: d.removeSet.Clone(),
	}
}

// Equal reports whether both dictionaries hold identical sets.
func (d *Dictionary) Equal(other *Dictionary) bool {
	return d.addSet.Equal(other.addSet) && d.removeSet.Equal(other.removeSet)
}
