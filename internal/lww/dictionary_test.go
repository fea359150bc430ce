package lww

import (
	"errors"
	"reflect"
	"testing"
)

func rec(payload string, ts Timestamp) Record {
	return Record{Payload: []byte(payload), Timestamp: ts}
}

// Three adds with out-of-order timestamps keep the newest one.
func TestDictionary_AddKeepsLatest(t *testing.T) {
	d := New()
	d.Add("key1", rec("", 1))
	d.Add("key1", rec("", 4))
	d.Add("key1", rec("", 2))

	add := d.AddSet()
	if len(add) != 1 {
		t.Fatalf("Expected add set size 1, got %d", len(add))
	}
	if add["key1"].Timestamp != 4 {
		t.Errorf("Expected timestamp 4, got %d", add["key1"].Timestamp)
	}
}

func TestDictionary_AddThenRemove(t *testing.T) {
	d := New()
	d.Add("key1", rec("", 1))
	d.Remove("key1", 2)

	if n := len(d.RemoveSet()); n != 1 {
		t.Errorf("Expected remove set size 1, got %d", n)
	}
	if d.Lookup("key1") {
		t.Error("Expected key1 to be removed")
	}
}

func TestDictionary_RemoveWithoutAdd(t *testing.T) {
	d := New()
	d.Remove("key1", 1)

	if n := len(d.AddSet()); n != 0 {
		t.Errorf("Expected empty add set, got %d", n)
	}
	if n := len(d.RemoveSet()); n != 0 {
		t.Errorf("Expected empty remove set, got %d", n)
	}
	if d.Lookup("key1") {
		t.Error("Expected key1 to be absent")
	}
}

func TestDictionary_MasterSlaveMerge(t *testing.T) {
	master := New()
	slave := New()

	master.Add("cat", rec("master", 1))
	slave.Add("cat", rec("slave", 5))

	master.Merge(slave)
	if got := master.AddSet()["cat"].Timestamp; got != 5 {
		t.Fatalf("Expected merged add timestamp 5, got %d", got)
	}

	master.Remove("cat", 3)
	if n := len(master.RemoveSet()); n != 0 {
		t.Errorf("Removal older than the add must be dropped, remove set has %d", n)
	}

	slave.Remove("cat", 6)
	master.Merge(slave)

	if got := master.RemoveSet()["cat"].Timestamp; got != 6 {
		t.Errorf("Expected remove timestamp 6, got %d", got)
	}
	if master.Lookup("cat") {
		t.Error("Expected cat to be removed after merge")
	}
}

func TestDictionary_UpdateIsAdd(t *testing.T) {
	d := New()
	d.Add("k", rec("v1", 1))
	d.Update("k", rec("v2", 2))
	d.Update("k", rec("stale", 1))

	got, ok := d.Get("k")
	if !ok {
		t.Fatal("Expected k to be visible")
	}
	if string(got.Payload) != "v2" {
		t.Errorf("Expected v2, got %s", string(got.Payload))
	}
}

func TestDictionary_LookupPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		addTs     Timestamp
		removeTs  Timestamp
		hasAdd    bool
		hasRemove bool
		want      bool
	}{
		{"add only", 1, 0, true, false, true},
		{"add newer than remove", 3, 2, true, true, true},
		{"remove newer than add", 2, 3, true, true, false},
		{"equal timestamps resolve to removed", 2, 2, true, true, false},
		{"remove only", 0, 5, false, true, false},
		{"neither", 0, 0, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add := map[string]Record{}
			remove := map[string]Record{}
			if tt.hasAdd {
				add["k"] = rec("v", tt.addTs)
			}
			if tt.hasRemove {
				remove["k"] = rec("v", tt.removeTs)
			}
			d := FromSets(add, remove)
			if got := d.Lookup("k"); got != tt.want {
				t.Errorf("Lookup() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDictionary_RemoveGating(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(d *Dictionary)
		removeTs   Timestamp
		wantRemove bool
	}{
		{
			name:       "later removal applies",
			setup:      func(d *Dictionary) { d.Add("k", rec("v", 5)) },
			removeTs:   6,
			wantRemove: true,
		},
		{
			name:       "equal timestamp is dropped",
			setup:      func(d *Dictionary) { d.Add("k", rec("v", 5)) },
			removeTs:   5,
			wantRemove: false,
		},
		{
			name:       "older removal is dropped",
			setup:      func(d *Dictionary) { d.Add("k", rec("v", 5)) },
			removeTs:   4,
			wantRemove: false,
		},
		{
			name: "invisible key is not touched even with an add record",
			setup: func(d *Dictionary) {
				d.Add("k", rec("v", 1))
				d.Remove("k", 3)
			},
			removeTs:   10,
			wantRemove: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New()
			tt.setup(d)
			before := d.RemoveSet()

			d.Remove("k", tt.removeTs)

			after := d.RemoveSet()
			changed := !reflect.DeepEqual(before, after)
			if changed != tt.wantRemove {
				t.Errorf("remove set changed = %v, want %v (before %v, after %v)", changed, tt.wantRemove, before, after)
			}
		})
	}
}

func TestDictionary_RemoveCopiesPayload(t *testing.T) {
	d := New()
	d.Add("k", rec("payload", 1))
	d.Remove("k", 2)

	tomb := d.RemoveSet()["k"]
	if string(tomb.Payload) != "payload" {
		t.Errorf("Tombstone should carry the add payload, got %s", string(tomb.Payload))
	}
	if tomb.Timestamp != 2 {
		t.Errorf("Tombstone should carry the removal timestamp, got %d", tomb.Timestamp)
	}

	// Stores never share payload bytes.
	d.addSet.records["k"].Payload[0] = 'X'
	if string(d.removeSet.records["k"].Payload) != "payload" {
		t.Error("Mutating the add record must not affect the tombstone")
	}
	if d.addSet.records["k"].Timestamp != 1 {
		t.Error("Removal must not change the add record timestamp")
	}
}

func TestDictionary_ReAddAfterRemove(t *testing.T) {
	d := New()
	d.Add("k", rec("v1", 1))
	d.Remove("k", 2)
	d.Add("k", rec("v2", 3))

	got, ok := d.Get("k")
	if !ok {
		t.Fatal("Expected k visible after a newer add")
	}
	if string(got.Payload) != "v2" {
		t.Errorf("Expected v2, got %s", string(got.Payload))
	}
}

func TestDictionary_KeysAndLen(t *testing.T) {
	d := New()
	d.Add("b", rec("", 1))
	d.Add("a", rec("", 1))
	d.Add("c", rec("", 1))
	d.Remove("b", 2)

	if got := d.Keys(); !reflect.DeepEqual(got, []string{"a", "c"}) {
		t.Errorf("Expected [a c], got %v", got)
	}
	if d.Len() != 2 {
		t.Errorf("Expected 2 visible keys, got %d", d.Len())
	}
}

func TestDictionary_MergeStats(t *testing.T) {
	a := New()
	a.Add("x", rec("", 1))

	b := New()
	b.Add("x", rec("", 2))
	b.Add("y", rec("", 1))
	b.Remove("y", 2)

	stats := a.Merge(b)
	if stats.Adds != 2 || stats.Removes != 1 {
		t.Errorf("Expected {2 1}, got %+v", stats)
	}
	if !stats.Changed() {
		t.Error("Expected Changed() to be true")
	}

	if again := a.Merge(b); again.Changed() {
		t.Errorf("Second merge should change nothing, got %+v", again)
	}
}

func TestDictionary_AccessorsReturnCopies(t *testing.T) {
	d := New()
	d.Add("k", rec("v", 1))

	add := d.AddSet()
	add["k"] = rec("hijack", 9)
	delete(add, "k")

	if got, _ := d.Get("k"); string(got.Payload) != "v" {
		t.Errorf("AddSet must not expose the live map, got %s", string(got.Payload))
	}
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		ts      Timestamp
		wantErr error
	}{
		{1, nil},
		{0, ErrMissingTimestamp},
		{-1, ErrNegativeTimestamp},
	}
	for _, tt := range tests {
		err := Record{Timestamp: tt.ts}.Validate()
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Validate(%d) = %v, want %v", tt.ts, err, tt.wantErr)
		}
	}
}

func TestTimestamp_After(t *testing.T) {
	if !Timestamp(3).After(2) {
		t.Error("3 should be after 2")
	}
	if Timestamp(2).After(2) {
		t.Error("After must be strict")
	}
}
