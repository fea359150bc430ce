package lww

import (
	"fmt"
	"math/rand"
	"testing"
)

// randomReplica applies a seeded sequence of adds and removes over a small
// key space so replicas overlap and collide on timestamps. Add payloads are
// derived from key and timestamp: one timestamp names one write.
func randomReplica(r *rand.Rand, ops int) *Dictionary {
	d := New()
	for i := 0; i < ops; i++ {
		key := fmt.Sprintf("k%d", r.Intn(6))
		ts := Timestamp(r.Intn(20) + 1)
		if r.Intn(3) == 0 {
			d.Remove(key, ts)
		} else {
			d.Add(key, Record{Payload: []byte(fmt.Sprintf("%s@%d", key, ts)), Timestamp: ts})
		}
	}
	return d
}

// sameState compares add sets exactly and remove sets by timestamp. Two
// replicas may tombstone a key at the same instant from different add
// records; ties keep whichever arrived first, so only the timestamps are
// order independent.
func sameState(a, b *Dictionary) bool {
	if !a.addSet.Equal(b.addSet) {
		return false
	}
	if a.removeSet.Len() != b.removeSet.Len() {
		return false
	}
	for k, rec := range a.removeSet.records {
		o, ok := b.removeSet.records[k]
		if !ok || o.Timestamp != rec.Timestamp {
			return false
		}
	}
	return true
}

func merged(parts ...*Dictionary) *Dictionary {
	out := New()
	for _, p := range parts {
		out.Merge(p)
	}
	return out
}

// TestDictionary_Property_MergeIsIdempotent tests that merging a replica twice or with itself changes nothing
func TestDictionary_Property_MergeIsIdempotent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a := randomReplica(r, 15)
		b := randomReplica(r, 15)

		once := a.Clone()
		once.Merge(b)
		twice := once.Clone()
		twice.Merge(b)
		if !sameState(once, twice) {
			t.Fatalf("iteration %d: merging twice differs from merging once", i)
		}

		self := a.Clone()
		self.Merge(a.Clone())
		if !sameState(self, a) {
			t.Fatalf("iteration %d: merging with itself changed state", i)
		}
	}
}

// TestDictionary_Property_MergeIsCommutative tests that A<-B equals B<-A
func TestDictionary_Property_MergeIsCommutative(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 200; i++ {
		a := randomReplica(r, 15)
		b := randomReplica(r, 15)

		ab := a.Clone()
		ab.Merge(b)
		ba := b.Clone()
		ba.Merge(a)

		if !sameState(ab, ba) {
			t.Fatalf("iteration %d: merge is not commutative", i)
		}
		for _, k := range []string{"k0", "k1", "k2", "k3", "k4", "k5"} {
			if ab.Lookup(k) != ba.Lookup(k) {
				t.Fatalf("iteration %d: lookup(%s) diverged", i, k)
			}
		}
	}
}

// TestDictionary_Property_MergeIsAssociative tests that (A<-B)<-C equals A<-(B<-C)
func TestDictionary_Property_MergeIsAssociative(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		a := randomReplica(r, 12)
		b := randomReplica(r, 12)
		c := randomReplica(r, 12)

		left := a.Clone()
		left.Merge(b)
		left.Merge(c)

		bc := b.Clone()
		bc.Merge(c)
		right := a.Clone()
		right.Merge(bc)

		if !sameState(left, right) {
			t.Fatalf("iteration %d: merge is not associative", i)
		}
	}
}

// TestDictionary_Property_ConvergesInAnyOrder tests that every merge order of several replicas reaches the same state
func TestDictionary_Property_ConvergesInAnyOrder(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		replicas := []*Dictionary{randomReplica(r, 10), randomReplica(r, 10), randomReplica(r, 10), randomReplica(r, 10)}
		want := merged(replicas...)

		for j := 0; j < 10; j++ {
			order := r.Perm(len(replicas))
			got := New()
			for _, idx := range order {
				got.Merge(replicas[idx])
				if r.Intn(2) == 0 {
					got.Merge(replicas[idx])
				}
			}
			if !sameState(got, want) {
				t.Fatalf("iteration %d: order %v did not converge", i, order)
			}
		}
	}
}

// TestDictionary_Property_LookupMatchesTimestamps tests lookup(k) == add.ts > remove.ts on random states
func TestDictionary_Property_LookupMatchesTimestamps(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		d := randomReplica(r, 20)
		add := d.AddSet()
		remove := d.RemoveSet()
		for _, k := range []string{"k0", "k1", "k2", "k3", "k4", "k5"} {
			a, hasAdd := add[k]
			rm, hasRemove := remove[k]
			want := hasAdd && (!hasRemove || a.Timestamp > rm.Timestamp)
			if d.Lookup(k) != want {
				t.Fatalf("iteration %d: lookup(%s) = %v, want %v", i, k, d.Lookup(k), want)
			}
		}
	}
}

// TestDictionary_Property_LastWriterWins tests that the highest add timestamp wins regardless of arrival order
func TestDictionary_Property_LastWriterWins(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	for i := 0; i < 200; i++ {
		timestamps := r.Perm(10)
		d := New()
		for _, ts := range timestamps {
			d.Add("k", Record{Payload: []byte(fmt.Sprintf("v%d", ts)), Timestamp: Timestamp(ts + 1)})
		}
		got, _ := d.Get("k")
		if got.Timestamp != 10 || string(got.Payload) != "v9" {
			t.Fatalf("iteration %d: expected v9@10, got %s@%d", i, string(got.Payload), got.Timestamp)
		}
	}
}

// TestDictionary_Property_RemoveNeverTouchesAddSet tests that removals only write the remove set
func TestDictionary_Property_RemoveNeverTouchesAddSet(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		d := randomReplica(r, 10)
		before := d.AddStore()
		d.Remove(fmt.Sprintf("k%d", r.Intn(6)), Timestamp(r.Intn(25)+1))
		if !d.AddStore().Equal(before) {
			t.Fatalf("iteration %d: remove modified the add set", i)
		}
	}
}
