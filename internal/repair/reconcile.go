package repair

import (
	"lwwdict/internal/lww"
)

// Diff returns the records of local that would change remote if remote
// merged them: keys remote lacks, or holds with an older timestamp, in
// either set. Merging the result into remote has the same effect as merging
// all of local.
func Diff(local, remote *lww.Dictionary) *lww.Dictionary {
	return lww.FromSets(
		newer(local.AddSet(), remote.AddSet()),
		newer(local.RemoveSet(), remote.RemoveSet()),
	)
}

func newer(local, remote map[string]lww.Record) map[string]lww.Record {
	out := make(map[string]lww.Record)
	for k, rec := range local {
		if theirs, ok := remote[k]; ok && !rec.Timestamp.After(theirs.Timestamp) {
			continue
		}
		out[k] = rec
	}
	return out
}

// Empty reports whether d holds no records at all.
func Empty(d *lww.Dictionary) bool {
	adds, removes := d.Sizes()
	return adds == 0 && removes == 0
}

// Converged reports whether a and b hold the same keys with the same
// timestamps in both sets, which is what merging guarantees. Payloads of
// records written with identical timestamps may still differ.
func Converged(a, b *lww.Dictionary) bool {
	return sameTimestamps(a.AddSet(), b.AddSet()) && sameTimestamps(a.RemoveSet(), b.RemoveSet())
}

func sameTimestamps(a, b map[string]lww.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, rec := range a {
		o, ok := b[k]
		if !ok || o.Timestamp != rec.Timestamp {
			return false
		}
	}
	return true
}

// Reconcile merges every replica into a fresh dictionary: the state all of
// them reach once each has seen the others.
func Reconcile(replicas ...*lww.Dictionary) *lww.Dictionary {
	out := lww.New()
	for _, r := range replicas {
		out.Merge(r)
	}
	return out
}
