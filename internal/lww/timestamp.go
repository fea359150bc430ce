package lww

import "errors"

var (
	// ErrMissingTimestamp is returned when a record or removal carries no timestamp.
	ErrMissingTimestamp = errors.New("lww: missing timestamp")
	// ErrNegativeTimestamp is returned for timestamps below zero.
	ErrNegativeTimestamp = errors.New("lww: negative timestamp")
)

// Timestamp orders writes. All conflict resolution reduces to comparisons
// on this type, so callers must supply values from a single total order
// (typically milliseconds since the Unix epoch).
type Timestamp int64

// After reports whether t is strictly later than other.
func (t Timestamp) After(other Timestamp) bool {
	return t > other
}

// ValidateTimestamp rejects timestamps that cannot order a write.
// Zero is what an absent field decodes to, so it counts as missing.
func ValidateTimestamp(ts Timestamp) error {
	if ts == 0 {
		return ErrMissingTimestamp
	}
	if ts < 0 {
		return ErrNegativeTimestamp
	}
	return nil
}
