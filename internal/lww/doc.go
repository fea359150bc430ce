// Package lww implements a Last-Writer-Wins element dictionary, a state-based
// CRDT mapping string keys to opaque payloads. A dictionary holds an add set
// and a remove set of timestamped records; visibility of a key is decided by
// comparing the two timestamps, and replicas converge by merging each set
// independently with a keep-the-newest-record union.
//
// The package performs no locking. Callers that share a Dictionary between
// goroutines must serialize access themselves (see package storage).
package lww
