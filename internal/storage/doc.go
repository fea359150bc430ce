// Package storage provides the thread-safe local replica store. It
// serializes access to an lww.Dictionary behind a single lock, validates
// writes at the boundary, and persists snapshots of the replica state.
package storage
