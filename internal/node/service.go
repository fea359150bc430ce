package node

import (
	"context"
	"errors"
	"fmt"

	"lwwdict/internal/gossip"
	"lwwdict/internal/lww"
	"lwwdict/internal/repair"
	"lwwdict/internal/storage"
)

// ErrEmptyKey is returned for client operations without a key.
var ErrEmptyKey = errors.New("node: key must not be empty")

// Service defines the operations a replica offers.
type Service interface {
	Add(ctx context.Context, key string, rec lww.Record) error
	Update(ctx context.Context, key string, rec lww.Record) error
	Remove(ctx context.Context, key string, ts lww.Timestamp) error
	Lookup(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (lww.Record, bool, error)
	// State returns the full replica state to the peer or client from.
	State(ctx context.Context, from string) (*lww.Dictionary, error)
	// Merge folds a replica received from peer from. full marks a complete
	// replica state rather than a delta.
	Merge(ctx context.Context, from string, replica *lww.Dictionary, full bool) (lww.MergeStats, error)
}

type service struct {
	store    storage.Store
	peers    *gossip.PeerTable
	repairer *repair.Repairer
}

// NewService returns the base Service over store. When a full state arrives
// from a known peer that is missing local records, repairer pushes them back.
// peers and repairer may be nil.
func NewService(store storage.Store, peers *gossip.PeerTable, repairer *repair.Repairer) Service {
	return &service{
		store:    store,
		peers:    peers,
		repairer: repairer,
	}
}

func (s *service) Add(_ context.Context, key string, rec lww.Record) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.store.Add(key, rec)
}

func (s *service) Update(_ context.Context, key string, rec lww.Record) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.store.Update(key, rec)
}

func (s *service) Remove(_ context.Context, key string, ts lww.Timestamp) error {
	if key == "" {
		return ErrEmptyKey
	}
	return s.store.Remove(key, ts)
}

func (s *service) Lookup(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	return s.store.Lookup(key), nil
}

func (s *service) Get(_ context.Context, key string) (lww.Record, bool, error) {
	if key == "" {
		return lww.Record{}, false, ErrEmptyKey
	}
	rec, ok := s.store.Get(key)
	return rec, ok, nil
}

func (s *service) State(_ context.Context, from string) (*lww.Dictionary, error) {
	s.contact(from)
	return s.store.Snapshot(), nil
}

// contact marks a known peer alive when it reaches us, so a restarted
// peer is selected again without waiting for our own sync to succeed.
func (s *service) contact(from string) {
	if s.peers != nil && from != "" {
		s.peers.MarkAlive(from)
	}
}

func (s *service) Merge(_ context.Context, from string, replica *lww.Dictionary, full bool) (lww.MergeStats, error) {
	if replica == nil {
		return lww.MergeStats{}, fmt.Errorf("merge from %q: no state", from)
	}
	stats := s.store.Merge(replica)
	s.contact(from)

	if full && s.repairer != nil && s.peers != nil {
		if p, ok := s.peers.Get(from); ok {
			s.repairer.Repair(p.ID, p.Addr, repair.Diff(s.store.Snapshot(), replica))
		}
	}
	return stats, nil
}
