package gossip

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// PeerStatus represents what the last syncs say about a peer.
type PeerStatus int

const (
	Alive PeerStatus = iota
	Suspect
	Dead
)

// String returns the string representation of PeerStatus.
func (s PeerStatus) String() string {
	switch s {
	case Alive:
		return "ALIVE"
	case Suspect:
		return "SUSPECT"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status in JSON output.
func (s PeerStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Peer is a remote replica.
type Peer struct {
	ID        string     `json:"id"`
	Addr      string     `json:"addr"`
	Status    PeerStatus `json:"status"`
	Failures  int        `json:"failures"`
	LastSync  time.Time  `json:"last_sync"`
	LastError string     `json:"last_error,omitempty"`
}

// DefaultDeadAfter is the number of consecutive failures after which a
// peer is considered dead.
const DefaultDeadAfter = 3

// PeerTable tracks the remote replicas a node exchanges state with.
type PeerTable struct {
	mu        sync.Mutex
	localID   string
	peers     map[string]*Peer
	deadAfter int
	rng       *rand.Rand
	logger    log.Logger
}

// NewPeerTable creates an empty peer table for the node localID.
func NewPeerTable(localID string, deadAfter int, logger log.Logger) *PeerTable {
	if deadAfter <= 0 {
		deadAfter = DefaultDeadAfter
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &PeerTable{
		localID:   localID,
		peers:     make(map[string]*Peer),
		deadAfter: deadAfter,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger,
	}
}

// Add registers a peer as Alive. The local node and known IDs are ignored.
func (t *PeerTable) Add(id, addr string) {
	if id == t.localID {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.peers[id]; exists {
		return
	}
	t.peers[id] = &Peer{ID: id, Addr: addr, Status: Alive}
}

// Get returns the peer with the given ID.
func (t *PeerTable) Get(id string) (Peer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// MarkAlive records a successful sync with id.
func (t *PeerTable) MarkAlive(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		return
	}
	if p.Status != Alive {
		level.Info(t.logger).Log("msg", "peer alive", "peer", id, "was", p.Status)
	}
	p.Status = Alive
	p.Failures = 0
	p.LastError = ""
	p.LastSync = time.Now()
}

// MarkFailed records a failed sync with id. One failure makes the peer
// Suspect; deadAfter consecutive failures make it Dead.
func (t *PeerTable) MarkFailed(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.peers[id]
	if !ok {
		return
	}
	p.Failures++
	if err != nil {
		p.LastError = err.Error()
	}

	prev := p.Status
	switch {
	case p.Failures >= t.deadAfter:
		p.Status = Dead
	default:
		p.Status = Suspect
	}
	if p.Status != prev {
		level.Warn(t.logger).Log("msg", "peer status changed", "peer", id, "status", p.Status, "failures", p.Failures)
	}
}

// Select returns up to n random peers that are not Dead. When every peer is
// Dead it picks among the dead ones, so a recovered peer is found again.
// n <= 0 selects all candidates.
func (t *PeerTable) Select(n int) []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()

	var live, dead []Peer
	for _, p := range t.sortedLocked() {
		if p.Status == Dead {
			dead = append(dead, p)
		} else {
			live = append(live, p)
		}
	}

	candidates := live
	if len(candidates) == 0 {
		candidates = dead
	}

	t.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if n > 0 && n < len(candidates) {
		candidates = candidates[:n]
	}
	return candidates
}

// Snapshot returns all peers ordered by ID.
func (t *PeerTable) Snapshot() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedLocked()
}

// Len returns the number of peers.
func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

func (t *PeerTable) sortedLocked() []Peer {
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
