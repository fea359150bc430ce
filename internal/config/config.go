package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// ErrNoNodeID is returned by Validate for a config without a node ID.
var ErrNoNodeID = errors.New("config: node ID must not be empty")

// Peer represents a peer node in the cluster.
type Peer struct {
	ID   string `toml:"id"`
	Addr string `toml:"addr"`
}

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Anti-entropy modes accepted in sync_mode.
const (
	// SyncPushPull fetches a peer's state and sends back what it lacks.
	SyncPushPull = "push-pull"
	// SyncPush sends the full local state; the peer answers with what this
	// node lacks.
	SyncPush = "push"
)

// Config holds the node configuration.
type Config struct {
	NodeID           string   `toml:"node_id"`
	ListenAddr       string   `toml:"listen"`
	AdminAddr        string   `toml:"admin"`
	Peers            []Peer   `toml:"peers"`
	SyncInterval     Duration `toml:"sync_interval"`
	SyncMode         string   `toml:"sync_mode"`
	Fanout           int      `toml:"fanout"`
	SnapshotPath     string   `toml:"snapshot"`
	SnapshotInterval Duration `toml:"snapshot_interval"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:       "127.0.0.1:7001",
		AdminAddr:        "127.0.0.1:8001",
		SyncInterval:     Duration{5 * time.Second},
		SyncMode:         SyncPushPull,
		Fanout:           2,
		SnapshotInterval: Duration{30 * time.Second},
		LogLevel:         "info",
		LogFormat:        "logfmt",
	}
}

// Load reads a TOML file on top of Default.
func Load(path string) (*Config, error) {
	conf := Default()
	if path == "" {
		return conf, nil
	}
	if _, err := toml.DecodeFile(path, conf); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return conf, nil
}

// EnsureNodeID assigns a random node ID when none is configured.
func (c *Config) EnsureNodeID() {
	if c.NodeID == "" {
		c.NodeID = uuid.NewString()
	}
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return ErrNoNodeID
	}
	if c.ListenAddr == "" {
		return errors.New("config: listen address must not be empty")
	}
	if c.SyncInterval.Duration <= 0 {
		return fmt.Errorf("config: sync interval must be positive, got %s", c.SyncInterval.Duration)
	}
	if c.SyncMode != SyncPushPull && c.SyncMode != SyncPush {
		return fmt.Errorf("config: unknown sync mode %q", c.SyncMode)
	}
	if c.Fanout <= 0 {
		return fmt.Errorf("config: fanout must be positive, got %d", c.Fanout)
	}
	if c.SnapshotPath != "" && c.SnapshotInterval.Duration <= 0 {
		return fmt.Errorf("config: snapshot interval must be positive, got %s", c.SnapshotInterval.Duration)
	}
	seen := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID == "" || p.Addr == "" {
			return fmt.Errorf("config: peer ID and address cannot be empty: %q=%q", p.ID, p.Addr)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate peer %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// ParsePeers parses a comma-separated list of peers in the format:
// "id1=addr1,id2=addr2,id3=addr3"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		id := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if id == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// RemotePeers returns the configured peers without this node.
func (c *Config) RemotePeers() []Peer {
	out := make([]Peer, 0, len(c.Peers))
	for _, p := range c.Peers {
		if p.ID != c.NodeID {
			out = append(out, p)
		}
	}
	return out
}
