package main

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lwwdict/internal/config"
)

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id = "from-file"
listen = "127.0.0.1:7001"
fanout = 4
`), 0o644))

	fs := flag.NewFlagSet("lwwdict", flag.ContinueOnError)
	conf, err := loadConfig(fs, []string{
		"-config", path,
		"-node-id", "n1",
		"-peers", "n2=127.0.0.1:7002,n3=127.0.0.1:7003",
		"-sync-interval", "250ms",
		"-sync-mode", "push",
	})
	require.NoError(t, err)

	assert.Equal(t, "n1", conf.NodeID)
	assert.Equal(t, "127.0.0.1:7001", conf.ListenAddr)
	assert.Equal(t, 4, conf.Fanout, "unset flags keep file values")
	assert.Equal(t, 250*time.Millisecond, conf.SyncInterval.Duration)
	assert.Equal(t, config.SyncPush, conf.SyncMode)
	assert.Len(t, conf.Peers, 2)
}

func TestLoadConfig_GeneratesNodeID(t *testing.T) {
	fs := flag.NewFlagSet("lwwdict", flag.ContinueOnError)
	conf, err := loadConfig(fs, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, conf.NodeID)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := map[string][]string{
		"bad peers":     {"-peers", "n2"},
		"zero fanout":   {"-fanout", "0"},
		"bad sync mode": {"-sync-mode", "gossip"},
		"missing file":  {"-config", "/nonexistent/node.toml"},
		"unknown flag":  {"-rf", "3"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			fs := flag.NewFlagSet("lwwdict", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			_, err := loadConfig(fs, args)
			assert.Error(t, err)
		})
	}
}
