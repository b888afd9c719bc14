package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{
			name:     "all flags",
			args:     []string{"cmd", "-d", "/data", "-b", "s3", "-a", "127.0.0.1:9090", "-i", "10", "-w", "2", "-l", "/tmp/n.log"},
			expected: &Config{DataDir: "/data", Backend: "s3", RelayAddr: "127.0.0.1:9090", SyncInterval: 10 * time.Second, MediaWorkers: 2, LogFile: "/tmp/n.log"},
		},
		{
			name:     "unknown flags ignored",
			args:     []string{"cmd", "-x", "y", "-b", "memory"},
			expected: &Config{Backend: "memory"},
		},
		{name: "incorrect interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config) })
				return
			}
			require.NotPanics(t, func() { parseFlags(config) })
			assert.Empty(t, cmp.Diff(tt.expected, config))
		})
	}
}
