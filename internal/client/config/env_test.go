package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(t *testing.T, c *Config)
		wantErr bool
	}{
		{
			name: "s3 settings",
			env: map[string]string{
				"NOTESYNC_BACKEND":       "s3",
				"NOTESYNC_S3_ENDPOINT":   "http://minio:9000",
				"NOTESYNC_S3_BUCKET":     "b",
				"NOTESYNC_S3_ACCESS_KEY": "ak",
				"NOTESYNC_S3_SECRET_KEY": "sk",
				"NOTESYNC_S3_PATH_STYLE": "false",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendS3, c.Backend)
				assert.Equal(t, "http://minio:9000", c.S3.Endpoint)
				assert.Equal(t, "b", c.S3.Bucket)
				assert.Equal(t, "ak", c.S3.AccessKey)
				assert.Equal(t, "sk", c.S3.SecretKey)
				assert.False(t, c.S3.UsePathStyle)
			},
		},
		{
			name: "durations and workers",
			env: map[string]string{
				"NOTESYNC_SYNC_INTERVAL":        "90s",
				"NOTESYNC_SHUTDOWN_TIMEOUT":     "10s",
				"NOTESYNC_CONVERSATION_MAX_AGE": "0s",
				"NOTESYNC_MEDIA_WORKERS":        "8",
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 90*time.Second, c.SyncInterval)
				assert.Equal(t, 10*time.Second, c.ShutdownTimeout)
				assert.Zero(t, c.ConversationMaxAge)
				assert.Equal(t, 8, c.MediaWorkers)
			},
		},
		{
			name: "unset keeps defaults",
			env:  map[string]string{},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, BackendGRPC, c.Backend)
				assert.Equal(t, 5*time.Minute, c.SyncInterval)
			},
		},
		{name: "bad duration", env: map[string]string{"NOTESYNC_PROBE_TIMEOUT": "soon"}, wantErr: true},
		{name: "bad workers", env: map[string]string{"NOTESYNC_MEDIA_WORKERS": "many"}, wantErr: true},
		{name: "bad bool", env: map[string]string{"NOTESYNC_S3_PATH_STYLE": "maybe"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			err := applyEnv(&c, lookupFrom(tt.env))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, &c)
		})
	}
}
