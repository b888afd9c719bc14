package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	BackendS3     = "s3"
	BackendGRPC   = "grpc"
	BackendMemory = "memory"
)

// S3 holds settings for the S3-compatible remote.
type S3 struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	Prefix       string
	UsePathStyle bool
}

// Config holds runtime settings for the notesync client.
//
// Units: every duration field is a time.Duration.
type Config struct {
	DataDir string
	Backend string

	S3 S3

	RelayAddr     string
	RelayUsername string

	SyncInterval        time.Duration
	ProbeTimeout        time.Duration
	StartupProbeTimeout time.Duration
	ShutdownTimeout     time.Duration
	MediaDebounce       time.Duration
	MediaWorkers        int

	// ConversationMaxAge bounds local chat history; zero keeps everything.
	ConversationMaxAge time.Duration

	LogFile  string
	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	c.DataDir = filepath.Join(home, ".notesync")
	c.Backend = BackendGRPC
	c.S3 = S3{Region: "us-east-1", Bucket: "notesync", UsePathStyle: true}
	c.RelayAddr = "127.0.0.1:50051"
	c.SyncInterval = 5 * time.Minute
	c.ProbeTimeout = 5 * time.Second
	c.StartupProbeTimeout = 3 * time.Second
	c.ShutdownTimeout = 30 * time.Second
	c.MediaDebounce = 2 * time.Second
	c.MediaWorkers = 4
	c.ConversationMaxAge = 90 * 24 * time.Hour
	c.LogLevel = "info"
}

// DatabasePath is the SQLite file inside the data directory.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "notes.db") }

// MediaDir is the local attachment directory.
func (c *Config) MediaDir() string { return filepath.Join(c.DataDir, "media") }

// LogPath returns LogFile, defaulting to a file in the data directory.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "notesync.log")
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
