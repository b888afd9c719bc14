package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/dmitrijs2005/notesync/internal/timex"
)

type jsonS3 struct {
	Endpoint     string `json:"endpoint"`
	Region       string `json:"region"`
	Bucket       string `json:"bucket"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
	SessionToken string `json:"session_token"`
	Prefix       string `json:"prefix"`
	UsePathStyle *bool  `json:"use_path_style"`
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Only fields
// present in the file are copied into Config.
type JsonConfig struct {
	DataDir             string          `json:"data_dir"`
	Backend             string          `json:"backend"`
	S3                  *jsonS3         `json:"s3"`
	RelayAddr           string          `json:"relay_addr"`
	RelayUsername       string          `json:"relay_username"`
	SyncInterval        *timex.Duration `json:"sync_interval"`
	ProbeTimeout        *timex.Duration `json:"probe_timeout"`
	StartupProbeTimeout *timex.Duration `json:"startup_probe_timeout"`
	ShutdownTimeout     *timex.Duration `json:"shutdown_timeout"`
	MediaDebounce       *timex.Duration `json:"media_debounce"`
	MediaWorkers        int             `json:"media_workers"`
	ConversationMaxAge  *timex.Duration `json:"conversation_max_age"`
	LogFile             string          `json:"log_file"`
	LogLevel            string          `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.JSONConfigPath()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(dst *time.Duration, v *timex.Duration) {
		if v != nil {
			*dst = v.Duration
		}
	}

	setStr(&cfg.DataDir, jc.DataDir)
	setStr(&cfg.Backend, jc.Backend)
	setStr(&cfg.RelayAddr, jc.RelayAddr)
	setStr(&cfg.RelayUsername, jc.RelayUsername)
	setStr(&cfg.LogFile, jc.LogFile)
	setStr(&cfg.LogLevel, jc.LogLevel)
	setDur(&cfg.SyncInterval, jc.SyncInterval)
	setDur(&cfg.ProbeTimeout, jc.ProbeTimeout)
	setDur(&cfg.StartupProbeTimeout, jc.StartupProbeTimeout)
	setDur(&cfg.ShutdownTimeout, jc.ShutdownTimeout)
	setDur(&cfg.MediaDebounce, jc.MediaDebounce)
	setDur(&cfg.ConversationMaxAge, jc.ConversationMaxAge)
	if jc.MediaWorkers > 0 {
		cfg.MediaWorkers = jc.MediaWorkers
	}

	if s := jc.S3; s != nil {
		setStr(&cfg.S3.Endpoint, s.Endpoint)
		setStr(&cfg.S3.Region, s.Region)
		setStr(&cfg.S3.Bucket, s.Bucket)
		setStr(&cfg.S3.AccessKey, s.AccessKey)
		setStr(&cfg.S3.SecretKey, s.SecretKey)
		setStr(&cfg.S3.SessionToken, s.SessionToken)
		setStr(&cfg.S3.Prefix, s.Prefix)
		if s.UsePathStyle != nil {
			cfg.S3.UsePathStyle = *s.UsePathStyle
		}
	}
}
