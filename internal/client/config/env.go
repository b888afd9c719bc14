package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "NOTESYNC_"

// parseEnv loads the dotenv file given with -e/-env (variables already set in
// the process win) and overlays NOTESYNC_* variables. Panics on unreadable
// files or malformed values, like the other loaders.
func parseEnv(cfg *Config) {
	if path := flagx.EnvFilePath(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		panic(err)
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("DATA_DIR", &cfg.DataDir)
	str("BACKEND", &cfg.Backend)
	str("S3_ENDPOINT", &cfg.S3.Endpoint)
	str("S3_REGION", &cfg.S3.Region)
	str("S3_BUCKET", &cfg.S3.Bucket)
	str("S3_ACCESS_KEY", &cfg.S3.AccessKey)
	str("S3_SECRET_KEY", &cfg.S3.SecretKey)
	str("S3_SESSION_TOKEN", &cfg.S3.SessionToken)
	str("S3_PREFIX", &cfg.S3.Prefix)
	str("RELAY_ADDR", &cfg.RelayAddr)
	str("RELAY_USERNAME", &cfg.RelayUsername)
	str("LOG_FILE", &cfg.LogFile)
	str("LOG_LEVEL", &cfg.LogLevel)

	if v, ok := lookup(envPrefix + "S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sS3_PATH_STYLE: %w", envPrefix, err)
		}
		cfg.S3.UsePathStyle = b
	}
	if v, ok := lookup(envPrefix + "MEDIA_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMEDIA_WORKERS: %w", envPrefix, err)
		}
		cfg.MediaWorkers = n
	}

	for name, dst := range map[string]*time.Duration{
		"SYNC_INTERVAL":         &cfg.SyncInterval,
		"PROBE_TIMEOUT":         &cfg.ProbeTimeout,
		"STARTUP_PROBE_TIMEOUT": &cfg.StartupProbeTimeout,
		"SHUTDOWN_TIMEOUT":      &cfg.ShutdownTimeout,
		"MEDIA_DEBOUNCE":        &cfg.MediaDebounce,
		"CONVERSATION_MAX_AGE":  &cfg.ConversationMaxAge,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}
	return nil
}
