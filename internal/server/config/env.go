package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/notesync/internal/flagx"
	"github.com/joho/godotenv"
)

const envPrefix = "NOTESYNC_RELAY_"

// parseEnv loads the dotenv file given with -e/-env and overlays
// NOTESYNC_RELAY_* variables. Panics on unreadable files or malformed values.
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
	get := func(name string) (string, bool) { return lookup(envPrefix + name) }
	fail := func(name string, err error) error { return fmt.Errorf("%s%s: %w", envPrefix, name, err) }

	if v, ok := get("ADDR"); ok {
		cfg.EndpointAddrGRPC = v
	}
	if v, ok := get("DATABASE_DSN"); ok {
		cfg.DatabaseDSN = v
	}
	if v, ok := get("SECRET_KEY"); ok {
		cfg.SecretKey = v
	}
	if v, ok := get("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := get("ACCESS_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fail("ACCESS_TOKEN_TTL", err)
		}
		cfg.AccessTokenValidityDuration = d
	}
	if v, ok := get("RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fail("RATE_LIMIT", err)
		}
		cfg.RateLimit = f
	}
	if v, ok := get("RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fail("RATE_BURST", err)
		}
		cfg.RateBurst = n
	}
	if v, ok := get("MAX_BLOB_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fail("MAX_BLOB_SIZE", err)
		}
		cfg.MaxBlobSize = n
	}
	return nil
}
