// Package config loads runtime configuration for the notesync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables prefixed with NOTESYNC_, optionally read from a
//     dotenv file selected with -e or -env (see parseEnv).
//  3. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-d string   data directory (database, attachments, log)
//	-b string   remote backend: s3, grpc or memory
//	-a string   address:port of the relay gRPC endpoint
//	-i int      automatic sync interval (seconds)
//	-w int      parallel media uploads
//	-l string   log file path
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "5m" or integer
// nanoseconds:
//
//	{
//	  "data_dir": "/home/me/.notesync",
//	  "backend": "s3",
//	  "s3": {"endpoint": "http://127.0.0.1:9000", "bucket": "notes", "region": "us-east-1"},
//	  "sync_interval": "5m"
//	}
package config
