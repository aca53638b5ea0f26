package config

import (
	"flag"
	"time"

	"github.com/mkravets/notesync/models"
)

// ParseFlags parses all configuration flags.
//
// Flags:
//
//	-endpoint remote store base URL (WebDAV) or directory (local provider)
//	-provider remote provider name (local|webdav|custom)
//	-remote-path remote root collection for entity files
//	-interval periodic sync interval (e.g. "5m", 0 disables)
//	-d local SQLite database path
//	-log engine log file path
//	-c/-config json file path with configs
func ParseFlags() *Config {
	var provider string
	var endpoint string
	var remotePath string
	var interval time.Duration
	var dbPath string
	var logFile string
	var jsonConfigPath string

	flag.StringVar(&provider, "provider", "", "Remote provider (local|webdav|custom)")
	flag.StringVar(&endpoint, "endpoint", "", "Remote store base URL or directory")
	flag.StringVar(&remotePath, "remote-path", "", "Remote root collection")
	flag.DurationVar(&interval, "interval", 0, "Periodic sync interval (e.g. 5m)")
	flag.StringVar(&dbPath, "d", "", "Local SQLite database path")
	flag.StringVar(&logFile, "log", "", "Engine log file path")
	flag.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	flag.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")

	flag.Parse()

	return &Config{
		Sync: models.SyncConfig{
			Provider:     models.Provider(provider),
			Endpoint:     endpoint,
			RemotePath:   remotePath,
			SyncInterval: interval,
		},
		Storage: Storage{
			DB: DB{Path: dbPath},
		},
		Log:          Log{File: logFile},
		JSONFilePath: jsonConfigPath,
	}
}
