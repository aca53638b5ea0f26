package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mkravets/notesync/models"
)

// jsonConfig mirrors [Config] with duration fields expressed as strings
// ("5m", "30s") so that a hand-written JSON file stays readable.
type jsonConfig struct {
	Sync struct {
		Enabled          bool     `json:"enabled"`
		Provider         string   `json:"provider"`
		Endpoint         string   `json:"endpoint"`
		Username         string   `json:"username"`
		Password         string   `json:"password"`
		RemotePath       string   `json:"remote_path"`
		SyncInterval     Duration `json:"sync_interval"`
		DebounceInterval Duration `json:"debounce_interval"`
		RequestTimeout   Duration `json:"request_timeout"`
		ConflictPolicy   string   `json:"conflict_policy"`
		MaxFileSize      int64    `json:"max_file_size"`
		SyncAttachments  bool     `json:"sync_attachments"`
	} `json:"sync,omitempty"`

	Storage struct {
		DB struct {
			Path string `json:"path"`
		} `json:"db,omitempty"`
	} `json:"storage,omitempty"`

	Log struct {
		File string `json:"file"`
	} `json:"log,omitempty"`
}

func parseJSON(jsonFilePath string) (*Config, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg jsonConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &Config{
		Sync: models.SyncConfig{
			Enabled:          jsonCfg.Sync.Enabled,
			Provider:         models.Provider(jsonCfg.Sync.Provider),
			Endpoint:         jsonCfg.Sync.Endpoint,
			Username:         jsonCfg.Sync.Username,
			Password:         jsonCfg.Sync.Password,
			RemotePath:       jsonCfg.Sync.RemotePath,
			SyncInterval:     time.Duration(jsonCfg.Sync.SyncInterval),
			DebounceInterval: time.Duration(jsonCfg.Sync.DebounceInterval),
			RequestTimeout:   time.Duration(jsonCfg.Sync.RequestTimeout),
			ConflictPolicy:   models.ConflictPolicy(jsonCfg.Sync.ConflictPolicy),
			MaxFileSize:      jsonCfg.Sync.MaxFileSize,
			SyncAttachments:  jsonCfg.Sync.SyncAttachments,
		},
		Storage: Storage{
			DB: DB{Path: jsonCfg.Storage.DB.Path},
		},
		Log: Log{File: jsonCfg.Log.File},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling
// from strings like "1h", "30s" as well as plain nanosecond numbers.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
