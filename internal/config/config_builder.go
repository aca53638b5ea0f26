package config

import (
	"errors"
	"fmt"
	"time"

	"dario.cat/mergo"

	"github.com/mkravets/notesync/models"
)

type configBuilder struct {
	configs []*Config
	err     error
}

func newConfigBuilder() *configBuilder {
	return &configBuilder{
		configs: make([]*Config, 0, 4),
	}
}

func (b *configBuilder) build() (*Config, error) {
	if b.err != nil {
		return nil, fmt.Errorf("error occured during building config: %w", b.err)
	}

	config := new(Config)
	for _, cfg := range b.configs {
		if err := mergo.Merge(config, cfg); err != nil {
			return nil, fmt.Errorf("error merging configs: %w", err)
		}
	}

	return config, config.validate()
}

// withDefaults appends conservative fallback values that apply wherever no
// other source set a field, so that a bare environment still produces a
// usable engine: webdav provider, five-minute
// periodic sync, two-second edit debounce, and the create-both conflict
// policy (the only one that can never lose data without asking).
func (b *configBuilder) withDefaults() *configBuilder {
	b.configs = append(b.configs, &Config{
		Sync: models.SyncConfig{
			Provider:         models.ProviderWebDAV,
			RemotePath:       "/notes",
			SyncInterval:     5 * time.Minute,
			DebounceInterval: 2 * time.Second,
			RequestTimeout:   15 * time.Second,
			ConflictPolicy:   models.PolicyCreateBoth,
		},
		Storage: Storage{
			DB: DB{Path: "notesync.db"},
		},
	})
	return b
}

func (b *configBuilder) withEnv() *configBuilder {
	envCfg := &Config{}
	if err := parseEnv(envCfg); err != nil {
		b.err = errors.Join(b.err, err)
		return b
	}

	b.configs = append(b.configs, envCfg)
	return b
}

func (b *configBuilder) withFlags() *configBuilder {
	flags := ParseFlags()

	b.configs = append(b.configs, flags)
	return b
}

func (b *configBuilder) withJSON() *configBuilder {
	var jsonPath string
	isJSONSpecified := false

	for _, cfg := range b.configs {
		if cfg.JSONFilePath != "" {
			isJSONSpecified = true
			jsonPath = cfg.JSONFilePath
		}
	}

	if isJSONSpecified {
		jsonCfg, err := parseJSON(jsonPath)
		if err != nil {
			b.err = errors.Join(b.err, err)
			return b
		}
		b.configs = append(b.configs, jsonCfg)
	}

	return b
}
