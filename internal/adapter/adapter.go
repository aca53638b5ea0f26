// Package adapter provides remote storage backends for the sync engine.
// A WebDAV client and a local directory provider are built in; hosts can
// register additional providers through Register.
package adapter

import (
	"fmt"
	"sync"

	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

// Factory builds a RemoteAdapter from a validated sync configuration.
type Factory func(cfg models.SyncConfig, log *logger.Logger) (RemoteAdapter, error)

var (
	registryMu sync.RWMutex
	registry   = map[models.Provider]Factory{}
)

// Register makes a provider available under the given name. Registering a
// built-in name overrides the built-in implementation. Typically called
// from a host's init.
func Register(name models.Provider, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New builds the adapter selected by cfg.Provider.
func New(cfg models.SyncConfig, log *logger.Logger) (RemoteAdapter, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if ok {
		return factory(cfg, log)
	}

	switch cfg.Provider {
	case models.ProviderWebDAV:
		return NewWebDAV(cfg, log)
	case models.ProviderLocal:
		return NewLocal(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
