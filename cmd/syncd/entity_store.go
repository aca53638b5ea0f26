package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkravets/notesync/models"
)

// dirEntityStore materializes downloaded entities as files under a local
// directory. It stands in for the host application's storage layer when the
// engine runs headless.
type dirEntityStore struct {
	root string
}

func newDirEntityStore(root string) *dirEntityStore {
	return &dirEntityStore{root: root}
}

func (s *dirEntityStore) Apply(_ context.Context, entityType models.EntityType, entityID string, content []byte) error {
	dir := filepath.Join(s.root, string(entityType))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create entity dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, entityID+".json"), content, 0o644)
}

func (s *dirEntityStore) Remove(_ context.Context, entityType models.EntityType, entityID string) error {
	err := os.Remove(filepath.Join(s.root, string(entityType), entityID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
