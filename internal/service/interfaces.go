package service

import (
	"context"

	"github.com/mkravets/notesync/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/service_mock.go -package=mock

// EntityStore is the host application's note/tag/setting storage layer as
// seen by the sync engine. The engine never reads entities through it; it
// only pushes remote content into it when a download or a conflict
// resolution decides the remote side wins.
type EntityStore interface {
	// Apply stores the serialized entity snapshot downloaded from the
	// remote, overwriting any local version.
	Apply(ctx context.Context, entityType models.EntityType, entityID string, content []byte) error

	// Remove deletes the local entity after a remote deletion won.
	Remove(ctx context.Context, entityType models.EntityType, entityID string) error
}
