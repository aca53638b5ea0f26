package adapter

//go:generate mockgen -source=interfaces.go -destination=../mock/adapter_mock.go -package=mock

import (
	"context"

	"github.com/mkravets/notesync/models"
)

// RemoteAdapter abstracts a remote storage provider for sync transfers.
// Paths are relative to the provider's configured remote root.
//
// Upload takes the remote hash of the object as last observed by the
// caller: an empty prevRemoteHash means the object is expected not to
// exist yet. When the provider supports conditional requests and the
// expectation does not hold, Upload returns ErrRemoteConflict so the
// caller can re-list and retry on the next cycle.
type RemoteAdapter interface {
	Upload(ctx context.Context, path string, content []byte, prevRemoteHash string) (remoteHash string, err error)
	Download(ctx context.Context, path string) (content []byte, err error)
	List(ctx context.Context, prefix string) ([]models.RemoteObject, error)
	Delete(ctx context.Context, path string) error
	Probe(ctx context.Context) error
}
