package adapter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mkravets/notesync/internal/logger"
	"github.com/mkravets/notesync/models"
)

// localAdapter stores objects as plain files under a root directory. It is
// used for syncing into a folder watched by an external tool (e.g. a cloud
// drive client) and as the reference backend in tests.
type localAdapter struct {
	root        string
	maxFileSize int64
	logger      *logger.Logger
}

// NewLocal builds a directory-backed adapter rooted at cfg.Endpoint joined
// with cfg.RemotePath.
func NewLocal(cfg models.SyncConfig, log *logger.Logger) (RemoteAdapter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("local adapter: empty endpoint")
	}
	root := filepath.Join(cfg.Endpoint, filepath.FromSlash(strings.TrimPrefix(cfg.RemotePath, "/")))

	return &localAdapter{
		root:        root,
		maxFileSize: cfg.MaxFileSize,
		logger:      log,
	}, nil
}

func (l *localAdapter) Upload(_ context.Context, p string, content []byte, prevRemoteHash string) (string, error) {
	if l.maxFileSize > 0 && int64(len(content)) > l.maxFileSize {
		return "", fmt.Errorf("%w: %s is %d bytes, limit %d", ErrSizeLimit, p, len(content), l.maxFileSize)
	}

	full := l.fullPath(p)

	// The same conditional semantics as a WebDAV If-Match: the write only
	// proceeds if the file still has the content the caller last observed.
	current, err := os.ReadFile(full)
	switch {
	case err == nil:
		if prevRemoteHash == "" || contentHash(current) != prevRemoteHash {
			return "", fmt.Errorf("upload %s: %w", p, ErrRemoteConflict)
		}
	case errors.Is(err, fs.ErrNotExist):
		if prevRemoteHash != "" {
			return "", fmt.Errorf("upload %s: %w", p, ErrRemoteConflict)
		}
	default:
		return "", fmt.Errorf("upload %s: read existing: %w", p, err)
	}

	if err = os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("upload %s: %w", p, err)
	}
	if err = os.WriteFile(full, content, 0o644); err != nil {
		return "", fmt.Errorf("upload %s: %w", p, err)
	}

	return contentHash(content), nil
}

func (l *localAdapter) Download(_ context.Context, p string) ([]byte, error) {
	content, err := os.ReadFile(l.fullPath(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("download %s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	return content, nil
}

func (l *localAdapter) List(_ context.Context, prefix string) ([]models.RemoteObject, error) {
	start := filepath.Join(l.root, filepath.FromSlash(prefix))

	var objects []models.RemoteObject
	err := filepath.WalkDir(start, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := os.ReadFile(full)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(l.root, full)
		if err != nil {
			return err
		}
		objects = append(objects, models.RemoteObject{
			Path:       filepath.ToSlash(rel),
			Hash:       contentHash(content),
			ModifiedAt: info.ModTime(),
			Size:       info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	return objects, nil
}

func (l *localAdapter) Delete(_ context.Context, p string) error {
	err := os.Remove(l.fullPath(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", p, err)
	}
	return nil
}

func (l *localAdapter) Probe(_ context.Context) error {
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	return nil
}

func (l *localAdapter) fullPath(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(p))
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
