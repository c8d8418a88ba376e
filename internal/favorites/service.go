package favorites

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/teensyrom/internal/domain"
	"github.com/mmcdole/teensyrom/internal/store"
)

type copier interface {
	CopyFile(ctx context.Context, storage domain.StorageType, src, dst string) error
}

// Service copies files into the per-kind favorites folders on the device.
type Service struct {
	client copier
	cache  domain.Cache
	target domain.Target
	logger *slog.Logger
}

// NewService creates a new favorites service.
func NewService(client copier, cache domain.Cache, target domain.Target, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, cache: cache, target: target, logger: logger}
}

// Save copies file into its favorites folder and records the copy in the
// cache. The returned entry describes the copy.
func (s *Service) Save(ctx context.Context, file domain.FileEntry) (domain.FileEntry, error) {
	if file.Path == "" {
		return domain.FileEntry{}, fmt.Errorf("favorite: %w", domain.ErrFileNotFound)
	}
	kind := file.Kind
	if kind == "" {
		kind = domain.KindFromName(file.Path)
	}
	name := file.Name
	if name == "" {
		name = store.BaseName(file.Path)
	}

	dst := store.Join(s.target.FavoritePath(kind), name)
	if err := s.client.CopyFile(ctx, s.target.Storage, file.Path, dst); err != nil {
		s.logger.Error("failed to save favorite", "error", err, "path", file.Path)
		return domain.FileEntry{}, err
	}

	fav := domain.FileEntry{
		Name: name,
		Path: dst,
		Size: file.Size,
		Kind: kind,
	}
	s.cache.UpsertFile(fav)
	s.logger.Debug("saved favorite", "path", file.Path, "favorite", fav.Path)
	return fav, nil
}

// List returns the cached favorites of kind.
func (s *Service) List(kind domain.FileKind) []domain.FileEntry {
	node, ok := s.cache.Get(s.target.FavoritePath(kind))
	if !ok {
		return nil
	}
	var out []domain.FileEntry
	for _, f := range node.Files {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}
