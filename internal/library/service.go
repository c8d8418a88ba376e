package library

import (
	"context"
	"log/slog"

	"github.com/mmcdole/teensyrom/internal/domain"
	"github.com/mmcdole/teensyrom/internal/store"
)

// deviceClient is the subset of protocol.Client the library needs.
type deviceClient interface {
	domain.DirectoryRepository
	domain.FileRepository
}

// Service orchestrates device listings, uploads and the storage cache.
// Implements domain.DirectoryCommands.
type Service struct {
	client deviceClient
	cache  domain.Cache
	snaps  domain.Snapshotter
	target domain.Target
	logger *slog.Logger
}

// NewService creates a new library service. snaps may be nil.
func NewService(client deviceClient, cache domain.Cache, snaps domain.Snapshotter, target domain.Target, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, cache: cache, snaps: snaps, target: target, logger: logger}
}

// Target returns the settings snapshot the service was built with.
func (s *Service) Target() domain.Target { return s.target }

// GetDirectory returns the cached node for path, listing the device only on
// a cache miss.
func (s *Service) GetDirectory(ctx context.Context, path string) (domain.CacheNode, error) {
	if node, ok := s.cache.Get(path); ok {
		s.logger.Debug("directory cache hit", "path", path)
		return node, nil
	}
	return s.RefreshDirectory(ctx, path)
}

// RefreshDirectory re-lists path from the device and replaces its cached
// node in one step. Cached subdirectories that are still listed keep their
// contents; ones that disappeared are dropped. The cache is untouched if the
// listing fails.
func (s *Service) RefreshDirectory(ctx context.Context, path string) (domain.CacheNode, error) {
	devicePath := store.Join(path)
	listing, err := s.client.ListDirectory(ctx, s.target.Storage, devicePath, 0, 0)
	if err != nil {
		s.logger.Error("failed to list directory", "path", devicePath, "error", err)
		return domain.CacheNode{}, err
	}

	s.cache.UpsertDirectory(path, listing)
	s.logger.Debug("refreshed directory", "path", devicePath, "dirs", len(listing.Directories), "files", len(listing.Files))

	node, _ := s.cache.Get(path)
	return node, nil
}

// CacheAll walks the whole device breadth-first from the root, listing
// every directory into the cache. A directory that fails to list is
// recorded and skipped. ctx is checked between directories.
func (s *Service) CacheAll(ctx context.Context, onProgress domain.ProgressFunc) (domain.CacheAllResult, error) {
	var result domain.CacheAllResult
	queue := []string{"/"}
	seen := map[string]bool{store.CleanPath("/"): true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		path := queue[0]
		queue = queue[1:]

		listing, err := s.client.ListDirectory(ctx, s.target.Storage, path, 0, 0)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("cache sweep skipped directory", "path", path, "error", err)
			result.Failed = append(result.Failed, path)
		} else {
			s.cache.UpsertDirectory(path, listing)
			result.Directories++
			result.Files += len(listing.Files)
			for _, d := range listing.Directories {
				key := store.CleanPath(d.Path)
				if seen[key] {
					continue
				}
				seen[key] = true
				queue = append(queue, store.Join(key))
			}
		}

		if onProgress != nil {
			onProgress(result.Directories+len(result.Failed), result.Directories+len(result.Failed)+len(queue), path)
		}
	}

	s.logger.Info("cache sweep complete", "dirs", result.Directories, "files", result.Files, "failed", len(result.Failed))
	return result, nil
}
