package library

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// SaveFiles uploads each item and records it in the cache. Items that fail
// are skipped; the returned slice holds the ones that landed.
func (s *Service) SaveFiles(ctx context.Context, items []domain.FileTransferItem) ([]domain.FileTransferItem, error) {
	var saved []domain.FileTransferItem
	var errs []error

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.saveFile(ctx, item); err != nil {
			s.logger.Error("failed to save file", "source", item.SourcePath, "target", item.DevicePath(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", item.Name, err))
			continue
		}
		saved = append(saved, item)
	}

	s.logger.Debug("saved files", "count", len(saved), "failed", len(errs))
	return saved, errors.Join(errs...)
}

func (s *Service) saveFile(ctx context.Context, item domain.FileTransferItem) error {
	data, err := os.ReadFile(item.SourcePath)
	if err != nil {
		return err
	}
	storage := item.Storage
	if storage == "" {
		storage = s.target.Storage
	}
	if err := s.client.SendFile(ctx, storage, item.DevicePath(), data); err != nil {
		return err
	}
	item.Size = int64(len(data))
	s.cache.UpsertFile(item.ToFileEntry())
	return nil
}

// LoadSnapshot fills the cache from the persisted snapshot, if any.
func (s *Service) LoadSnapshot() bool {
	if s.snaps == nil {
		return false
	}
	nodes, ok := s.snaps.LoadNodes(s.target.Storage)
	if !ok {
		return false
	}
	s.cache.Load(nodes)
	s.logger.Debug("loaded cache snapshot", "storage", s.target.Storage, "dirs", len(nodes))
	return true
}

// SaveSnapshot persists the current cache.
func (s *Service) SaveSnapshot() error {
	if s.snaps == nil {
		return nil
	}
	nodes := s.cache.Nodes()
	if err := s.snaps.SaveNodes(s.target.Storage, nodes); err != nil {
		s.logger.Error("failed to save cache snapshot", "error", err)
		return err
	}
	s.logger.Debug("saved cache snapshot", "storage", s.target.Storage, "dirs", len(nodes))
	return nil
}
