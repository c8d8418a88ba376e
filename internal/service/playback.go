package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// player is the device surface playback drives (consumer-defined interface)
type player interface {
	domain.PlaybackClient
	PauseMusic(ctx context.Context) error
}

// randomPicker chooses a cached file by kind
type randomPicker interface {
	RandomFile(kinds ...domain.FileKind) (domain.FileEntry, error)
}

// PlaybackService orchestrates launch, subtune and pause operations and
// remembers what was launched last.
type PlaybackService struct {
	player  player
	random  randomPicker
	storage domain.StorageType
	logger  *slog.Logger

	mu      sync.Mutex
	current *domain.FileEntry
}

// NewPlaybackService creates a new playback service
func NewPlaybackService(
	player player,
	random randomPicker,
	storage domain.StorageType,
	logger *slog.Logger,
) *PlaybackService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackService{
		player:  player,
		random:  random,
		storage: storage,
		logger:  logger,
	}
}

// Launch runs file on the C64. A LaunchSidError result is not an error: the
// device took the command but the SID would not play.
func (s *PlaybackService) Launch(ctx context.Context, file domain.FileEntry) (domain.LaunchResult, error) {
	kind := file.Kind
	if kind == "" {
		kind = domain.KindFromName(file.Path)
	}
	if !kind.IsLaunchable() {
		return domain.LaunchSuccess, fmt.Errorf("%s: %w", file.Path, domain.ErrNotLaunchable)
	}

	s.logger.Info("launching file", "path", file.Path, "kind", kind)
	result, err := s.player.LaunchFile(ctx, s.storage, file.Path)
	if err != nil {
		s.logger.Error("failed to launch file", "error", err, "path", file.Path)
		return result, err
	}
	if result == domain.LaunchSuccess {
		s.mu.Lock()
		f := file
		f.Kind = kind
		s.current = &f
		s.mu.Unlock()
	}
	return result, nil
}

// PlayRandom launches a random cached file of one of kinds.
func (s *PlaybackService) PlayRandom(ctx context.Context, kinds ...domain.FileKind) (domain.FileEntry, domain.LaunchResult, error) {
	file, err := s.random.RandomFile(kinds...)
	if err != nil {
		return domain.FileEntry{}, domain.LaunchSuccess, err
	}
	result, err := s.Launch(ctx, file)
	return file, result, err
}

// PlaySubtune switches the playing SID to the 1-based subtune index.
func (s *PlaybackService) PlaySubtune(ctx context.Context, index int) error {
	if err := s.player.PlaySubtune(ctx, index); err != nil {
		s.logger.Error("failed to play subtune", "error", err, "index", index)
		return err
	}
	return nil
}

// Pause toggles SID playback.
func (s *PlaybackService) Pause(ctx context.Context) error {
	return s.player.PauseMusic(ctx)
}

// Current returns the file most recently launched successfully.
func (s *PlaybackService) Current() (domain.FileEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return domain.FileEntry{}, false
	}
	return *s.current, true
}
