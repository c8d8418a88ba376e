package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/mmcdole/teensyrom/internal/adapter"
	"github.com/mmcdole/teensyrom/internal/domain"
	"github.com/mmcdole/teensyrom/internal/favorites"
	"github.com/mmcdole/teensyrom/internal/library"
	"github.com/mmcdole/teensyrom/internal/metrics"
	"github.com/mmcdole/teensyrom/internal/protocol"
	"github.com/mmcdole/teensyrom/internal/search"
	"github.com/mmcdole/teensyrom/internal/serial"
	"github.com/mmcdole/teensyrom/internal/service"
	"github.com/mmcdole/teensyrom/internal/store"
)

// app wires the services for one CLI invocation. The serial port is only
// opened by commands that talk to the device.
type app struct {
	cfg       *adapter.Config
	logger    *slog.Logger
	logCloser io.Closer
	target    domain.Target

	metrics   *metrics.Metrics
	port      *serial.Port
	client    *protocol.Client
	cache     *store.StorageCache
	snaps     *store.SnapshotStore
	library   *library.Service
	queries   *library.Queries
	playback  *service.PlaybackService
	favorites *favorites.Service
	search    *search.Service

	dirty bool // cache changed and should be persisted on close
}

func newApp(cfg *adapter.Config, logger *slog.Logger, logCloser io.Closer) (*app, error) {
	target, err := cfg.Target()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		logCloser: logCloser,
		target:    target,
		metrics:   metrics.New(),
		port:      serial.NewPort(cfg.Serial.Baud, logger),
		cache:     store.NewStorageCache(),
	}
	a.client = protocol.NewClient(a.port, protocolOptions(cfg.Protocol), a.metrics, logger)

	if cfg.Cache.Persist {
		snaps, err := store.NewSnapshotStore(cfg.Cache.Path, cfg.Serial.Port)
		if err != nil {
			// Run without persistence rather than failing every command
			logger.Warn("cache snapshot unavailable", "path", cfg.Cache.Path, "error", err)
		} else {
			a.snaps = snaps
		}
	}

	var snaps domain.Snapshotter
	if a.snaps != nil {
		snaps = a.snaps
	}
	a.library = library.NewService(a.client, a.cache, snaps, target, logger)
	a.queries = library.NewQueries(a.cache)
	a.playback = service.NewPlaybackService(a.client, a.queries, target.Storage, logger)
	a.favorites = favorites.NewService(a.client, a.cache, target, logger)
	a.search = search.NewService(a.cache, logger)

	if a.library.LoadSnapshot() {
		logger.Debug("using cached file tree", "nodes", a.cache.Len())
		a.metrics.SetCacheSize(a.cache.Len(), len(a.queries.CachedFiles()))
	}
	return a, nil
}

// cacheChanged marks the cache for saving on close and refreshes the cache
// gauges.
func (a *app) cacheChanged() {
	a.dirty = true
	a.metrics.SetCacheSize(a.cache.Len(), len(a.queries.CachedFiles()))
}

// snapshotAge describes when the current storage's snapshot was saved, or
// returns "" when there is none.
func (a *app) snapshotAge() string {
	if a.snaps == nil {
		return ""
	}
	at, ok := a.snaps.SavedAt(a.target.Storage)
	if !ok {
		return ""
	}
	return "cache saved " + humanize.Time(at)
}

// clearCache empties the in-memory tree and drops the current storage's
// snapshot. With all set the whole snapshot directory is removed.
func (a *app) clearCache(all bool) error {
	a.cache.Clear()
	a.dirty = false
	a.metrics.SetCacheSize(0, 0)

	if !all {
		if a.snaps == nil {
			return nil
		}
		return a.snaps.Invalidate(a.target.Storage)
	}
	if a.snaps != nil {
		if err := a.snaps.Close(); err != nil {
			return err
		}
		a.snaps = nil
	}
	return adapter.ClearCache(a.cfg.Cache.Path)
}

func protocolOptions(c adapter.ProtocolConfig) protocol.Options {
	return protocol.Options{
		AckTimeout:      c.AckTimeout,
		DrainWindow:     c.DrainWindow,
		ResponseWindow:  c.ResponseWindow,
		ListTimeout:     c.ListTimeout,
		TransferTimeout: c.TransferTimeout,
		PollInterval:    c.PollInterval,
		ListCount:       c.ListCount,
	}
}

// connect opens the configured port, or tries every candidate port with a
// ping until one answers.
func (a *app) connect(ctx context.Context) error {
	if name := a.cfg.Serial.Port; name != "" {
		return a.open(name)
	}

	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	candidates := ports[:0:0]
	for _, p := range ports {
		if p.IsTeensy() {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		candidates = ports
	}

	for _, p := range candidates {
		if err := a.open(p.Name); err != nil {
			continue
		}
		banner, err := a.client.Ping(ctx)
		if err == nil {
			a.logger.Info("found teensyrom", "port", p.Name, "banner", banner)
			return nil
		}
		a.logger.Debug("port did not answer ping", "port", p.Name, "error", err)
		a.port.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("no teensyrom found on %d ports: %w", len(candidates), domain.ErrNotConnected)
}

func (a *app) open(name string) error {
	if err := a.port.SetPort(name); err != nil {
		return err
	}
	return a.port.Open()
}

// close persists the cache if it changed and releases everything.
func (a *app) close() error {
	var errs []error
	if a.dirty {
		errs = append(errs, a.library.SaveSnapshot())
	}
	errs = append(errs, a.port.Close())
	if a.snaps != nil {
		errs = append(errs, a.snaps.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

// fileEntry resolves a device path to its cached entry, falling back to a
// bare entry when the path was never listed.
func (a *app) fileEntry(path string) domain.FileEntry {
	clean := store.CleanPath(path)
	if node, ok := a.cache.Get(store.ParentPath(clean)); ok {
		for _, f := range node.Files {
			if store.CleanPath(f.Path) == clean {
				return f
			}
		}
	}
	return domain.FileEntry{
		Name: store.BaseName(clean),
		Path: store.Join(clean),
		Kind: domain.KindFromName(clean),
	}
}
