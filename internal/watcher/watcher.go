package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mmcdole/teensyrom/internal/domain"
)

const defaultDebounce = 500 * time.Millisecond

// saver uploads queued files (implemented by library.Service)
type saver interface {
	SaveFiles(ctx context.Context, items []domain.FileTransferItem) ([]domain.FileTransferItem, error)
}

// Extractor expands a dropped file into the files to upload.
type Extractor interface {
	Extract(path string) ([]string, error)
}

// Passthrough uploads dropped files as they are.
type Passthrough struct{}

func (Passthrough) Extract(path string) ([]string, error) { return []string{path}, nil }

// Options configures a Watcher.
type Options struct {
	Directory  string
	Extensions []string // without dot; empty accepts every known kind
	Debounce   time.Duration
	Extractor  Extractor
}

// Watcher copies files dropped into a local directory onto the device,
// each into the auto-transfer folder for its kind.
type Watcher struct {
	fs       *fsnotify.Watcher
	dir      string
	exts     map[string]bool
	debounce time.Duration
	extract  Extractor
	saver    saver
	target   domain.Target
	logger   *slog.Logger

	// OnTransfer, when set, is called after each batch.
	OnTransfer func(saved []domain.FileTransferItem, err error)
}

// New starts watching opts.Directory. Events are consumed by Run.
func New(opts Options, s saver, target domain.Target, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Directory == "" {
		return nil, fmt.Errorf("watch directory is not set")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.Extractor == nil {
		opts.Extractor = Passthrough{}
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fs.Add(opts.Directory); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", opts.Directory, err)
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	return &Watcher{
		fs:       fs,
		dir:      opts.Directory,
		exts:     exts,
		debounce: opts.Debounce,
		extract:  opts.Extractor,
		saver:    s,
		target:   target,
		logger:   logger,
	}, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run collects create and write events and uploads them once the directory
// has been quiet for the debounce window. It returns when ctx is done or the
// watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for files", "dir", w.dir, "debounce", w.debounce)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			pending = make(map[string]struct{})
			w.flush(ctx, paths)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, paths []string) {
	items := w.BuildItems(paths)
	if len(items) == 0 {
		return
	}
	saved, err := w.saver.SaveFiles(ctx, items)
	if err != nil {
		w.logger.Error("auto transfer failed", "error", err, "queued", len(items), "saved", len(saved))
	} else {
		w.logger.Info("auto transferred files", "count", len(saved))
	}
	if w.OnTransfer != nil {
		w.OnTransfer(saved, err)
	}
}

// BuildItems turns local paths into transfer items. Missing files and
// directories are skipped.
func (w *Watcher) BuildItems(paths []string) []domain.FileTransferItem {
	sort.Strings(paths)
	var items []domain.FileTransferItem
	for _, p := range paths {
		files, err := w.extract.Extract(p)
		if err != nil {
			w.logger.Warn("failed to extract", "path", p, "error", err)
			continue
		}
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil || info.IsDir() {
				continue
			}
			kind := domain.KindFromName(f)
			items = append(items, domain.FileTransferItem{
				SourcePath: f,
				TargetPath: w.target.TransferPath(kind),
				Name:       filepath.Base(f),
				Size:       info.Size(),
				Kind:       kind,
				Storage:    w.target.Storage,
			})
		}
	}
	return items
}

func (w *Watcher) accepts(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if len(w.exts) > 0 {
		return w.exts[ext]
	}
	return domain.KindFromName(path) != domain.KindUnknown
}
