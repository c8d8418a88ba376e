package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/teensyrom/internal/adapter"
	"github.com/mmcdole/teensyrom/internal/domain"
)

type recordingSaver struct {
	mu    sync.Mutex
	items []domain.FileTransferItem
}

func (r *recordingSaver) SaveFiles(ctx context.Context, items []domain.FileTransferItem) ([]domain.FileTransferItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, items...)
	return items, nil
}

func (r *recordingSaver) saved() []domain.FileTransferItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FileTransferItem{}, r.items...)
}

func testTarget() domain.Target {
	return domain.Target{
		Storage:  domain.StorageUSB,
		RootPath: "/sync",
		KindFolders: map[domain.FileKind]string{
			domain.KindSid: "sid",
			domain.KindPrg: "prg",
		},
	}
}

func TestBuildItems(t *testing.T) {
	dir := t.TempDir()
	sid := filepath.Join(dir, "tune.sid")
	hex := filepath.Join(dir, "fw.hex")
	require.NoError(t, os.WriteFile(sid, []byte("PSID"), 0644))
	require.NoError(t, os.WriteFile(hex, []byte(":00"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.prg"), 0755))

	w, err := New(Options{Directory: dir}, &recordingSaver{}, testTarget(), adapter.NullLogger())
	require.NoError(t, err)
	defer w.Close()

	items := w.BuildItems([]string{sid, hex, filepath.Join(dir, "gone.prg"), filepath.Join(dir, "sub.prg")})
	require.Len(t, items, 2)

	assert.Equal(t, "fw.hex", items[0].Name)
	assert.Equal(t, "/sync", items[0].TargetPath)

	assert.Equal(t, "tune.sid", items[1].Name)
	assert.Equal(t, "/sync/sid", items[1].TargetPath)
	assert.Equal(t, int64(4), items[1].Size)
	assert.Equal(t, domain.KindSid, items[1].Kind)
	assert.Equal(t, domain.StorageUSB, items[1].Storage)
}

func TestAccepts(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Directory: dir}, &recordingSaver{}, testTarget(), adapter.NullLogger())
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.accepts("a.SID"))
	assert.True(t, w.accepts("a.crt"))
	assert.False(t, w.accepts("a.txt"))

	only, err := New(Options{Directory: dir, Extensions: []string{".prg"}}, &recordingSaver{}, testTarget(), adapter.NullLogger())
	require.NoError(t, err)
	defer only.Close()
	assert.True(t, only.accepts("x.prg"))
	assert.False(t, only.accepts("x.sid"))
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(Options{}, &recordingSaver{}, testTarget(), nil)
	assert.Error(t, err)

	_, err = New(Options{Directory: filepath.Join(t.TempDir(), "missing")}, &recordingSaver{}, testTarget(), nil)
	assert.Error(t, err)
}

func TestRunUploadsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	s := &recordingSaver{}
	w, err := New(Options{Directory: dir, Debounce: 50 * time.Millisecond}, s, testTarget(), adapter.NullLogger())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.prg"), []byte{0x01, 0x08}, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	assert.Eventually(t, func() bool { return len(s.saved()) > 0 }, 3*time.Second, 20*time.Millisecond)
	items := s.saved()
	for _, it := range items {
		assert.NotEqual(t, "notes.txt", it.Name)
	}
	assert.Equal(t, "/sync/prg/game.prg", items[0].DevicePath())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
