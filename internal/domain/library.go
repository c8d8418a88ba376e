package domain

import "context"

// DirectoryListing is the decoded result of one ListDirectory handshake.
type DirectoryListing struct {
	Path        string           `json:"path"`
	Directories []DirectoryEntry `json:"directories"`
	Files       []FileEntry      `json:"files"`
}

// CacheNode is the cached contents of one device directory, keyed by its
// normalized path ("" is the root).
type CacheNode struct {
	Path        string           `json:"path"`
	Directories []DirectoryEntry `json:"directories"`
	Files       []FileEntry      `json:"files"`
}

// DirectoryQueries: synchronous, cache-only reads. Never touch the device.
type DirectoryQueries interface {
	GetCachedDirectory(path string) (CacheNode, bool)
	CachedFiles() []FileEntry
}

// DirectoryCommands: operations that may perform serial handshakes.
type DirectoryCommands interface {
	GetDirectory(ctx context.Context, path string) (CacheNode, error)
	RefreshDirectory(ctx context.Context, path string) (CacheNode, error)
	CacheAll(ctx context.Context, onProgress ProgressFunc) (CacheAllResult, error)
	SaveFiles(ctx context.Context, items []FileTransferItem) ([]FileTransferItem, error)
}
