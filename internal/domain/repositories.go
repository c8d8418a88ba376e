package domain

import "context"

// DirectoryRepository lists device directories.
type DirectoryRepository interface {
	// ListDirectory returns up to count entries of path starting at offset.
	ListDirectory(ctx context.Context, storage StorageType, path string, offset, count int) (DirectoryListing, error)
}

// FileRepository moves file bytes onto and around the device.
type FileRepository interface {
	// CopyFile duplicates src to the full path dst, device side.
	CopyFile(ctx context.Context, storage StorageType, src, dst string) error

	// SendFile uploads data to the full device path.
	SendFile(ctx context.Context, storage StorageType, path string, data []byte) error
}
