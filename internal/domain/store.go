package domain

// Cache is the path-indexed mirror of one storage device's directory tree.
// All paths are normalized on entry.
type Cache interface {
	Get(path string) (CacheNode, bool)
	UpsertDirectory(path string, listing DirectoryListing)
	EnsureParents(path string) CacheNode
	UpsertFile(file FileEntry)
	Delete(path string)
	DeleteWithChildren(path string)

	Files() []FileEntry
	RandomFile(match func(FileEntry) bool) (FileEntry, bool)
	Len() int

	Nodes() []CacheNode
	Load(nodes []CacheNode)
}

// Snapshotter persists a cache between runs.
type Snapshotter interface {
	LoadNodes(storage StorageType) ([]CacheNode, bool)
	SaveNodes(storage StorageType, nodes []CacheNode) error
}
