package library

import "github.com/mmcdole/teensyrom/internal/domain"

// Queries provides synchronous, cache-only reads.
// Implements domain.DirectoryQueries.
type Queries struct {
	cache domain.Cache
}

// NewQueries creates a new Queries instance.
func NewQueries(cache domain.Cache) *Queries {
	return &Queries{cache: cache}
}

func (q *Queries) GetCachedDirectory(path string) (domain.CacheNode, bool) {
	return q.cache.Get(path)
}

func (q *Queries) CachedFiles() []domain.FileEntry {
	return q.cache.Files()
}

// RandomFile picks a cached file of one of kinds. No kinds means any
// launchable file.
func (q *Queries) RandomFile(kinds ...domain.FileKind) (domain.FileEntry, error) {
	if len(kinds) == 0 {
		kinds = domain.LaunchableKinds
	}
	f, ok := q.cache.RandomFile(func(f domain.FileEntry) bool {
		for _, k := range kinds {
			if f.Kind == k {
				return true
			}
		}
		return false
	})
	if !ok {
		return domain.FileEntry{}, domain.ErrNoFiles
	}
	return f, nil
}
