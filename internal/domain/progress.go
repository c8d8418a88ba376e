package domain

// ProgressFunc reports cache sweep progress.
// Called once per directory: (1, 4), (2, 9), ... where total grows as
// subdirectories are discovered.
type ProgressFunc func(done, total int, path string)

// CacheAllResult summarizes a full cache sweep.
type CacheAllResult struct {
	Directories int
	Files       int
	Failed      []string // directories whose listing failed
}
