package store

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/mmcdole/teensyrom/internal/domain"
)

// StorageCache mirrors one storage device's directory tree, keyed by
// normalized path. Every mutation runs under a single write lock and readers
// receive copies, so a partially applied change is never visible.
//
// Invariants after every operation: each non-root node's ancestors exist up
// to the root, each non-root node is listed by its parent, and deleting a
// node unlinks it from its parent.
type StorageCache struct {
	mu    sync.RWMutex
	nodes map[string]*domain.CacheNode
}

func NewStorageCache() *StorageCache {
	return &StorageCache{nodes: make(map[string]*domain.CacheNode)}
}

// Get returns a copy of the node at path.
func (c *StorageCache) Get(path string) (domain.CacheNode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[CleanPath(path)]
	if !ok {
		return domain.CacheNode{}, false
	}
	return copyNode(n), true
}

// UpsertDirectory replaces the node at path with the listing's contents and
// links it into its parent chain. Subdirectories the old node listed but the
// new listing does not are removed along with their subtrees; subdirectories
// still present keep their cached contents.
func (c *StorageCache) UpsertDirectory(path string, listing domain.DirectoryListing) {
	key := CleanPath(path)
	node := &domain.CacheNode{
		Path:        key,
		Directories: make([]domain.DirectoryEntry, 0, len(listing.Directories)),
		Files:       make([]domain.FileEntry, 0, len(listing.Files)),
	}
	for _, d := range listing.Directories {
		addDirectory(node, d)
	}
	for _, f := range listing.Files {
		putFile(node, f)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.nodes[key]; ok {
		c.pruneLocked(old, node)
	}
	c.nodes[key] = node
	if key != "" {
		parent := c.ensureParentsLocked(key)
		addDirectory(parent, domain.DirectoryEntry{Name: BaseName(key), Path: key})
	}
}

// pruneLocked deletes the subtree of every directory old lists that next
// does not.
func (c *StorageCache) pruneLocked(old, next *domain.CacheNode) {
	keep := make(map[string]bool, len(next.Directories))
	for _, d := range next.Directories {
		keep[CleanPath(d.Path)] = true
	}
	var dropped []string
	for _, d := range old.Directories {
		child := CleanPath(d.Path)
		if child != old.Path && !keep[child] {
			dropped = append(dropped, child)
		}
	}
	for _, child := range dropped {
		c.deleteTreeLocked(child)
	}
}

// EnsureParents materializes every missing ancestor of path and links each
// level into its own parent. It returns the immediate parent.
func (c *StorageCache) EnsureParents(path string) domain.CacheNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyNode(c.ensureParentsLocked(CleanPath(path)))
}

func (c *StorageCache) ensureParentsLocked(key string) *domain.CacheNode {
	parentKey := ParentPath(key)
	parent, ok := c.nodes[parentKey]
	if !ok {
		parent = &domain.CacheNode{
			Path:        parentKey,
			Directories: []domain.DirectoryEntry{},
			Files:       []domain.FileEntry{},
		}
		c.nodes[parentKey] = parent
	}
	if parentKey == "" {
		return parent
	}
	grand := c.ensureParentsLocked(parentKey)
	addDirectory(grand, domain.DirectoryEntry{Name: BaseName(parentKey), Path: parentKey})
	return parent
}

// UpsertFile adds or replaces file in its parent directory, creating the
// ancestor chain first.
func (c *StorageCache) UpsertFile(file domain.FileEntry) {
	if file.Kind == "" {
		file.Kind = domain.KindFromName(file.Name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	parent := c.ensureParentsLocked(CleanPath(file.Path))
	putFile(parent, file)
	c.nodes[parent.Path] = parent
}

// Delete removes the single node at path and unlinks it from its parent.
// Children are left in place.
func (c *StorageCache) Delete(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteLocked(CleanPath(path))
}

func (c *StorageCache) deleteLocked(key string) {
	if _, ok := c.nodes[key]; !ok {
		return
	}
	delete(c.nodes, key)
	if key == "" {
		return
	}
	if parent, ok := c.nodes[ParentPath(key)]; ok {
		removeDirectory(parent, key)
	}
}

// DeleteWithChildren removes path and everything reachable from it through
// subdirectory entries, children first.
func (c *StorageCache) DeleteWithChildren(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteTreeLocked(CleanPath(path))
}

func (c *StorageCache) deleteTreeLocked(key string) {
	node, ok := c.nodes[key]
	if !ok {
		return
	}
	children := make([]string, 0, len(node.Directories))
	for _, d := range node.Directories {
		if child := CleanPath(d.Path); child != key {
			children = append(children, child)
		}
	}
	for _, child := range children {
		c.deleteTreeLocked(child)
	}
	c.deleteLocked(key)
}

// Files returns every cached file, ordered by path.
func (c *StorageCache) Files() []domain.FileEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var files []domain.FileEntry
	for _, n := range c.nodes {
		files = append(files, n.Files...)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// RandomFile picks uniformly among cached files accepted by match. A nil
// match accepts everything.
func (c *StorageCache) RandomFile(match func(domain.FileEntry) bool) (domain.FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var candidates []domain.FileEntry
	for _, n := range c.nodes {
		for _, f := range n.Files {
			if match == nil || match(f) {
				candidates = append(candidates, f)
			}
		}
	}
	if len(candidates) == 0 {
		return domain.FileEntry{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// Len returns the number of cached directories.
func (c *StorageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

func (c *StorageCache) Clear() {
	c.mu.Lock()
	c.nodes = make(map[string]*domain.CacheNode)
	c.mu.Unlock()
}

// Nodes exports a copy of every node, ordered by path.
func (c *StorageCache) Nodes() []domain.CacheNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CacheNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Load replaces the cache contents with nodes, e.g. from a snapshot.
func (c *StorageCache) Load(nodes []domain.CacheNode) {
	m := make(map[string]*domain.CacheNode, len(nodes))
	for _, n := range nodes {
		cp := copyNode(&n)
		cp.Path = CleanPath(cp.Path)
		m[cp.Path] = &cp
	}
	c.mu.Lock()
	c.nodes = m
	c.mu.Unlock()
}

func copyNode(n *domain.CacheNode) domain.CacheNode {
	return domain.CacheNode{
		Path:        n.Path,
		Directories: append([]domain.DirectoryEntry{}, n.Directories...),
		Files:       append([]domain.FileEntry{}, n.Files...),
	}
}

func addDirectory(n *domain.CacheNode, entry domain.DirectoryEntry) {
	key := CleanPath(entry.Path)
	for _, d := range n.Directories {
		if CleanPath(d.Path) == key {
			return
		}
	}
	n.Directories = append(n.Directories, entry)
}

func removeDirectory(n *domain.CacheNode, key string) {
	kept := n.Directories[:0]
	for _, d := range n.Directories {
		if CleanPath(d.Path) != key {
			kept = append(kept, d)
		}
	}
	n.Directories = kept
}

func putFile(n *domain.CacheNode, file domain.FileEntry) {
	key := CleanPath(file.Path)
	for i, f := range n.Files {
		if CleanPath(f.Path) == key {
			n.Files[i] = file
			return
		}
	}
	n.Files = append(n.Files, file)
}
