package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/teensyrom/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketNodes = []byte("nodes")
	bucketMeta  = []byte("meta")
)

// SnapshotStore persists StorageCache contents in BoltDB so a later run can
// search and pick random files without sweeping the device again.
// Keys are "<storage>:<normalized path>".
type SnapshotStore struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory copy for memory-only mode and repeated loads
	cache map[string][]byte
}

// NewSnapshotStore opens the snapshot database under baseDir. deviceID
// (the port name or board serial) separates caches of different cartridges.
// An empty baseDir keeps everything in memory.
func NewSnapshotStore(baseDir, deviceID string) (*SnapshotStore, error) {
	if baseDir == "" {
		return &SnapshotStore{cache: make(map[string][]byte)}, nil
	}

	dir := baseDir
	if deviceID != "" {
		dir = filepath.Join(baseDir, hashDeviceID(deviceID))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "cache.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketNodes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &SnapshotStore{db: db, cache: make(map[string][]byte)}, nil
}

func hashDeviceID(id string) string {
	normalized := strings.TrimSpace(strings.ToLower(id))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *SnapshotStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func storagePrefix(storage domain.StorageType) string {
	return string(storage) + ":"
}

// LoadNodes returns the saved nodes for storage, false when nothing was saved.
func (s *SnapshotStore) LoadNodes(storage domain.StorageType) ([]domain.CacheNode, bool) {
	prefix := storagePrefix(storage)
	raw := make(map[string][]byte)

	s.mu.RLock()
	for k, v := range s.cache {
		if strings.HasPrefix(k, prefix) {
			raw[k] = v
		}
	}
	s.mu.RUnlock()

	if len(raw) == 0 && s.db != nil {
		s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketNodes)
			if b == nil {
				return nil
			}
			c := b.Cursor()
			p := []byte(prefix)
			for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
				data := make([]byte, len(v))
				copy(data, v)
				raw[string(k)] = data
			}
			return nil
		})

		// Promote to memory cache
		s.mu.Lock()
		for k, v := range raw {
			s.cache[k] = v
		}
		s.mu.Unlock()
	}

	if len(raw) == 0 {
		return nil, false
	}

	nodes := make([]domain.CacheNode, 0, len(raw))
	for _, data := range raw {
		var n domain.CacheNode
		if err := json.Unmarshal(data, &n); err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes, true
}

// SaveNodes replaces the saved snapshot for storage.
func (s *SnapshotStore) SaveNodes(storage domain.StorageType, nodes []domain.CacheNode) error {
	prefix := storagePrefix(storage)
	encoded := make(map[string][]byte, len(nodes))
	for _, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		encoded[prefix+CleanPath(n.Path)] = data
	}

	s.mu.Lock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	for k, v := range encoded {
		s.cache[k] = v
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil // Memory-only mode
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		if err := deletePrefix(b, prefix); err != nil {
			return err
		}
		for k, v := range encoded {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		stamp, err := time.Now().UTC().MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(prefix+"saved_at"), stamp)
	})
}

// SavedAt reports when storage was last saved.
func (s *SnapshotStore) SavedAt(storage domain.StorageType) (time.Time, bool) {
	if s.db == nil {
		return time.Time{}, false
	}
	var ts time.Time
	var ok bool
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get([]byte(storagePrefix(storage) + "saved_at")); v != nil {
			ok = ts.UnmarshalText(v) == nil
		}
		return nil
	})
	return ts, ok
}

// Invalidate drops the snapshot for storage.
func (s *SnapshotStore) Invalidate(storage domain.StorageType) error {
	prefix := storagePrefix(storage)

	s.mu.Lock()
	for k := range s.cache {
		if strings.HasPrefix(k, prefix) {
			delete(s.cache, k)
		}
	}
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := deletePrefix(tx.Bucket(bucketNodes), prefix); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(prefix + "saved_at"))
	})
}

// deletePrefix removes every key with prefix using a cursor scan.
func deletePrefix(b *bolt.Bucket, prefix string) error {
	if b == nil {
		return nil
	}
	c := b.Cursor()
	p := []byte(prefix)
	for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); {
		if err := c.Delete(); err != nil {
			return err
		}
		k, _ = c.Seek(p)
	}
	return nil
}
