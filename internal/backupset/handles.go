package backupset

import (
	"github.com/golang/groupcache/lru"

	"github.com/deploymenttheory/go-mrimg-restore/internal/logger"
	"github.com/deploymenttheory/go-mrimg-restore/internal/utils/blockio"
)

// Opener opens a chain file for reading
type Opener func(path string) (*blockio.File, error)

// HandleTable holds open source files keyed by path. At most max files are
// open at once; the least recently used one is closed to make room and
// reopened on its next use. Not safe for concurrent use.
type HandleTable struct {
	open  Opener
	cache *lru.Cache
	opens int
	err   error
}

// NewHandleTable returns a table bounded to max open files. Zero means unbounded.
func NewHandleTable(max int, open Opener) *HandleTable {
	if open == nil {
		open = blockio.Open
	}
	t := &HandleTable{open: open, cache: lru.New(max)}
	t.cache.OnEvicted = func(key lru.Key, value interface{}) {
		f := value.(*blockio.File)
		if err := f.Close(); err != nil && t.err == nil {
			t.err = err
		}
		logger.LogDebug("Closed backup file handle", map[string]interface{}{"path": key})
	}
	return t
}

// Get returns an open handle for path
func (t *HandleTable) Get(path string) (*blockio.File, error) {
	if v, ok := t.cache.Get(path); ok {
		return v.(*blockio.File), nil
	}
	f, err := t.open(path)
	if err != nil {
		return nil, err
	}
	t.opens++
	t.cache.Add(path, f)
	return f, nil
}

// Len returns the number of open handles
func (t *HandleTable) Len() int {
	return t.cache.Len()
}

// Opens returns how many times a file was opened, including reopens after eviction
func (t *HandleTable) Opens() int {
	return t.opens
}

// Close closes every open handle and returns the first close error seen
// by this table, including ones raised during eviction.
func (t *HandleTable) Close() error {
	t.cache.Clear()
	return t.err
}
