// Package cache memoizes metadata probes across resolver invocations.
//
// The persistent tier is a path -> (mtime, probe result) map backed by a
// versioned binary state file. The in-memory tier additionally memoizes
// directory listings and file-existence checks within one invocation;
// those memos are never persisted.
package cache

import (
	"os"
	"sync"
	"sync/atomic"

	"arr/internal/logging"
	"arr/internal/probe"
)

// entry is one persistent cache record.
type entry struct {
	mtime  int64 // UnixNano of the file's last write time
	result *probe.Result
}

// ResolutionCache memoizes probe results keyed by path and mtime.
// Multiple readers may look up concurrently; writes to one path are
// serialized by a per-path guard.
type ResolutionCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	dirty   atomic.Bool

	pathMu sync.Mutex
	locks  map[string]*sync.Mutex

	memos  fsMemo
	logger *logging.Logger

	probeCount atomic.Int64
}

// NewResolutionCache creates an empty cache.
func NewResolutionCache(logger *logging.Logger) *ResolutionCache {
	return &ResolutionCache{
		entries: make(map[string]entry),
		locks:   make(map[string]*sync.Mutex),
		memos:   newFsMemo(),
		logger:  logger.WithComponent("cache"),
	}
}

func (c *ResolutionCache) pathLock(path string) *sync.Mutex {
	c.pathMu.Lock()
	defer c.pathMu.Unlock()
	l, ok := c.locks[path]
	if !ok {
		l = &sync.Mutex{}
		c.locks[path] = l
	}
	return l
}

// Probe returns the metadata for path, reprobing only when the file's
// mtime differs from the cached record. A reprobe marks the cache dirty.
func (c *ResolutionCache) Probe(path string, prober probe.Prober) (*probe.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mtime := info.ModTime().UnixNano()

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && e.mtime == mtime {
		return e.result, nil
	}

	lock := c.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	// Another writer may have filled the entry while we waited.
	c.mu.RLock()
	e, ok = c.entries[path]
	c.mu.RUnlock()
	if ok && e.mtime == mtime {
		return e.result, nil
	}

	c.probeCount.Add(1)
	result, err := prober.Probe(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[path] = entry{mtime: mtime, result: result}
	c.mu.Unlock()
	c.dirty.Store(true)

	return result, nil
}

// Dirty reports whether any entry changed since the last load or flush.
func (c *ResolutionCache) Dirty() bool {
	return c.dirty.Load()
}

// ProbeCount returns how many real probes ran. Tests use it to confirm
// cache hits.
func (c *ResolutionCache) ProbeCount() int64 {
	return c.probeCount.Load()
}

// Len returns the number of persistent entries.
func (c *ResolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every persistent entry and marks the cache dirty.
func (c *ResolutionCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	c.dirty.Store(true)
}

// FileExists memoizes os.Stat existence checks for the invocation.
func (c *ResolutionCache) FileExists(path string) bool {
	return c.memos.fileExists(path)
}

// ListDir memoizes directory listings, sorted case-insensitively, for
// the invocation.
func (c *ResolutionCache) ListDir(dir string) []string {
	return c.memos.listDir(dir)
}

// ListSubdirs memoizes subdirectory listings, sorted case-insensitively,
// for the invocation.
func (c *ResolutionCache) ListSubdirs(dir string) []string {
	return c.memos.listSubdirs(dir)
}

// ResetMemos drops the per-invocation filesystem memos.
func (c *ResolutionCache) ResetMemos() {
	c.memos = newFsMemo()
}
