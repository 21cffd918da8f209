package contentstore

import (
	"sync"
	"time"
)

type cachedFile struct {
	info      FileInfo
	expiresAt time.Time
}

// fileInfoCache keeps finalized upload metadata until the owning session expires.
type fileInfoCache struct {
	mu      sync.Mutex
	entries map[string]cachedFile
	now     func() time.Time
}

func newFileInfoCache(now func() time.Time) *fileInfoCache {
	return &fileInfoCache{entries: make(map[string]cachedFile), now: now}
}

func (c *fileInfoCache) put(info FileInfo, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
	c.entries[info.Key] = cachedFile{info: info, expiresAt: expiresAt}
}

func (c *fileInfoCache) get(key string) (FileInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return FileInfo{}, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return FileInfo{}, false
	}
	return e.info, true
}
