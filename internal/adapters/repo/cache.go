package repo

import (
	"sync"
	"time"

	"profile-feed/internal/domain"
)

// definitionCache держит справочники в памяти процесса с TTL.
type definitionCache struct {
	mu        sync.Mutex
	defs      domain.Definitions
	loadedAt  time.Time
	ttl       time.Duration
}

func (c *definitionCache) get() (domain.Definitions, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadedAt.IsZero() || (c.ttl > 0 && time.Since(c.loadedAt) > c.ttl) {
		return domain.Definitions{}, false
	}
	return c.defs, true
}

func (c *definitionCache) set(defs domain.Definitions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = defs
	c.loadedAt = time.Now()
}

// groupCache держит реестр групп характеристик в памяти процесса с TTL.
type groupCache struct {
	mu       sync.Mutex
	groups   map[string]int64
	loadedAt time.Time
	ttl      time.Duration
}

func (c *groupCache) get() (map[string]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadedAt.IsZero() || (c.ttl > 0 && time.Since(c.loadedAt) > c.ttl) {
		return nil, false
	}
	return c.groups, true
}

func (c *groupCache) set(groups map[string]int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = groups
	c.loadedAt = time.Now()
}
