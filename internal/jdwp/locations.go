package jdwp

import "sync"

// LocationCache is a line-table cache mapping source coordinates to device
// locations. Resolution is exact-lookup only: callers register locations
// they already know (from stop events or class metadata) and breakpoints
// at unregistered coordinates stay local until a location is cached.
// Resolve satisfies LocationResolver. Safe for concurrent use.
type LocationCache struct {
	mu      sync.Mutex
	entries map[coordinate]Location
}

// NewLocationCache creates an empty cache.
func NewLocationCache() *LocationCache {
	return &LocationCache{entries: make(map[coordinate]Location)}
}

// Add caches the location for a source coordinate, replacing any previous
// entry.
func (c *LocationCache) Add(file string, line int, loc Location) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[coordinate{file, line}] = loc
}

// Resolve looks up the cached location for a source coordinate.
func (c *LocationCache) Resolve(file string, line int) (Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.entries[coordinate{file, line}]
	return loc, ok
}
