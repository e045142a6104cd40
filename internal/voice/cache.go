package voice

import "sync"

// Cache maps speaker ids to voice ids for one project. The first assignment
// for a speaker wins; later calls return it unchanged even if they race.
type Cache struct {
	mu       sync.Mutex
	voices   map[string]string
	pool     []string
	fallback string
	next     int
}

// NewCache builds a cache that hands out voices from pool in order, reusing
// the fallback voice when the pool is empty.
func NewCache(fallback string, pool []string) *Cache {
	return &Cache{
		voices:   make(map[string]string),
		pool:     append([]string(nil), pool...),
		fallback: fallback,
	}
}

// Assign records voiceID for speaker unless one is already set, and returns
// the effective voice.
func (c *Cache) Assign(speaker, voiceID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.voices[speaker]; ok {
		return v
	}
	c.voices[speaker] = voiceID
	return voiceID
}

// Resolve returns the voice for speaker, assigning the next pool voice on
// first sight.
func (c *Cache) Resolve(speaker string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.voices[speaker]; ok {
		return v
	}
	v := c.fallback
	if len(c.pool) > 0 {
		v = c.pool[c.next%len(c.pool)]
		c.next++
	}
	c.voices[speaker] = v
	return v
}

// Lookup returns the voice for speaker without assigning one.
func (c *Cache) Lookup(speaker string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.voices[speaker]
	return v, ok
}

// Snapshot copies the current assignments.
func (c *Cache) Snapshot() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.voices))
	for k, v := range c.voices {
		out[k] = v
	}
	return out
}
