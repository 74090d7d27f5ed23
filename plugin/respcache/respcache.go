// Package respcache caches deterministic assistant replies (greetings,
// thanks, static FAQ phrasing) so repeated pleasantries never cost a
// provider call. Only messages matching a closed set of cacheable patterns
// are eligible; everything else bypasses the cache entirely.
package respcache

import (
	"strings"
	"sync"
	"time"
)

const (
	// StaticTTL applies to pleasantry replies (greeting, thanks, farewell).
	StaticTTL = 24 * time.Hour
	// NavigationalTTL applies to capability and onboarding phrasing, which
	// changes more often than pleasantries.
	NavigationalTTL = 4 * time.Hour

	// DefaultCapacity bounds the entry count before eviction kicks in.
	DefaultCapacity = 512
)

// Entry is one cached reply.
type Entry struct {
	Content     string
	Suggestions []string
	IntentLabel string

	createdAt time.Time
	ttl       time.Duration
	hits      int
}

// Hits returns the entry's lookup count.
func (e *Entry) Hits() int { return e.hits }

// cachePattern gates eligibility. Every key is persona-scoped because the
// reply is always composed from the persona's own templates; the
// navigational flag only selects the shorter TTL.
type cachePattern struct {
	keywords     []string
	label        string
	navigational bool
}

// patterns is the closed eligibility set. Exact-phrase classes only; any
// message with more substance than a pleasantry must reach the provider.
var patterns = []cachePattern{
	{keywords: []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}, label: "greeting"},
	{keywords: []string{"thanks", "thank you", "thx", "cheers"}, label: "thanks"},
	{keywords: []string{"bye", "goodbye", "see you"}, label: "farewell"},
	{keywords: []string{"what can you do", "what can you help with", "how can you help"}, label: "capabilities", navigational: true},
	{keywords: []string{"where do i start", "how do i get started", "getting started"}, label: "onboarding", navigational: true},
}

// Cache is a TTL response cache with lowest-hit-count-then-oldest eviction.
type Cache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]*Entry
}

// New creates a response cache. capacity <= 0 uses DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Entry),
	}
}

// Key canonicalizes message and returns its cache key, or ok=false when the
// message is not cache-eligible.
func (c *Cache) Key(message, persona string) (string, bool) {
	canon := canonicalize(message)
	if canon == "" {
		return "", false
	}
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if canon == kw {
				return p.label + ":" + persona + ":" + canon, true
			}
		}
	}
	return "", false
}

// Get returns the entry for key, transparently expiring it when its age
// exceeds its TTL.
func (c *Cache) Get(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Since(e.createdAt) > e.ttl {
		delete(c.entries, key)
		return nil
	}
	e.hits++
	return e
}

// Set stores a reply under key. The TTL is pattern-dependent: navigational
// keys get NavigationalTTL, everything else StaticTTL.
func (c *Cache) Set(key, content string, suggestions []string, intentLabel string) {
	ttl := StaticTTL
	if isNavigationalKey(key) {
		ttl = NavigationalTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLocked()
	}
	c.entries[key] = &Entry{
		Content:     content,
		Suggestions: suggestions,
		IntentLabel: intentLabel,
		createdAt:   time.Now(),
		ttl:         ttl,
	}
}

// Size returns the number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked removes the entry with the lowest hit count, ties broken by
// oldest creation time. Must be called with the lock held.
func (c *Cache) evictLocked() {
	var victimKey string
	var victim *Entry
	for k, e := range c.entries {
		if victim == nil ||
			e.hits < victim.hits ||
			(e.hits == victim.hits && e.createdAt.Before(victim.createdAt)) {
			victimKey, victim = k, e
		}
	}
	if victim != nil {
		delete(c.entries, victimKey)
	}
}

func isNavigationalKey(key string) bool {
	for _, p := range patterns {
		if p.navigational && strings.HasPrefix(key, p.label+":") {
			return true
		}
	}
	return false
}

// canonicalize lowercases, trims surrounding punctuation and collapses
// internal whitespace so "Hello!!" and " hello " share a key.
func canonicalize(message string) string {
	s := strings.ToLower(strings.TrimSpace(message))
	s = strings.Trim(s, "!?.,:;~ ")
	return strings.Join(strings.Fields(s), " ")
}
