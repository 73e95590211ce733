// Package converter turns relative date words into formatted dates.
package converter

import (
	"slices"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Default settings.
const (
	DefaultCacheTTL      = time.Minute
	DefaultCacheCapacity = 256
)

// DefaultFormats are the layouts used when none are configured.
var DefaultFormats = []string{"2006/01/02", "2006-01-02"}

// offsets maps each recognized word to its distance in days from today.
var offsets = map[string]int{
	"おととい": -2,
	"きのう":  -1,
	"きょう":  0,
	"あした":  1,
	"あす":   1,
	"あさって": 2,
}

// Converter looks up candidates for an input word.
// It is safe for concurrent use; reads of the local clock are serialized.
type Converter struct {
	formats []string
	now     func() time.Time

	mu    sync.Mutex
	cache *ttlcache.Cache[string, []string]
}

// Option configures a Converter.
type Option func(*Converter)

// WithFormats sets the time layouts, one candidate per layout.
func WithFormats(formats ...string) Option {
	return func(c *Converter) {
		c.formats = formats
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Converter) {
		c.now = now
	}
}

// WithCache sets the candidate cache lifetime and size.
func WithCache(ttl time.Duration, capacity uint64) Option {
	return func(c *Converter) {
		c.cache = newCache(ttl, capacity)
	}
}

func newCache(ttl time.Duration, capacity uint64) *ttlcache.Cache[string, []string] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}
	return ttlcache.New[string, []string](
		ttlcache.WithTTL[string, []string](ttl),
		ttlcache.WithCapacity[string, []string](capacity),
		ttlcache.WithDisableTouchOnHit[string, []string](),
	)
}

// New creates a Converter and starts its cache expiration loop.
// Call Close to stop it.
func New(opts ...Option) *Converter {
	c := &Converter{
		formats: DefaultFormats,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.formats) == 0 {
		c.formats = DefaultFormats
	}
	if c.cache == nil {
		c.cache = newCache(DefaultCacheTTL, DefaultCacheCapacity)
	}
	go c.cache.Start()
	return c
}

// Close stops the cache expiration loop.
func (c *Converter) Close() {
	c.cache.Stop()
}

// Lookup returns the candidates for input, or an empty slice when the
// word is not recognized. The caller owns the returned slice.
func (c *Converter) Lookup(input string) []string {
	days, ok := offsets[input]
	if !ok {
		return []string{}
	}

	c.mu.Lock()
	now := c.now()
	c.mu.Unlock()

	key := input + "@" + now.Format(time.DateOnly)
	if item := c.cache.Get(key); item != nil {
		return slices.Clone(item.Value())
	}

	candidates := Candidates(now.AddDate(0, 0, days), c.formats)
	c.cache.Set(key, slices.Clone(candidates), ttlcache.DefaultTTL)
	return candidates
}

// Candidates formats t once per layout.
func Candidates(t time.Time, formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		out = append(out, t.Format(f))
	}
	return out
}
