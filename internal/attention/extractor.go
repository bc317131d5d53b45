package attention

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extractor runs a model forward pass and returns per-layer, per-head attention.
type Extractor interface {
	Extract(ctx context.Context, text string) (*Capture, error)
	// Layers returns the number of encoder layers the extractor reports.
	Layers() int
}

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_capture_cache_hits_total",
		Help: "Total number of attention captures served from cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_capture_cache_misses_total",
		Help: "Total number of attention captures computed by the extractor",
	})
)

// CaptureCache stores captures by input text.
type CaptureCache interface {
	Get(text string) (*Capture, bool)
	Put(text string, c *Capture)
	Size() int
}

// MapCache is a simple in-memory CaptureCache. Captures are treated as
// immutable once stored, so no copies are made.
type MapCache struct {
	data map[string]*Capture
	mu   sync.RWMutex
}

func NewMapCache() *MapCache {
	return &MapCache{
		data: make(map[string]*Capture),
	}
}

func (c *MapCache) Get(text string) (*Capture, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[text]
	return v, ok
}

func (c *MapCache) Put(text string, capture *Capture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[text] = capture
}

func (c *MapCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// CachingExtractor memoizes captures so repeated texts skip the forward pass.
type CachingExtractor struct {
	Extractor
	cache CaptureCache
}

func NewCachingExtractor(e Extractor, c CaptureCache) *CachingExtractor {
	if c == nil {
		c = NewMapCache()
	}
	return &CachingExtractor{Extractor: e, cache: c}
}

func (e *CachingExtractor) Extract(ctx context.Context, text string) (*Capture, error) {
	if c, ok := e.cache.Get(text); ok {
		cacheHits.Inc()
		return c, nil
	}
	cacheMisses.Inc()

	c, err := e.Extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Put(text, c)
	return c, nil
}
