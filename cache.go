package quadmosaic

import (
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

type cacheKey struct {
	id   int
	h, w int
}

func (k cacheKey) String() string {
	return strconv.Itoa(k.id) + ":" + strconv.Itoa(k.h) + "x" + strconv.Itoa(k.w)
}

// CacheStats counts overlay cache lookups.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// OverlayCache keeps overlay images resampled to leaf sizes for the length
// of a run. Entries are never evicted: the overlay set and the leaf sizes a
// depth-limited tree produces are both small.
type OverlayCache struct {
	resample Resampler

	mutex   sync.RWMutex
	entries map[cacheKey]*Raster
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewOverlayCache returns an empty cache using resample for misses. A nil
// resample selects AreaResample.
func NewOverlayCache(resample Resampler) *OverlayCache {
	if resample == nil {
		resample = AreaResample
	}
	return &OverlayCache{
		resample: resample,
		entries:  make(map[cacheKey]*Raster),
	}
}

// Resolve returns overlay id resampled to h x w. The resampler runs at most
// once per key, including under concurrent calls. Returned rasters are
// shared and must not be modified.
func (c *OverlayCache) Resolve(id, h, w int, img *Raster) (*Raster, error) {
	key := cacheKey{id: id, h: h, w: w}
	if r, ok := c.get(key); ok {
		c.hits.Add(1)
		instrumentCacheLookup(true)
		return r, nil
	}

	resampled := false
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		// A call that finished between get and Do has already stored it.
		if r, ok := c.get(key); ok {
			return r, nil
		}
		resampled = true
		c.misses.Add(1)
		instrumentCacheLookup(false)

		r, err := c.resample(img, h, w)
		if err != nil {
			return nil, err
		}
		c.mutex.Lock()
		c.entries[key] = r
		c.mutex.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	// Callers that shared another call's result count as hits.
	if !resampled {
		c.hits.Add(1)
		instrumentCacheLookup(true)
	}
	return v.(*Raster), nil
}

func (c *OverlayCache) get(key cacheKey) (*Raster, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

// Len returns the number of cached entries.
func (c *OverlayCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *OverlayCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
