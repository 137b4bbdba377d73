package geo

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"itincal/internal/model"
)

// DefaultCacheSize bounds the distance cache.
const DefaultCacheSize = 1000

// coordScale rounds coordinates to 6 decimal places (~0.11 m).
const coordScale = 1e6

type point struct {
	lat, lng int64
}

// key is an unordered pair of rounded points so that d(a,b) and d(b,a)
// share an entry.
type key struct {
	p, q point
}

func makeKey(a, b model.Location) key {
	pa := point{round(a.Latitude), round(a.Longitude)}
	pb := point{round(b.Latitude), round(b.Longitude)}
	if pb.lat < pa.lat || (pb.lat == pa.lat && pb.lng < pa.lng) {
		pa, pb = pb, pa
	}
	return key{pa, pb}
}

func round(v float64) int64 {
	return int64(math.Round(v * coordScale))
}

// Cache is a bounded, concurrency-safe distance cache. Owners decide its
// scope: one per session, or one shared by the process.
type Cache struct {
	lru *lru.Cache[key, float64]
}

// NewCache creates a cache holding at most size entries. A non-positive
// size uses DefaultCacheSize.
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for size <= 0.
	c, _ := lru.New[key, float64](size)
	return &Cache{lru: c}
}

func (c *Cache) get(k key) (float64, bool) {
	return c.lru.Get(k)
}

func (c *Cache) add(k key, d float64) {
	c.lru.Add(k, d)
}

// Len reports the number of cached distances.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached distance.
func (c *Cache) Purge() {
	c.lru.Purge()
}
