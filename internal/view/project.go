package view

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tinytelemetry/warden/internal/model"
)

// Query is one request for a projection of a snapshot.
type Query struct {
	Filter   model.FilterSpec
	Page     int
	PageSize int
}

// Output is everything a renderer consumes: the visible page, the stats of
// the filtered collection and the page bookkeeping.
type Output struct {
	Visible []model.LogRecord `json:"records"`
	Stats   Stats             `json:"stats"`
	Page    PageInfo          `json:"page"`
}

// Project runs filter, aggregate and paginate over one snapshot.
func Project(records []model.LogRecord, q Query, loc *time.Location) Output {
	filtered := Filter(records, q.Filter)
	visible, info := Paginate(filtered, q.PageSize, q.Page)
	return Output{
		Visible: visible,
		Stats:   AggregateIn(filtered, loc),
		Page:    info,
	}
}

type cacheKey struct {
	seq   uint64
	query Query
}

// Cache memoizes projections per snapshot sequence. Snapshots are
// immutable, so an entry stays valid for as long as its sequence does.
type Cache struct {
	loc     *time.Location
	entries *lru.Cache[cacheKey, Output]
}

// NewCache creates a projection cache holding up to size entries.
func NewCache(size int, loc *time.Location) (*Cache, error) {
	if size < 1 {
		size = 1
	}
	entries, err := lru.New[cacheKey, Output](size)
	if err != nil {
		return nil, err
	}
	return &Cache{loc: loc, entries: entries}, nil
}

// Project returns the cached projection for (seq, q) or computes it.
func (c *Cache) Project(seq uint64, records []model.LogRecord, q Query) Output {
	if q.PageSize < 1 {
		q.PageSize = model.DefaultPageSize
	}
	key := cacheKey{seq: seq, query: q}
	if out, ok := c.entries.Get(key); ok {
		return out
	}
	out := Project(records, q, c.loc)
	c.entries.Add(key, out)
	return out
}

// Len returns the number of cached projections.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached projection.
func (c *Cache) Purge() {
	c.entries.Purge()
}
