// Package persistent contains the durable resolution cache. It maps a coordinate to the base
// location it was last resolved to, together with an expiry timestamp, and survives restarts.
package persistent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
)

const (
	// DefaultTTL is the lifetime of a cache entry.
	DefaultTTL = 7 * 24 * time.Hour

	// AttributeSeparator separates a node key from an attribute name.
	AttributeSeparator = "#"

	attributeURL     = "url"
	attributeExpires = "expires"
)

// KV is the durable store the cache is built on.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	PutAll(ctx context.Context, values map[string]string) error
	Flush(ctx context.Context) error
	RemoveSubtree(ctx context.Context, prefix string) (int64, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Entry is a cached resolution.
type Entry struct {
	URL     string
	Expires time.Time
}

// Expired reports whether the entry is expired at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Cache is the persistent resolution cache.
type Cache struct {
	kv  KV
	ttl time.Duration
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache on top of kv.
func New(kv KV, opts ...Option) *Cache {
	c := &Cache{
		kv:  kv,
		ttl: DefaultTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the lifetime of new entries.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// IsExpired reports whether e is expired according to the cache clock.
func (c *Cache) IsExpired(e Entry) bool {
	return e.Expired(c.now())
}

// Get returns the cached URL for coord if an unexpired entry exists.
func (c *Cache) Get(ctx context.Context, coord coordinate.Coordinate) (string, bool, error) {
	entry, ok, err := c.Lookup(ctx, coord)
	if err != nil || !ok || c.IsExpired(entry) {
		return "", false, err
	}
	return entry.URL, true, nil
}

// Lookup returns the stored entry for coord regardless of its expiry.
func (c *Cache) Lookup(ctx context.Context, coord coordinate.Coordinate) (Entry, bool, error) {
	node := NodeKey(coord)

	url, ok, err := c.kv.Get(ctx, attribute(node, attributeURL))
	if err != nil || !ok {
		return Entry{}, false, err
	}

	var expires time.Time
	raw, ok, err := c.kv.Get(ctx, attribute(node, attributeExpires))
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Entry{}, false, fmt.Errorf("invalid expiry %q for %s: %w", raw, coord, err)
		}
		expires = time.UnixMilli(millis)
	}
	return Entry{URL: url, Expires: expires}, true, nil
}

// Put stores url for coord with an expiry of now plus the TTL and flushes the store.
func (c *Cache) Put(ctx context.Context, coord coordinate.Coordinate, url string) error {
	node := NodeKey(coord)
	expires := c.now().Add(c.ttl)
	if err := c.kv.PutAll(ctx, map[string]string{
		attribute(node, attributeURL):     url,
		attribute(node, attributeExpires): strconv.FormatInt(expires.UnixMilli(), 10),
	}); err != nil {
		return fmt.Errorf("persist %s: %w", coord, err)
	}
	if err := c.kv.Flush(ctx); err != nil {
		return fmt.Errorf("persist %s: %w", coord, err)
	}
	return nil
}

// DropAll removes every cached entry.
func (c *Cache) DropAll(ctx context.Context) error {
	if _, err := c.kv.RemoveSubtree(ctx, ""); err != nil {
		return fmt.Errorf("drop cache: %w", err)
	}
	return c.kv.Flush(ctx)
}

// Record is a cached resolution together with its coordinate.
type Record struct {
	Coordinate coordinate.Coordinate
	Entry
}

// List returns the cached entries of a group, including nested groups, ordered by key.
// An empty group lists every entry.
func (c *Cache) List(ctx context.Context, group string) ([]Record, error) {
	prefix := ""
	if group != "" {
		prefix = groupKey(group) + Separator
	}
	keys, err := c.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}

	var records []Record
	for _, key := range keys {
		node, ok := strings.CutSuffix(key, AttributeSeparator+attributeURL)
		if !ok {
			continue
		}
		coord, err := parseNodeKey(node)
		if err != nil {
			return nil, err
		}
		entry, ok, err := c.Lookup(ctx, coord)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, Record{Coordinate: coord, Entry: entry})
		}
	}
	return records, nil
}

// DropGroup removes every cached entry of a group, including nested groups.
func (c *Cache) DropGroup(ctx context.Context, group string) (int64, error) {
	return c.kv.RemoveSubtree(ctx, groupKey(group))
}

// NodeKey returns the hierarchical key of coord: one level per group segment followed by a
// leaf holding artifact, version and classifier.
func NodeKey(coord coordinate.Coordinate) string {
	return groupKey(coord.Group) + Separator +
		strings.Join([]string{coord.Artifact, coord.Version, coord.Classifier}, ":")
}

func parseNodeKey(node string) (coordinate.Coordinate, error) {
	i := strings.LastIndex(node, Separator)
	leaf := strings.Split(node[i+1:], ":")
	if i < 0 || len(leaf) != 3 {
		return coordinate.Coordinate{}, fmt.Errorf("%w: cache key %q", coordinate.ErrInvalid, node)
	}
	group := strings.ReplaceAll(node[:i], Separator, ".")
	return coordinate.New(group, leaf[0], leaf[1], leaf[2]), nil
}

func groupKey(group string) string {
	return strings.ReplaceAll(group, ".", Separator)
}

func attribute(node, name string) string {
	return node + AttributeSeparator + name
}
