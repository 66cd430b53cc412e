// Package resolver resolves Maven coordinates to base locations in a list of repositories and
// builds the transitive dependency closure of an artifact.
//
// All state lives in a Session. Every network bound computation is memoized per coordinate:
// concurrent requests for the same coordinate share a single computation.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/semaphore"

	"ocm.software/open-component-model/bindings/go/maven/cache"
	"ocm.software/open-component-model/bindings/go/maven/cache/persistent"
	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/pom"
	"ocm.software/open-component-model/bindings/go/maven/repository"
)

var (
	// ErrNotFound is returned when no repository yields a location for a coordinate.
	ErrNotFound = errors.New("coordinate not found in any repository")

	// ErrUnsupportedVersion is returned for dependencies whose version is not declared, which
	// would require dependency management or version range resolution.
	ErrUnsupportedVersion = errors.New("unsupported version")
)

const (
	DefaultNegativeTTL  = time.Minute
	DefaultMetadataTTL  = time.Minute
	DefaultMetadataSize = 256
)

// Options configures a Session.
type Options struct {
	Repositories *repository.List
	Fetcher      fetch.Fetcher
	// Cache is the persistent resolution cache. Nil disables persistence.
	Cache *persistent.Cache
	// Concurrency limits concurrent fetches. 0 means unlimited.
	Concurrency int
	// NegativeTTL is how long a failed resolution is served from memory before it is retried.
	NegativeTTL  time.Duration
	MetadataTTL  time.Duration
	MetadataSize int
	// StaleFallback serves an expired persistent entry when re-resolution fails.
	StaleFallback bool
}

// Option is a functional option for NewSession.
type Option func(*Options)

// WithRepositories sets the repository list.
func WithRepositories(repos *repository.List) Option {
	return func(o *Options) {
		o.Repositories = repos
	}
}

// WithFetcher sets the fetcher used for all repository access.
func WithFetcher(f fetch.Fetcher) Option {
	return func(o *Options) {
		o.Fetcher = f
	}
}

// WithPersistentCache enables the persistent resolution cache.
func WithPersistentCache(c *persistent.Cache) Option {
	return func(o *Options) {
		o.Cache = c
	}
}

// WithConcurrency limits the number of concurrent fetches.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithNegativeTTL sets how long failed resolutions are remembered. 0 retries on every call.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.NegativeTTL = ttl
	}
}

// WithMetadataCache sizes the in-memory cache of snapshot metadata documents.
func WithMetadataCache(size int, ttl time.Duration) Option {
	return func(o *Options) {
		o.MetadataSize = size
		o.MetadataTTL = ttl
	}
}

// WithStaleFallback toggles serving expired persistent entries when re-resolution fails.
func WithStaleFallback(enabled bool) Option {
	return func(o *Options) {
		o.StaleFallback = enabled
	}
}

// Session is an isolated resolution context. It owns the coordinate registry and all caches.
type Session struct {
	id          string
	registry    *coordinate.Registry
	repos       *repository.List
	fetcher     fetch.Fetcher
	persistent  *persistent.Cache
	negativeTTL time.Duration
	stale       bool
	sem         *semaphore.Weighted

	urls        *cache.Group[coordinate.Coordinate, string]
	descriptors *cache.Group[coordinate.Coordinate, *Descriptor]
	metadata    *expirable.LRU[string, *pom.Metadata]

	// probed holds descriptors fetched by a release probe while a descriptor fetch for the
	// same coordinate was already in flight.
	probed sync.Map
	// staleSince records when an expired persistent entry was served for a coordinate.
	staleSince sync.Map

	mu       sync.Mutex
	packages map[coordinate.Coordinate]*Package
}

// NewSession creates a session. Without options it resolves against the default repositories
// over the network without persistence.
func NewSession(opts ...Option) *Session {
	options := &Options{
		NegativeTTL:   DefaultNegativeTTL,
		MetadataTTL:   DefaultMetadataTTL,
		MetadataSize:  DefaultMetadataSize,
		StaleFallback: true,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Repositories == nil {
		options.Repositories = repository.NewDefaultList("")
	}
	if options.Fetcher == nil {
		options.Fetcher = fetch.NewClient()
	}

	s := &Session{
		id:          uuid.NewString(),
		registry:    coordinate.NewRegistry(),
		repos:       options.Repositories,
		fetcher:     options.Fetcher,
		persistent:  options.Cache,
		negativeTTL: options.NegativeTTL,
		stale:       options.StaleFallback,
		metadata:    expirable.NewLRU[string, *pom.Metadata](options.MetadataSize, nil, options.MetadataTTL),
		packages:    make(map[coordinate.Coordinate]*Package),
	}
	if options.Concurrency > 0 {
		s.sem = semaphore.NewWeighted(int64(options.Concurrency))
	}

	s.urls = cache.NewGroup(s.resolveBase,
		cache.WithExpire(s.expireBase),
		cache.WithEvents[coordinate.Coordinate, string](countEvents(metrics.CacheURL)),
	)
	s.descriptors = cache.NewGroup(s.fetchDescriptor,
		cache.WithEvents[coordinate.Coordinate, *Descriptor](countEvents(metrics.CacheDescriptor)),
	)
	return s
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Registry returns the coordinate registry of the session.
func (s *Session) Registry() *coordinate.Registry {
	return s.registry
}

// Repositories returns the repository list of the session.
func (s *Session) Repositories() *repository.List {
	return s.repos
}

// Fetcher returns the fetcher used for repository access.
func (s *Session) Fetcher() fetch.Fetcher {
	return s.fetcher
}

func (s *Session) logger(ctx context.Context) *slog.Logger {
	return slogcontext.FromCtx(ctx).With(slog.String("realm", "maven"), slog.String("session", s.id))
}

// fetch reads the resource at url, holding a fetch slot if concurrency is limited.
func (s *Session) fetch(ctx context.Context, url string) ([]byte, error) {
	if s.sem != nil {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer s.sem.Release(1)
	}
	data, _, err := fetch.Bytes(ctx, s.fetcher, url)
	return data, err
}

func countEvents(name string) func(coordinate.Coordinate, cache.Event) {
	return func(_ coordinate.Coordinate, event cache.Event) {
		metrics.CacheLookupsTotal.WithLabelValues(name, string(event)).Inc()
	}
}
