package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ocm.software/open-component-model/bindings/go/maven/cache"
	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/pom"
	"ocm.software/open-component-model/bindings/go/maven/repository"
)

// outcome classifies the attempt to resolve a coordinate in one repository.
type outcome int

const (
	// found means the repository holds the coordinate.
	found outcome = iota
	// notFoundHere means the repository does not hold the coordinate; the next one is tried.
	notFoundHere
	// failed means the repository could not be queried; the next one is tried.
	failed
)

func (o outcome) String() string {
	switch o {
	case found:
		return metrics.OutcomeFound
	case notFoundHere:
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeFailed
	}
}

type attempt struct {
	outcome outcome
	base    string
	err     error
}

func foundAt(base string) attempt {
	return attempt{outcome: found, base: base}
}

// missOrFailure classifies a fetch error.
func missOrFailure(err error) attempt {
	if errors.Is(err, fetch.ErrNotFound) {
		return attempt{outcome: notFoundHere, err: err}
	}
	return attempt{outcome: failed, err: err}
}

// Resolve returns the base location of coord: the repository URL followed by the artifact path
// and file name without extension, e.g. https://repo/org/example/lib/1.0/lib-1.0.
//
// Concurrent calls for the same coordinate share one resolution.
func (s *Session) Resolve(ctx context.Context, coord coordinate.Coordinate) (string, error) {
	if _, err := s.registry.Validated(coord); err != nil {
		return "", err
	}
	return s.urls.Do(ctx, coord)
}

// ResolveArtifact returns the location of the artifact file of coord with the given packaging.
func (s *Session) ResolveArtifact(ctx context.Context, coord coordinate.Coordinate, packaging string) (string, error) {
	base, err := s.Resolve(ctx, coord)
	if err != nil {
		return "", err
	}
	if packaging == "" {
		packaging = pom.DefaultType
	}
	return base + "." + packaging, nil
}

// expireBase validates the in-memory entry of coord against the persistent cache before it is
// handed out.
func (s *Session) expireBase(ctx context.Context, coord coordinate.Coordinate, existing *cache.Future[string]) *cache.Future[string] {
	switch {
	case existing == nil:
		return s.seedFromPersistent(ctx, coord)
	case !existing.Ready():
		return existing
	case existing.Err() != nil:
		if time.Since(existing.CompletedAt()) >= s.negativeTTL {
			return nil
		}
		return existing
	case s.persistent == nil:
		return existing
	}

	// an expired entry served after a failed resolution is trusted like a failure
	if v, ok := s.staleSince.Load(coord); ok {
		if time.Since(v.(time.Time)) < s.negativeTTL {
			return existing
		}
		s.staleSince.Delete(coord)
		return nil
	}

	entry, ok, err := s.persistent.Lookup(ctx, coord)
	if err != nil {
		s.logger(ctx).WarnContext(ctx, "could not read persistent cache", slog.String("coordinate", coord.String()), slog.Any("error", err))
		return existing
	}
	if ok && s.persistent.IsExpired(entry) {
		s.logger(ctx).DebugContext(ctx, "persistent entry expired, resolving again", slog.String("coordinate", coord.String()))
		return nil
	}
	return existing
}

func (s *Session) seedFromPersistent(ctx context.Context, coord coordinate.Coordinate) *cache.Future[string] {
	if s.persistent == nil {
		return nil
	}
	url, ok, err := s.persistent.Get(ctx, coord)
	if err != nil {
		s.logger(ctx).WarnContext(ctx, "could not read persistent cache", slog.String("coordinate", coord.String()), slog.Any("error", err))
		return nil
	}
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(metrics.CachePersistent, metrics.ResultMiss).Inc()
		return nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(metrics.CachePersistent, metrics.ResultHit).Inc()
	return cache.Completed(url)
}

// resolveBase walks the repositories in priority order and returns the first location found.
func (s *Session) resolveBase(ctx context.Context, coord coordinate.Coordinate) (base string, err error) {
	logger := s.logger(ctx).With(slog.String("coordinate", coord.String()))

	metrics.InFlightResolutions.Inc()
	defer metrics.InFlightResolutions.Dec()
	start := time.Now()
	result := metrics.OutcomeNotFound
	defer func() {
		metrics.ObserveSince(metrics.ResolutionDurationSeconds.WithLabelValues(result), start)
	}()

	var errs []error
	for _, repo := range s.repos.All() {
		a := s.tryRepository(ctx, repo, coord)
		metrics.RepositoryAttemptsTotal.WithLabelValues(repo, a.outcome.String()).Inc()

		switch a.outcome {
		case found:
			logger.DebugContext(ctx, "resolved", slog.String("repository", repo), slog.String("base", a.base))
			s.persist(ctx, coord, a.base)
			s.staleSince.Delete(coord)
			result = metrics.OutcomeFound
			return a.base, nil
		case notFoundHere:
			logger.DebugContext(ctx, "not found in repository", slog.String("repository", repo))
		case failed:
			logger.WarnContext(ctx, "repository failed", slog.String("repository", repo), slog.Any("error", a.err))
			errs = append(errs, a.err)
		}
	}

	if stale, ok := s.staleBase(ctx, coord); ok {
		logger.WarnContext(ctx, "resolution failed, using expired cache entry", slog.String("base", stale))
		result = metrics.OutcomeStale
		return stale, nil
	}

	err = fmt.Errorf("%w: %s", ErrNotFound, coord)
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %w", err, errors.Join(errs...))
		result = metrics.OutcomeFailed
	}
	logger.ErrorContext(ctx, "resolution failed", slog.Any("error", err))
	return "", err
}

// tryRepository resolves coord in a single repository.
func (s *Session) tryRepository(ctx context.Context, repo string, coord coordinate.Coordinate) attempt {
	dir := repo + coord.Path()

	if coord.IsSnapshot() {
		if repository.IsLocal(repo) {
			return attempt{outcome: notFoundHere}
		}
		meta, err := s.snapshotMetadata(ctx, dir+pom.MetadataFile)
		if err != nil {
			return missOrFailure(err)
		}
		if meta.Snapshot == nil {
			return attempt{outcome: notFoundHere, err: fmt.Errorf("%s has no snapshot version", dir+pom.MetadataFile)}
		}
		version := coord.Version
		if meta.Snapshot.Complete() {
			version = strings.TrimSuffix(version, coordinate.SnapshotSuffix) + "-" + meta.Snapshot.Timestamp + "-" + meta.Snapshot.BuildNumber
		}
		return foundAt(dir + coord.Artifact + "-" + version + coord.ClassifierSuffix())
	}

	candidate := dir + coord.Artifact + "-" + coord.Version + coord.ClassifierSuffix()
	if d, ok := s.cachedDescriptor(coord); ok && strings.HasPrefix(d.URL, repo+"/") {
		return foundAt(candidate)
	}
	pomURL := candidate + ".pom"
	data, err := s.fetch(ctx, pomURL)
	if err != nil {
		return missOrFailure(err)
	}
	s.storeProbed(coord, newDescriptor(pomURL, data))
	return foundAt(candidate)
}

func (s *Session) snapshotMetadata(ctx context.Context, url string) (*pom.Metadata, error) {
	if m, ok := s.metadata.Get(url); ok {
		metrics.CacheLookupsTotal.WithLabelValues(metrics.CacheMetadata, metrics.ResultHit).Inc()
		return m, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues(metrics.CacheMetadata, metrics.ResultMiss).Inc()

	data, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	m, err := pom.ParseMetadata(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	s.metadata.Add(url, m)
	return m, nil
}

// persist writes a resolution to the persistent cache. Failures are logged only.
func (s *Session) persist(ctx context.Context, coord coordinate.Coordinate, base string) {
	if s.persistent == nil {
		return
	}
	if err := s.persistent.Put(ctx, coord, base); err != nil {
		s.logger(ctx).WarnContext(ctx, "could not persist resolution", slog.String("coordinate", coord.String()), slog.Any("error", err))
	}
}

// staleBase returns an expired persistent entry for coord, if stale fallback is enabled.
func (s *Session) staleBase(ctx context.Context, coord coordinate.Coordinate) (string, bool) {
	if s.persistent == nil || !s.stale {
		return "", false
	}
	entry, ok, err := s.persistent.Lookup(ctx, coord)
	if err != nil || !ok {
		return "", false
	}
	metrics.CacheLookupsTotal.WithLabelValues(metrics.CachePersistent, metrics.ResultStale).Inc()
	s.staleSince.Store(coord, time.Now())
	return entry.URL, true
}
