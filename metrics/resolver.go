// Package metrics holds the prometheus metrics of the maven resolver.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "ocm"
	component = "maven"
)

// Cache names used as the cache label.
const (
	CacheURL        = "url"
	CacheDescriptor = "descriptor"
	CacheMetadata   = "metadata"
	CachePersistent = "persistent"
)

// Lookup results used as the result label.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultShare = "share"
	ResultStale = "stale"
)

// Repository outcomes used as the outcome label.
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
	// OutcomeStale labels a resolution served from an expired persistent entry.
	OutcomeStale = "stale"
)

// Verification results used as the result label.
const (
	VerificationVerified = "verified"
	VerificationMismatch = "mismatch"
	VerificationMissing  = "missing"
	VerificationError    = "error"
)

var (
	// CacheLookupsTotal counts lookups per cache and result.
	CacheLookupsTotal *prometheus.CounterVec

	// RepositoryAttemptsTotal counts resolution attempts per repository and outcome.
	RepositoryAttemptsTotal *prometheus.CounterVec

	// ResolutionDurationSeconds observes the duration of coordinate resolutions.
	ResolutionDurationSeconds *prometheus.HistogramVec

	// ClosureFailuresTotal counts dependency edges dropped while building a closure, per kind.
	ClosureFailuresTotal *prometheus.CounterVec

	// VerificationsTotal counts checksum verifications per result.
	VerificationsTotal *prometheus.CounterVec

	// DownloadedBytesTotal counts bytes written by artifact downloads.
	DownloadedBytesTotal prometheus.Counter

	// InFlightResolutions is the number of coordinate resolutions currently running.
	InFlightResolutions prometheus.Gauge
)

func init() {
	CacheLookupsTotal = counterVec(
		"cache_lookups_total",
		"Number of cache lookups by cache and result.",
		"cache", "result",
	)
	RepositoryAttemptsTotal = counterVec(
		"repository_attempts_total",
		"Number of coordinate resolution attempts against a repository by outcome.",
		"repository", "outcome",
	)
	ResolutionDurationSeconds = histogramVec(
		"resolution_duration_seconds",
		"Duration of coordinate resolutions across all repositories.",
		prometheus.ExponentialBuckets(0.005, 2, 12),
		"outcome",
	)
	ClosureFailuresTotal = counterVec(
		"closure_failures_total",
		"Number of dependency edges dropped while building a closure, by kind.",
		"kind",
	)
	VerificationsTotal = counterVec(
		"verifications_total",
		"Number of artifact checksum verifications by result.",
		"result",
	)
	DownloadedBytesTotal = counter(
		"downloaded_bytes_total",
		"Number of artifact bytes downloaded.",
	)
	InFlightResolutions = gauge(
		"resolutions_in_flight",
		"Number of coordinate resolutions currently running.",
	)
}
