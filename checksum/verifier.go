package checksum

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

const (
	DefaultAlgorithm   = "sha1"
	DefaultConcurrency = 8
)

// ErrMismatch is returned by Download when the downloaded file does not match the published digest.
var ErrMismatch = errors.New("checksum mismatch")

// Verifier compares local artifacts with the digests published next to them in their repository.
type Verifier struct {
	layout      Layout
	fetcher     fetch.Fetcher
	algorithm   string
	concurrency int
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithAlgorithm sets the checksum algorithm. It must be a key of Algorithms.
func WithAlgorithm(algorithm string) VerifierOption {
	return func(v *Verifier) {
		v.algorithm = strings.ToLower(algorithm)
	}
}

// WithConcurrency limits concurrent verifications in Updates.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		v.concurrency = n
	}
}

func NewVerifier(layout Layout, fetcher fetch.Fetcher, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		layout:      layout,
		fetcher:     fetcher,
		algorithm:   DefaultAlgorithm,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Verifier) Algorithm() string {
	return v.algorithm
}

func (v *Verifier) Layout() Layout {
	return v.layout
}

func (v *Verifier) logger(ctx context.Context, pkg *resolver.Package) *slog.Logger {
	return slogcontext.FromCtx(ctx).With(
		slog.String("realm", "maven"),
		slog.String("package", pkg.Coordinate().String()),
		slog.String("algorithm", v.algorithm))
}

// Verify reports whether the local file of pkg exists and matches the published digest.
// Errors are logged and reported as false.
func (v *Verifier) Verify(ctx context.Context, pkg *resolver.Package) bool {
	logger := v.logger(ctx, pkg)
	result, err := v.verify(ctx, pkg)
	metrics.VerificationsTotal.WithLabelValues(result).Inc()
	switch result {
	case metrics.VerificationVerified:
		return true
	case metrics.VerificationMissing:
		logger.DebugContext(ctx, "artifact not present locally", slog.String("path", v.layout.Path(pkg)))
	case metrics.VerificationMismatch:
		logger.InfoContext(ctx, "artifact does not match published checksum", slog.String("path", v.layout.Path(pkg)))
	default:
		logger.WarnContext(ctx, "artifact could not be verified", slog.Any("error", err))
	}
	return false
}

func (v *Verifier) verify(ctx context.Context, pkg *resolver.Package) (string, error) {
	file, err := os.Open(v.layout.Path(pkg))
	if errors.Is(err, fs.ErrNotExist) {
		return metrics.VerificationMissing, nil
	}
	if err != nil {
		return metrics.VerificationError, err
	}
	defer file.Close()

	actual, err := Digest(file, v.algorithm)
	if err != nil {
		return metrics.VerificationError, err
	}
	expected, err := v.Expected(ctx, pkg)
	if err != nil {
		return metrics.VerificationError, err
	}
	if actual != expected {
		return metrics.VerificationMismatch, nil
	}
	return metrics.VerificationVerified, nil
}

// Expected returns the published digest of pkg. It is taken from the package checksum cache, the
// local sidecar file or the remote sidecar, in that order, and cached in the package.
func (v *Verifier) Expected(ctx context.Context, pkg *resolver.Package) (string, error) {
	if sum, ok := pkg.Checksum(v.algorithm); ok {
		return sum, nil
	}

	var sum string
	content, err := os.ReadFile(v.layout.Sidecar(pkg, v.algorithm))
	switch {
	case err == nil:
		if sum, err = ParseSidecar(string(content)); err != nil {
			return "", fmt.Errorf("local checksum of %s: %w", pkg.Coordinate(), err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if sum, err = v.remote(ctx, pkg); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("read local checksum of %s: %w", pkg.Coordinate(), err)
	}
	pkg.SetChecksum(v.algorithm, sum)
	return sum, nil
}

func (v *Verifier) remote(ctx context.Context, pkg *resolver.Package) (string, error) {
	url := pkg.URL() + "." + v.algorithm
	content, err := fetch.Text(ctx, v.fetcher, url)
	if err != nil {
		return "", fmt.Errorf("fetch checksum of %s: %w", pkg.Coordinate(), err)
	}
	sum, err := ParseSidecar(content)
	if err != nil {
		return "", fmt.Errorf("checksum at %s: %w", url, err)
	}
	return sum, nil
}

// Updates returns the packages of the closure whose local file is missing or outdated, in
// closure order.
func (v *Verifier) Updates(ctx context.Context, closure *resolver.Closure) []*resolver.Package {
	stale := make([]bool, len(closure.Packages))
	eg, egctx := errgroup.WithContext(ctx)
	if v.concurrency > 0 {
		eg.SetLimit(v.concurrency)
	}
	for i, pkg := range closure.Packages {
		eg.Go(func() error {
			stale[i] = !v.Verify(egctx, pkg)
			return nil
		})
	}
	_ = eg.Wait()

	var updates []*resolver.Package
	for i, pkg := range closure.Packages {
		if stale[i] {
			updates = append(updates, pkg)
		}
	}
	return updates
}

// Download fetches the artifact of pkg into its local path and writes its checksum sidecar.
// The published digest is taken from the X-Checksum-* response headers if present. The file is
// only moved into place if it matches; otherwise ErrMismatch is returned.
func (v *Verifier) Download(ctx context.Context, pkg *resolver.Package) (err error) {
	logger := v.logger(ctx, pkg)
	target := v.layout.Path(pkg)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", pkg.Coordinate(), err)
	}

	res, err := v.fetcher.Open(ctx, pkg.URL())
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.Coordinate(), err)
	}
	defer res.Close()
	pkg.ResetProgress()
	if res.Size >= 0 {
		pkg.SetSize(res.Size)
	}
	for header, algorithm := range headerAlgorithms {
		if value := res.Header.Get(header); value != "" {
			if sum, err := ParseSidecar(value); err == nil {
				pkg.SetChecksum(algorithm, sum)
			}
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary file for %s: %w", pkg.Coordinate(), err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	h, err := NewHash(v.algorithm)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	n, err := io.Copy(io.MultiWriter(tmp, h, progressWriter{pkg}), res)
	metrics.DownloadedBytesTotal.Add(float64(n))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", pkg.Coordinate(), err)
	}
	pkg.SetSize(n)
	actual := fmt.Sprintf("%x", h.Sum(nil))

	// a stale sidecar from an earlier download must not be consulted
	sidecar := v.layout.Sidecar(pkg, v.algorithm)
	if err := os.Remove(sidecar); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checksum of %s: %w", pkg.Coordinate(), err)
	}
	expected, err := v.Expected(ctx, pkg)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("%w: %s: expected %s, got %s", ErrMismatch, pkg.Coordinate(), expected, actual)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move %s into place: %w", pkg.Coordinate(), err)
	}
	if err := os.WriteFile(sidecar, []byte(expected), 0o644); err != nil {
		return fmt.Errorf("write checksum of %s: %w", pkg.Coordinate(), err)
	}
	logger.InfoContext(ctx, "artifact downloaded", slog.String("path", target), slog.Int64("size", n))
	return nil
}

type progressWriter struct {
	pkg *resolver.Package
}

func (w progressWriter) Write(p []byte) (int, error) {
	w.pkg.AddProgress(int64(len(p)))
	return len(p), nil
}
