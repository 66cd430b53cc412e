package resolver

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/pom"
)

// Package is a resolved artifact. Packages are identified by coordinate: a session holds one
// Package per coordinate.
type Package struct {
	coord     *coordinate.Coordinate
	base      string
	packaging string

	mu        sync.RWMutex
	name      string
	checksums map[string]string

	progress atomic.Int64
	size     atomic.Int64
}

// Coordinate returns the coordinate of the package.
func (p *Package) Coordinate() coordinate.Coordinate {
	return *p.coord
}

// Base returns the base location of the package, without extension.
func (p *Package) Base() string {
	return p.base
}

// Packaging returns the file extension of the artifact.
func (p *Package) Packaging() string {
	return p.packaging
}

// URL returns the location of the artifact file.
func (p *Package) URL() string {
	return p.base + "." + p.packaging
}

// Name returns the display name of the package: the descriptor <name>, or the coordinate.
func (p *Package) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.name != "" {
		return p.name
	}
	return p.coord.String()
}

func (p *Package) setName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Package) String() string {
	return p.Name()
}

// Checksum returns the known digest of the artifact for algorithm.
func (p *Package) Checksum(algorithm string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.checksums[algorithm]
	return v, ok
}

// SetChecksum records the digest of the artifact for algorithm.
func (p *Package) SetChecksum(algorithm, digest string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checksums[algorithm] = digest
}

// Checksums returns a copy of all known digests.
func (p *Package) Checksums() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maps.Clone(p.checksums)
}

// Progress returns the number of bytes downloaded so far.
func (p *Package) Progress() int64 {
	return p.progress.Load()
}

// AddProgress records n downloaded bytes.
func (p *Package) AddProgress(n int64) {
	p.progress.Add(n)
}

// ResetProgress clears the download progress.
func (p *Package) ResetProgress() {
	p.progress.Store(0)
}

// Size returns the expected artifact size, or -1 if unknown.
func (p *Package) Size() int64 {
	return p.size.Load()
}

// SetSize records the expected artifact size.
func (p *Package) SetSize(n int64) {
	p.size.Store(n)
}

// Package returns the package of coord, resolving its base location if necessary.
// The packaging is fixed when the package is first created; empty means jar.
func (s *Session) Package(ctx context.Context, coord coordinate.Coordinate, packaging string) (*Package, error) {
	base, err := s.Resolve(ctx, coord)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.packages[coord]; ok {
		return p, nil
	}
	if packaging == "" {
		packaging = pom.DefaultType
	}
	p := &Package{
		coord:     s.registry.InternValue(coord),
		base:      base,
		packaging: packaging,
		checksums: map[string]string{},
	}
	p.size.Store(-1)
	s.packages[coord] = p
	return p, nil
}
