package resolver

import (
	"context"
	"fmt"
	"sync"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/pom"
)

// Descriptor is a fetched project descriptor. It is parsed on first use.
type Descriptor struct {
	// URL is the location the descriptor was fetched from.
	URL  string
	data []byte

	once    sync.Once
	project *pom.Project
	err     error
}

func newDescriptor(url string, data []byte) *Descriptor {
	return &Descriptor{URL: url, data: data}
}

// Bytes returns the raw document.
func (d *Descriptor) Bytes() []byte {
	return d.data
}

// Project returns the parsed descriptor.
func (d *Descriptor) Project() (*pom.Project, error) {
	d.once.Do(func() {
		d.project, d.err = pom.ParseProject(d.data)
		if d.err != nil {
			d.err = fmt.Errorf("parse %s: %w", d.URL, d.err)
		}
	})
	return d.project, d.err
}

// Descriptor returns the project descriptor of coord. It is fetched at most once per session,
// and not at all if resolving the coordinate already fetched it.
func (s *Session) Descriptor(ctx context.Context, coord coordinate.Coordinate) (*Descriptor, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}
	return s.descriptors.Do(ctx, coord)
}

func (s *Session) fetchDescriptor(ctx context.Context, coord coordinate.Coordinate) (*Descriptor, error) {
	base, err := s.Resolve(ctx, coord)
	if err != nil {
		return nil, err
	}
	if d, ok := s.probed.LoadAndDelete(coord); ok {
		return d.(*Descriptor), nil
	}
	url := base + ".pom"
	data, err := s.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch descriptor of %s: %w", coord, err)
	}
	return newDescriptor(url, data), nil
}

// cachedDescriptor returns the descriptor of coord if it has already been fetched successfully.
func (s *Session) cachedDescriptor(coord coordinate.Coordinate) (*Descriptor, bool) {
	f, ok := s.descriptors.Lookup(coord)
	if !ok || !f.Ready() || f.Err() != nil {
		return nil, false
	}
	d, _ := f.Await(context.Background())
	return d, true
}

// storeProbed keeps a descriptor fetched while probing a repository so that it is not fetched again.
func (s *Session) storeProbed(coord coordinate.Coordinate, d *Descriptor) {
	if s.descriptors.PutIfAbsent(coord, d) {
		return
	}
	if f, ok := s.descriptors.Lookup(coord); ok && !f.Ready() {
		s.probed.Store(coord, d)
	}
}
