package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"ocm.software/open-component-model/bindings/go/maven/cache"
	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/pom"
)

// FailureKind classifies why a package or dependency was left out of a closure.
type FailureKind string

const (
	// FailureDescriptor means the descriptor of a package could not be fetched.
	FailureDescriptor FailureKind = "descriptor"
	// FailureMalformed means a descriptor or one of its dependency entries is malformed.
	FailureMalformed FailureKind = "malformed"
	// FailureUnsupportedVersion means a dependency does not declare a version.
	FailureUnsupportedVersion FailureKind = "unsupported_version"
	// FailureUnresolvable means a dependency could not be found in any repository.
	FailureUnresolvable FailureKind = "unresolvable"
)

// Failure records a problem encountered while building a closure.
type Failure struct {
	// From is the package whose descriptor declared the failing dependency.
	From coordinate.Coordinate
	// Coordinate is the failing dependency, or From if the package itself failed.
	Coordinate coordinate.Coordinate
	Kind       FailureKind
	Err        error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s (from %s): %s: %v", f.Coordinate, f.From, f.Kind, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Edge is a dependency that survived optional and scope filtering.
type Edge struct {
	From       coordinate.Coordinate
	To         coordinate.Coordinate
	Scope      pom.Scope
	Exclusions Exclusions
}

// Closure is the transitive dependency closure of a root package.
type Closure struct {
	Root *Package
	// Packages holds the root followed by all dependencies ordered by coordinate.
	Packages []*Package
	Edges    []Edge
	Failures []Failure
}

// Contains reports whether the closure includes coord.
func (c *Closure) Contains(coord coordinate.Coordinate) bool {
	return slices.ContainsFunc(c.Packages, func(p *Package) bool { return p.Coordinate() == coord })
}

// Coordinates returns the coordinates of all packages in closure order.
func (c *Closure) Coordinates() []coordinate.Coordinate {
	coords := make([]coordinate.Coordinate, 0, len(c.Packages))
	for _, p := range c.Packages {
		coords = append(coords, p.Coordinate())
	}
	return coords
}

// Err joins all failures, or returns nil for a complete closure.
func (c *Closure) Err() error {
	errs := make([]error, 0, len(c.Failures))
	for _, f := range c.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// node is a package together with its direct dependencies.
type node struct {
	pkg      *Package
	edges    []Edge
	failures []Failure
}

// Flatten builds the transitive closure of root. Only compile and runtime dependencies are
// followed, optional dependencies are skipped, and the exclusions of an edge remove matching
// packages from everything reachable through that edge.
//
// The root must resolve, otherwise ErrNotFound is returned. Every other failure only drops the
// affected package's dependencies or the affected edge and is recorded in Closure.Failures.
func (s *Session) Flatten(ctx context.Context, root coordinate.Coordinate) (*Closure, error) {
	logger := s.logger(ctx).With(slog.String("root", root.String()))

	rootPkg, err := s.Package(ctx, root, "")
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	// one node per coordinate for the duration of this call
	nodes := cache.NewGroup(func(ctx context.Context, coord coordinate.Coordinate) (*node, error) {
		return s.buildNode(ctx, coord), nil
	})

	discovered := map[coordinate.Coordinate]*node{}
	frontier := []coordinate.Coordinate{root}
	for len(frontier) > 0 {
		level := make([]*node, len(frontier))
		eg, egctx := errgroup.WithContext(ctx)
		for i, coord := range frontier {
			eg.Go(func() error {
				n, err := nodes.Do(egctx, coord)
				if err != nil {
					return fmt.Errorf("discover %s: %w", coord, err)
				}
				level[i] = n
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}

		var next []coordinate.Coordinate
		for i, coord := range frontier {
			discovered[coord] = level[i]
		}
		for _, n := range level {
			for _, e := range n.edges {
				if _, ok := discovered[e.To]; !ok && !slices.Contains(next, e.To) {
					next = append(next, e.To)
				}
			}
		}
		frontier = next
	}

	closure := collect(root, rootPkg, discovered)
	for _, f := range closure.Failures {
		metrics.ClosureFailuresTotal.WithLabelValues(string(f.Kind)).Inc()
	}
	logger.InfoContext(ctx, "closure built",
		slog.Int("packages", len(closure.Packages)),
		slog.Int("discovered", len(discovered)),
		slog.Int("failures", len(closure.Failures)))
	return closure, nil
}

// buildNode fetches the descriptor of coord and resolves its direct dependencies.
// It never waits for another node, so dependency cycles cannot block it.
func (s *Session) buildNode(ctx context.Context, coord coordinate.Coordinate) *node {
	logger := s.logger(ctx).With(slog.String("package", coord.String()))
	n := &node{}
	var mu sync.Mutex
	fail := func(target coordinate.Coordinate, kind FailureKind, err error) {
		mu.Lock()
		defer mu.Unlock()
		logger.WarnContext(ctx, "dropping dependency",
			slog.String("dependency", target.String()),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		n.failures = append(n.failures, Failure{From: coord, Coordinate: target, Kind: kind, Err: err})
	}

	pkg, err := s.Package(ctx, coord, "")
	if err != nil {
		fail(coord, FailureUnresolvable, err)
		return n
	}
	n.pkg = pkg

	d, err := s.Descriptor(ctx, coord)
	if err != nil {
		fail(coord, FailureDescriptor, err)
		return n
	}
	project, err := d.Project()
	if err != nil {
		fail(coord, FailureMalformed, err)
		return n
	}
	if project.Name != "" {
		pkg.setName(project.Name)
	}
	deps, err := project.Dependencies()
	if err != nil {
		fail(coord, FailureMalformed, err)
		return n
	}

	edges := make([]*Edge, len(deps))
	var eg errgroup.Group
	for i, dep := range deps {
		if dep.Optional || !dep.Scope.Transitive() {
			continue
		}
		dep = project.ExpandDependency(dep)
		target := coordinate.New(dep.GroupID, dep.ArtifactID, dep.Version, dep.Classifier)
		if dep.Version == "" {
			fail(target, FailureUnsupportedVersion, fmt.Errorf("%w: %s:%s declares no version", ErrUnsupportedVersion, dep.GroupID, dep.ArtifactID))
			continue
		}
		if err := target.Validate(); err != nil {
			fail(target, FailureMalformed, err)
			continue
		}
		exclusions, err := compileExclusions(dep.Exclusions)
		if err != nil {
			fail(target, FailureMalformed, err)
			continue
		}
		eg.Go(func() error {
			if _, err := s.Package(ctx, target, dep.Type); err != nil {
				fail(target, FailureUnresolvable, err)
				return nil
			}
			edges[i] = &Edge{From: coord, To: target, Scope: dep.Scope, Exclusions: exclusions}
			return nil
		})
	}
	_ = eg.Wait()

	for _, e := range edges {
		if e != nil {
			n.edges = append(n.edges, *e)
		}
	}
	return n
}

// collect selects the packages of the closure from the discovered graph: a package belongs to
// the closure if it is reachable from the root along a path on which no edge above it excludes it.
func collect(root coordinate.Coordinate, rootPkg *Package, discovered map[coordinate.Coordinate]*node) *Closure {
	closure := &Closure{Root: rootPkg, Packages: []*Package{rootPkg}}

	included := map[coordinate.Coordinate]bool{root: true}
	var members []coordinate.Coordinate
	for coord, n := range discovered {
		if coord == root || n.pkg == nil {
			continue
		}
		if reachable(root, coord, coord, false, discovered) {
			included[coord] = true
			members = append(members, coord)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].String() < members[j].String() })
	for _, coord := range members {
		closure.Packages = append(closure.Packages, discovered[coord].pkg)
	}

	for _, coord := range append([]coordinate.Coordinate{root}, members...) {
		n := discovered[coord]
		for _, e := range n.edges {
			if included[e.To] {
				closure.Edges = append(closure.Edges, e)
			}
		}
		for _, f := range n.failures {
			// a failing dependency only counts if it would have been part of the closure
			if f.Coordinate == f.From || reachable(root, coord, f.Coordinate, true, discovered) {
				closure.Failures = append(closure.Failures, f)
			}
		}
	}
	return closure
}

// reachable reports whether to is reachable from from on a path that does not exclude subject.
// The exclusions of an edge apply below its target, so the edge that reaches to is only checked
// when through is set, that is when subject is a direct dependency of to.
func reachable(from, to, subject coordinate.Coordinate, through bool, discovered map[coordinate.Coordinate]*node) bool {
	if from == to {
		return true
	}
	visited := map[coordinate.Coordinate]bool{from: true}
	queue := []coordinate.Coordinate{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		n, ok := discovered[current]
		if !ok {
			continue
		}
		for _, e := range n.edges {
			excluded := e.Exclusions.Matches(subject)
			if e.To == to && (!through || !excluded) {
				return true
			}
			if visited[e.To] || excluded {
				continue
			}
			visited[e.To] = true
			queue = append(queue, e.To)
		}
	}
	return false
}
