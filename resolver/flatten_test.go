package resolver_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

func coord(artifact string) coordinate.Coordinate {
	return coordinate.New("org.example", artifact, "1.0", "")
}

func TestFlatten_ScopesAndOptional(t *testing.T) {
	repo := newFakeRepository()
	a, b, c, d, e, f, g := coord("a"), coord("b"), coord("c"), coord("d"), coord("e"), coord("f"), coord("g")

	withScope := func(x coordinate.Coordinate, scope string) dependency {
		dd := dep(x)
		dd.scope = scope
		return dd
	}
	optional := dep(f)
	optional.optional = true

	repo.publish(a, projectXML(a, "",
		dep(b),
		withScope(c, "runtime"),
		withScope(d, "test"),
		withScope(e, "provided"),
		optional,
	))
	repo.publish(b, projectXML(b, "", dep(g)))
	for _, x := range []coordinate.Coordinate{c, d, e, f, g} {
		repo.publish(x, projectXML(x, ""))
	}

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	require.NoError(t, closure.Err())

	assert.Equal(t, []coordinate.Coordinate{a, b, c, g}, closure.Coordinates())
	assert.Equal(t, a, closure.Root.Coordinate())
	assert.Len(t, closure.Edges, 3)
	for _, skipped := range []coordinate.Coordinate{d, e, f} {
		assert.False(t, closure.Contains(skipped), skipped.String())
		assert.Zero(t, repo.count(remote+skipped.Path()+skipped.Artifact+"-1.0.pom"), "filtered dependencies are never resolved")
	}
}

func TestFlatten_Exclusions(t *testing.T) {
	repo := newFakeRepository()
	a, b, c, x, y := coord("a"), coord("b"), coord("c"), coord("x"), coord("y")

	excludeX := dep(b)
	excludeX.exclusions = [][2]string{{"org.example", "x"}}
	excludeAll := dep(c)
	excludeAll.exclusions = [][2]string{{"*", "*"}}

	repo.publish(a, projectXML(a, "", excludeX, excludeAll))
	repo.publish(b, projectXML(b, "", dep(x), dep(y)))
	repo.publish(c, projectXML(c, "", dep(y)))
	repo.publish(x, projectXML(x, ""))
	repo.publish(y, projectXML(y, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a, b, c, y}, closure.Coordinates(),
		"x is excluded below b, y is still reachable through b")
}

func TestFlatten_ExclusionKeepsItsOwnTarget(t *testing.T) {
	repo := newFakeRepository()
	a, b, c, d := coord("a"), coord("b"), coord("c"), coord("d")

	selfExcluding := dep(b)
	selfExcluding.exclusions = [][2]string{{"org.example", "b"}, {"*", "c"}}

	repo.publish(a, projectXML(a, "", selfExcluding))
	repo.publish(b, projectXML(b, "", dep(c), dep(d)))
	repo.publish(c, projectXML(c, ""))
	repo.publish(d, projectXML(d, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a, b, d}, closure.Coordinates(),
		"exclusions filter what b pulls in, never b itself")
}

func TestFlatten_ExclusionOnlyAppliesToItsPath(t *testing.T) {
	repo := newFakeRepository()
	a, b, c, x := coord("a"), coord("b"), coord("c"), coord("x")

	excludeX := dep(b)
	excludeX.exclusions = [][2]string{{"org.example", "x"}}

	repo.publish(a, projectXML(a, "", excludeX, dep(c)))
	repo.publish(b, projectXML(b, "", dep(x)))
	repo.publish(c, projectXML(c, "", dep(x)))
	repo.publish(x, projectXML(x, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.True(t, closure.Contains(x))
}

func TestFlatten_UnresolvableDependency(t *testing.T) {
	repo := newFakeRepository()
	a, b, c, d, missing := coord("a"), coord("b"), coord("c"), coord("d"), coord("missing")
	repo.publish(a, projectXML(a, "", dep(b), dep(missing), dep(c)))
	repo.publish(b, projectXML(b, ""))
	repo.publish(c, projectXML(c, "", dep(d)))
	repo.publish(d, projectXML(d, ""))

	before := testutil.ToFloat64(metrics.ClosureFailuresTotal.WithLabelValues(string(resolver.FailureUnresolvable)))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, a, closure.Root.Coordinate())
	assert.ElementsMatch(t, []coordinate.Coordinate{a, b, c, d}, closure.Coordinates())
	assert.False(t, closure.Contains(missing))

	require.Len(t, closure.Failures, 1)
	failure := closure.Failures[0]
	assert.Equal(t, a, failure.From)
	assert.Equal(t, missing, failure.Coordinate)
	assert.Equal(t, resolver.FailureUnresolvable, failure.Kind)
	assert.ErrorIs(t, failure.Err, resolver.ErrNotFound)
	assert.ErrorIs(t, closure.Err(), resolver.ErrNotFound)

	after := testutil.ToFloat64(metrics.ClosureFailuresTotal.WithLabelValues(string(resolver.FailureUnresolvable)))
	assert.Equal(t, before+1, after)
}

func TestFlatten_Cycle(t *testing.T) {
	repo := newFakeRepository()
	a, b, c := coord("a"), coord("b"), coord("c")
	repo.publish(a, projectXML(a, "", dep(b)))
	repo.publish(b, projectXML(b, "", dep(c)))
	repo.publish(c, projectXML(c, "", dep(b), dep(a)))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a, b, c}, closure.Coordinates())
	assert.Len(t, closure.Edges, 4)
}

func TestFlatten_PropertyExpansion(t *testing.T) {
	repo := newFakeRepository()
	a := coord("a")
	lib := coordinate.New("org.example", "lib", "2.1", "")
	sibling := coordinate.New("org.example", "sibling", "1.0", "")

	repo.publish(a, projectXML(a, "<properties><lib.version>2.1</lib.version></properties>",
		dependency{group: "${project.groupId}", artifact: "lib", version: "${lib.version}"},
		dependency{group: "org.example", artifact: "sibling", version: "${project.version}"},
	))
	repo.publish(lib, projectXML(lib, ""))
	repo.publish(sibling, projectXML(sibling, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	require.NoError(t, closure.Err())
	assert.Equal(t, []coordinate.Coordinate{a, lib, sibling}, closure.Coordinates())
}

func TestFlatten_MissingVersion(t *testing.T) {
	repo := newFakeRepository()
	a, b := coord("a"), coord("b")
	repo.publish(a, projectXML(a, "", dep(b), dependency{group: "org.example", artifact: "managed"}))
	repo.publish(b, projectXML(b, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a, b}, closure.Coordinates())
	require.Len(t, closure.Failures, 1)
	assert.Equal(t, resolver.FailureUnsupportedVersion, closure.Failures[0].Kind)
	assert.ErrorIs(t, closure.Failures[0].Err, resolver.ErrUnsupportedVersion)
}

func TestFlatten_MalformedDependencyEntry(t *testing.T) {
	repo := newFakeRepository()
	a, b := coord("a"), coord("b")
	repo.publish(a, projectXML(a, "", dep(b), dependency{artifact: "nogroup", version: "1.0"}))
	repo.publish(b, projectXML(b, ""))

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a}, closure.Coordinates())
	require.Len(t, closure.Failures, 1)
	assert.Equal(t, resolver.FailureMalformed, closure.Failures[0].Kind)
	assert.Equal(t, a, closure.Failures[0].Coordinate)
}

func TestFlatten_MalformedRootDescriptor(t *testing.T) {
	repo := newFakeRepository()
	a := coord("a")
	repo.publish(a, "<project><groupId>")

	s := newSession(t, repo)
	closure, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, []coordinate.Coordinate{a}, closure.Coordinates())
	require.Len(t, closure.Failures, 1)
	assert.Equal(t, resolver.FailureMalformed, closure.Failures[0].Kind)
}

func TestFlatten_RootNotFound(t *testing.T) {
	s := newSession(t, newFakeRepository())
	_, err := s.Flatten(t.Context(), coord("missing"))
	require.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestFlatten_DescriptorsAreSharedAcrossCalls(t *testing.T) {
	repo := newFakeRepository()
	a, b := coord("a"), coord("b")
	baseA := repo.publish(a, projectXML(a, "<name>Library A</name>", dep(b)))
	baseB := repo.publish(b, projectXML(b, ""))

	s := newSession(t, repo)
	first, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)
	second, err := s.Flatten(t.Context(), a)
	require.NoError(t, err)

	assert.Equal(t, first.Coordinates(), second.Coordinates())
	assert.Same(t, first.Root, second.Root)
	assert.Equal(t, 1, repo.count(baseA+".pom"))
	assert.Equal(t, 1, repo.count(baseB+".pom"))

	assert.Equal(t, "Library A", first.Root.Name())
	assert.Equal(t, b.String(), first.Packages[1].Name())
}
