package resolver

import (
	"fmt"

	"github.com/gobwas/glob"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
	"ocm.software/open-component-model/bindings/go/maven/pom"
)

// Exclusion matches packages by group and artifact. Both parts may use * wildcards; an empty
// part matches everything.
type Exclusion struct {
	Group    string
	Artifact string

	group    glob.Glob
	artifact glob.Glob
}

// NewExclusion compiles an exclusion.
func NewExclusion(group, artifact string) (Exclusion, error) {
	e := Exclusion{Group: group, Artifact: artifact}
	var err error
	if e.group, err = compilePattern(group); err != nil {
		return Exclusion{}, fmt.Errorf("invalid exclusion group %q: %w", group, err)
	}
	if e.artifact, err = compilePattern(artifact); err != nil {
		return Exclusion{}, fmt.Errorf("invalid exclusion artifact %q: %w", artifact, err)
	}
	return e, nil
}

func compilePattern(pattern string) (glob.Glob, error) {
	if pattern == "" {
		pattern = "*"
	}
	return glob.Compile(pattern)
}

// Matches reports whether c is excluded.
func (e Exclusion) Matches(c coordinate.Coordinate) bool {
	if e.group == nil || e.artifact == nil {
		return c.Matches(e.Group, e.Artifact)
	}
	return e.group.Match(c.Group) && e.artifact.Match(c.Artifact)
}

func (e Exclusion) String() string {
	return e.Group + ":" + e.Artifact
}

// Exclusions is the exclusion set of a dependency edge.
type Exclusions []Exclusion

// Matches reports whether any exclusion matches c.
func (es Exclusions) Matches(c coordinate.Coordinate) bool {
	for _, e := range es {
		if e.Matches(c) {
			return true
		}
	}
	return false
}

func compileExclusions(declared []pom.Exclusion) (Exclusions, error) {
	if len(declared) == 0 {
		return nil, nil
	}
	es := make(Exclusions, 0, len(declared))
	for _, d := range declared {
		e, err := NewExclusion(d.GroupID, d.ArtifactID)
		if err != nil {
			return nil, err
		}
		es = append(es, e)
	}
	return es, nil
}
