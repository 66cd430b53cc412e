package pom

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ocm.software/open-component-model/bindings/go/maven/coordinate"
)

// DefaultType is the packaging of a dependency without a <type>.
const DefaultType = "jar"

// Parent references the parent project of a descriptor.
type Parent struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// Exclusion removes matching artifacts from the closure contributed by a dependency.
// Either part may contain * wildcards.
type Exclusion struct {
	GroupID    string
	ArtifactID string
}

// Dependency is a <dependency> entry of a project descriptor.
type Dependency struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Type       string
	Scope      Scope
	Optional   bool
	Exclusions []Exclusion
}

// Project is a parsed project descriptor.
type Project struct {
	GroupID    string
	ArtifactID string
	Version    string
	Name       string
	Packaging  string
	Parent     *Parent
	Properties map[string]string

	node Node
}

// ParseProject parses an in-memory project descriptor.
func ParseProject(data []byte) (*Project, error) {
	node, err := Root(data, "project")
	if err != nil {
		return nil, err
	}
	return newProject(node)
}

func newProject(node Node) (*Project, error) {
	p := &Project{
		ArtifactID: node.Text("artifactId"),
		Name:       node.Text("name"),
		Packaging:  node.Text("packaging"),
		Properties: map[string]string{},
		node:       node,
	}
	if p.Packaging == "" {
		p.Packaging = DefaultType
	}

	if parent := Last(node.Elements("parent")); parent.Exists() {
		p.Parent = &Parent{
			GroupID:    parent.Text("groupId"),
			ArtifactID: parent.Text("artifactId"),
			Version:    parent.Text("version"),
		}
	}
	p.GroupID = p.inherit("groupId")
	p.Version = p.inherit("version")

	for _, prop := range node.Element("properties").Children() {
		p.Properties[prop.Tag()] = prop.Text("")
	}

	var errs []error
	if p.ArtifactID == "" {
		errs = append(errs, errors.New("missing artifactId"))
	}
	if p.GroupID == "" {
		errs = append(errs, errors.New("missing groupId and no parent groupId"))
	}
	if p.Version == "" {
		errs = append(errs, errors.New("missing version and no parent version"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return p, nil
}

// inherit returns the project level value of name, falling back to the parent's.
// Only the direct parent is consulted.
func (p *Project) inherit(name string) string {
	if v := p.node.Text(name); v != "" {
		return v
	}
	if p.Parent == nil {
		return ""
	}
	switch name {
	case "groupId":
		return p.Parent.GroupID
	case "version":
		return p.Parent.Version
	}
	return ""
}

// Coordinate returns the coordinate the descriptor declares for itself.
func (p *Project) Coordinate() coordinate.Coordinate {
	return coordinate.New(p.GroupID, p.ArtifactID, p.Version, "")
}

// Dependencies returns the raw <dependencies> entries in document order.
// A single entry without groupId or artifactId makes the whole list malformed.
func (p *Project) Dependencies() ([]Dependency, error) {
	nodes := p.node.Elements("dependencies/dependency")
	deps := make([]Dependency, 0, len(nodes))
	for i, n := range nodes {
		d := Dependency{
			GroupID:    n.Text("groupId"),
			ArtifactID: n.Text("artifactId"),
			Version:    n.Text("version"),
			Classifier: n.Text("classifier"),
			Type:       n.Text("type"),
			Scope:      ParseScope(n.Text("scope")),
		}
		if d.GroupID == "" || d.ArtifactID == "" {
			return nil, fmt.Errorf("%w: dependency %d of %s lacks groupId or artifactId", ErrMalformed, i, p.Coordinate())
		}
		if d.Type == "" {
			d.Type = DefaultType
		}
		if optional, err := strconv.ParseBool(n.Text("optional")); err == nil {
			d.Optional = optional
		}
		for _, ex := range n.Elements("exclusions/exclusion") {
			d.Exclusions = append(d.Exclusions, Exclusion{
				GroupID:    ex.Text("groupId"),
				ArtifactID: ex.Text("artifactId"),
			})
		}
		deps = append(deps, d)
	}
	return deps, nil
}

var propertyPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// Expand replaces ${...} references in s with project values and declared properties.
// Expansion is a single pass; values are not expanded again. Unknown references are kept.
func (p *Project) Expand(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return propertyPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		if v, ok := p.builtin(name); ok {
			return v
		}
		if v, ok := p.Properties[name]; ok {
			return v
		}
		return ref
	})
}

func (p *Project) builtin(name string) (string, bool) {
	switch name {
	case "project.groupId", "pom.groupId":
		return p.GroupID, true
	case "project.artifactId", "pom.artifactId":
		return p.ArtifactID, true
	case "project.version", "pom.version":
		return p.Version, true
	case "project.parent.groupId":
		if p.Parent != nil {
			return p.Parent.GroupID, true
		}
	case "project.parent.version":
		if p.Parent != nil {
			return p.Parent.Version, true
		}
	}
	return "", false
}

// ExpandDependency expands property references in the coordinate fields of d.
func (p *Project) ExpandDependency(d Dependency) Dependency {
	d.GroupID = p.Expand(d.GroupID)
	d.ArtifactID = p.Expand(d.ArtifactID)
	d.Version = p.Expand(d.Version)
	d.Classifier = p.Expand(d.Classifier)
	return d
}
