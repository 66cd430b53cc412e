// Package coordinate contains the identity of a resolvable Maven artifact and a registry that interns
// coordinates for the lifetime of a resolution session.
package coordinate

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// SnapshotSuffix marks a mutable version that is resolved through repository metadata.
	SnapshotSuffix = "-SNAPSHOT"

	separator = ":"
)

// ErrInvalid is returned when a canonical coordinate string cannot be parsed.
var ErrInvalid = errors.New("invalid coordinate")

// Coordinate is the (group, artifact, version, classifier) identity of an artifact.
// Two coordinates are equal if and only if all four fields are equal, so Coordinate can be
// used as a map key directly.
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
}

// New creates a coordinate value. It does not validate the fields.
func New(group, artifact, version, classifier string) Coordinate {
	return Coordinate{
		Group:      group,
		Artifact:   artifact,
		Version:    version,
		Classifier: classifier,
	}
}

// Parse parses the canonical form group:artifact:version[:classifier].
func Parse(s string) (Coordinate, error) {
	parts := strings.Split(s, separator)
	if len(parts) < 3 || len(parts) > 4 {
		return Coordinate{}, fmt.Errorf("%w %q: expected group:artifact:version[:classifier]", ErrInvalid, s)
	}
	c := New(parts[0], parts[1], parts[2], "")
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks that group, artifact and version are set and that no field contains the
// separator of the canonical form.
func (c Coordinate) Validate() error {
	var errs []error
	for _, field := range []struct {
		name, value string
		required    bool
	}{
		{"group", c.Group, true},
		{"artifact", c.Artifact, true},
		{"version", c.Version, true},
		{"classifier", c.Classifier, false},
	} {
		switch {
		case field.required && field.value == "":
			errs = append(errs, fmt.Errorf("%s is required", field.name))
		case strings.Contains(field.value, separator):
			errs = append(errs, fmt.Errorf("%s must not contain %q", field.name, separator))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w %q: %w", ErrInvalid, c.String(), errors.Join(errs...))
	}
	return nil
}

// String returns the canonical form. The classifier segment is always rendered, even when empty.
func (c Coordinate) String() string {
	return strings.Join([]string{c.Group, c.Artifact, c.Version, c.Classifier}, separator)
}

// IsSnapshot reports whether the version is a snapshot version.
func (c Coordinate) IsSnapshot() bool {
	return strings.HasSuffix(c.Version, SnapshotSuffix)
}

// Path returns the repository path fragment /group/as/path/artifact/version/.
func (c Coordinate) Path() string {
	return "/" + strings.ReplaceAll(c.Group, ".", "/") + "/" + c.Artifact + "/" + c.Version + "/"
}

// ClassifierSuffix returns "-classifier", or "" if the coordinate has no classifier.
func (c Coordinate) ClassifierSuffix() string {
	if c.Classifier == "" {
		return ""
	}
	return "-" + c.Classifier
}

// Matches reports whether the coordinate has the given group and artifact.
func (c Coordinate) Matches(group, artifact string) bool {
	return c.Group == group && c.Artifact == artifact
}
