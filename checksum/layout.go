package checksum

import (
	"path"
	"path/filepath"
	"strings"

	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

// Layout places artifacts below a local repository root the way maven does:
// <root>/<group as path>/<artifact>/<version>/<file name>.
type Layout struct {
	Root string
}

// Path returns the local file of pkg. The file name is taken from the resolved base location, so
// snapshots keep their timestamped name.
func (l Layout) Path(pkg *resolver.Package) string {
	c := pkg.Coordinate()
	parts := append([]string{l.Root}, strings.Split(c.Group, ".")...)
	parts = append(parts, c.Artifact, c.Version, path.Base(pkg.Base())+"."+pkg.Packaging())
	return filepath.Join(parts...)
}

// Sidecar returns the checksum file of pkg for algorithm.
func (l Layout) Sidecar(pkg *resolver.Package, algorithm string) string {
	return l.Path(pkg) + "." + algorithm
}
