// Package repository maintains the ordered set of repository base locations that coordinates are
// resolved against.
package repository

import (
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// DefaultLocalDirectory is the directory next to the executable used as local repository when
// no other location is configured.
const DefaultLocalDirectory = "bin"

// DefaultRemotes are registered by NewDefaultList.
var DefaultRemotes = []string{
	"https://repo.maven.apache.org/maven2",
}

// List is an ordered, mutable set of repositories. The local file repository always comes
// first and is recomputed on every call to All, since its location may change at runtime.
type List struct {
	mu        sync.RWMutex
	remotes   []string
	localRoot string
}

// NewList creates a list with the given local root and no remote repositories.
// An empty localRoot selects DefaultLocalRoot.
func NewList(localRoot string) *List {
	return &List{localRoot: localRoot}
}

// NewDefaultList creates a list with the DefaultRemotes registered.
func NewDefaultList(localRoot string) *List {
	l := NewList(localRoot)
	for _, r := range DefaultRemotes {
		l.Add(r)
	}
	return l
}

// Add appends a remote repository. Repositories are de-duplicated by their sanitized form,
// so registering "https://repo/" after "https://repo" is a no-op.
// It reports whether the repository was added.
func (l *List) Add(base string) bool {
	base = Sanitize(base)
	if base == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if slices.Contains(l.remotes, base) {
		return false
	}
	l.remotes = append(l.remotes, base)
	return true
}

// Remotes returns the registered remote repositories in registration order.
func (l *List) Remotes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.remotes)
}

// SetLocalRoot changes the local repository root.
func (l *List) SetLocalRoot(root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localRoot = root
}

// LocalRoot returns the local repository directory.
func (l *List) LocalRoot() string {
	l.mu.RLock()
	root := l.localRoot
	l.mu.RUnlock()

	if root == "" {
		root = DefaultLocalRoot()
	}
	return Sanitize(root)
}

// LocalURL returns the local repository root as file URL.
func (l *List) LocalURL() string {
	root := l.LocalRoot()
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Sanitize((&url.URL{Scheme: "file", Path: filepath.ToSlash(root)}).String())
}

// All returns the repositories ordered by priority: the local file repository followed by the
// remote repositories in registration order.
func (l *List) All() []string {
	remotes := l.Remotes()
	all := make([]string, 0, 1+len(remotes))
	all = append(all, l.LocalURL())
	for _, r := range remotes {
		if !slices.Contains(all, r) {
			all = append(all, r)
		}
	}
	return all
}

// DefaultLocalRoot returns the "bin" directory next to the running executable, falling back to
// the working directory if the executable cannot be determined.
func DefaultLocalRoot() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultLocalDirectory
	}
	return filepath.Join(filepath.Dir(exe), DefaultLocalDirectory)
}

// Sanitize drops trailing slashes.
func Sanitize(base string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/")
}

// IsLocal reports whether the repository is a file repository.
func IsLocal(base string) bool {
	return strings.HasPrefix(base, "file:")
}
