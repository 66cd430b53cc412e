package pom

import "strings"

// Scope is the dependency scope.
type Scope string

const (
	ScopeCompile  Scope = "compile"
	ScopeRuntime  Scope = "runtime"
	ScopeProvided Scope = "provided"
	ScopeTest     Scope = "test"
	ScopeSystem   Scope = "system"
	ScopeImport   Scope = "import"
)

// ParseScope maps a scope name to a Scope. Missing or unknown names are compile scope.
func ParseScope(s string) Scope {
	switch scope := Scope(strings.ToLower(strings.TrimSpace(s))); scope {
	case ScopeCompile, ScopeRuntime, ScopeProvided, ScopeTest, ScopeSystem, ScopeImport:
		return scope
	default:
		return ScopeCompile
	}
}

// Transitive reports whether dependencies of this scope are part of a transitive closure.
func (s Scope) Transitive() bool {
	return s == ScopeCompile || s == ScopeRuntime
}
