// Package enum provides string flags restricted to a fixed set of values.
package enum

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"
)

type value struct {
	current string
	options []string
}

func (v *value) String() string {
	return v.current
}

func (v *value) Set(s string) error {
	if !slices.Contains(v.options, s) {
		return fmt.Errorf("must be one of %s", strings.Join(v.options, ", "))
	}
	v.current = s
	return nil
}

func (v *value) Type() string {
	return "enum"
}

// Var registers an enum flag. The first option is the default.
func Var(flags *pflag.FlagSet, name string, options []string, usage string) {
	VarP(flags, name, "", options, usage)
}

// VarP is like Var but takes a shorthand.
func VarP(flags *pflag.FlagSet, name, shorthand string, options []string, usage string) {
	flags.VarP(&value{current: options[0], options: options}, name, shorthand,
		fmt.Sprintf("%s (one of %s)", usage, strings.Join(options, ", ")))
}

// Get returns the value of an enum flag.
func Get(flags *pflag.FlagSet, name string) (string, error) {
	f := flags.Lookup(name)
	if f == nil {
		return "", fmt.Errorf("flag %q is not defined", name)
	}
	v, ok := f.Value.(*value)
	if !ok {
		return "", fmt.Errorf("flag %q is not an enum", name)
	}
	return v.current, nil
}
