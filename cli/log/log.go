// Package log builds the logger of the command line tool from the log section of the
// configuration and the logging flags.
package log

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"ocm.software/open-component-model/bindings/go/maven/cli/internal/enum"
	"ocm.software/open-component-model/bindings/go/maven/config"
)

const (
	FlagLevel  = "loglevel"
	FlagFormat = "logformat"
)

// RegisterFlags adds the logging flags. They override the log section of the configuration.
func RegisterFlags(flags *pflag.FlagSet) {
	enum.Var(flags, FlagLevel, config.LogLevels, "set the log level")
	enum.VarP(flags, FlagFormat, "f", config.LogFormats, "set the log format")
}

// ApplyFlags copies the logging flags that were set on the command line into cfg.
func ApplyFlags(flags *pflag.FlagSet, cfg *config.Log) error {
	for name, target := range map[string]*string{
		FlagLevel:  &cfg.Level,
		FlagFormat: &cfg.Format,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := enum.Get(flags, name)
		if err != nil {
			return err
		}
		*target = v
	}
	return nil
}

// New creates a logger writing to w.
func New(w io.Writer, cfg config.Log) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
}

// ParseLevel maps a configured level name to a slog level. Empty means warn.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", name)
	}
}
