package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"ocm.software/open-component-model/bindings/go/maven/cache/persistent"
	"ocm.software/open-component-model/bindings/go/maven/checksum"
	"ocm.software/open-component-model/bindings/go/maven/cli/log"
	"ocm.software/open-component-model/bindings/go/maven/config"
	"ocm.software/open-component-model/bindings/go/maven/fetch"
	"ocm.software/open-component-model/bindings/go/maven/metrics"
	"ocm.software/open-component-model/bindings/go/maven/repository"
	"ocm.software/open-component-model/bindings/go/maven/resolver"
)

const (
	FlagConfig          = "config"
	FlagRepository      = "repository"
	FlagLocalRepository = "local-repository"
	FlagCacheDB         = "cache-db"
	FlagNoCache         = "no-cache"
	FlagMetricsFile     = "metrics-file"
)

// Environment holds everything the sub commands operate on. It is set up once per invocation.
type Environment struct {
	Config   *config.Config
	Session  *resolver.Session
	Verifier *checksum.Verifier
	// Cache is nil if the persistent cache is disabled.
	Cache *persistent.Cache

	store *persistent.Store
}

// Close releases the persistent cache.
func (e *Environment) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// New creates the root command.
func New() *cobra.Command {
	env := &Environment{}
	root := &cobra.Command{
		Use:   "mvnresolve [sub-command]",
		Short: "Resolve maven artifacts and their dependencies",
		Long: `mvnresolve resolves maven coordinates against a list of repositories, builds
  the transitive dependency closure of an artifact and verifies local copies
  against the checksums published by the repositories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configForCommand(cmd)
			if err != nil {
				return fmt.Errorf("could not retrieve configuration: %w", err)
			}

			logger, err := log.New(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return fmt.Errorf("could not create logger: %w", err)
			}
			slog.SetDefault(logger)
			cmd.SetContext(slogcontext.NewCtx(cmd.Context(), logger))

			return env.setup(cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			var errs []error
			if path := env.Config.Metrics.File; path != "" {
				errs = append(errs, metrics.WriteFile(path))
			}
			errs = append(errs, env.Close())
			return errors.Join(errs...)
		},
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}

	flags := root.PersistentFlags()
	flags.String(FlagConfig, "", "path to the configuration file")
	flags.StringSlice(FlagRepository, nil, "remote repository, in priority order (replaces the configured repositories)")
	flags.String(FlagLocalRepository, "", "local repository directory")
	flags.String(FlagCacheDB, "", "location of the persistent resolution cache")
	flags.Bool(FlagNoCache, false, "disable the persistent resolution cache")
	flags.String(FlagMetricsFile, "", "write resolver metrics in the prometheus text format to this file on exit")
	log.RegisterFlags(flags)

	root.AddCommand(
		newResolveCmd(env),
		newDepsCmd(env),
		newVerifyCmd(env),
		newUpdateCmd(env),
		newCacheCmd(env),
	)
	return root
}

// configForCommand loads the configuration file and applies the flags on top of it.
func configForCommand(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(FlagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed(FlagRepository) {
		if cfg.Repositories, err = cmd.Flags().GetStringSlice(FlagRepository); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed(FlagLocalRepository) {
		if cfg.LocalRepository, err = cmd.Flags().GetString(FlagLocalRepository); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed(FlagCacheDB) {
		if cfg.Cache.Path, err = cmd.Flags().GetString(FlagCacheDB); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed(FlagNoCache) {
		if cfg.Cache.Disabled, err = cmd.Flags().GetBool(FlagNoCache); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed(FlagMetricsFile) {
		if cfg.Metrics.File, err = cmd.Flags().GetString(FlagMetricsFile); err != nil {
			return nil, err
		}
	}
	if err := log.ApplyFlags(cmd.Flags(), &cfg.Log); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (e *Environment) setup(cfg *config.Config) error {
	e.Config = cfg

	repos := repository.NewList(cfg.LocalRepository)
	for _, r := range cfg.Repositories {
		repos.Add(r)
	}

	clientOpts := []fetch.Option{
		fetch.WithTimeouts(cfg.HTTP.DialTimeout.Value(), cfg.HTTP.ResponseHeaderTimeout.Value()),
		fetch.WithUserAgent(cfg.HTTP.UserAgent),
	}
	if cfg.HTTP.MaxRedirects != nil {
		clientOpts = append(clientOpts, fetch.WithMaxRedirects(*cfg.HTTP.MaxRedirects))
	}
	if cfg.HTTP.MaxRetries != nil {
		clientOpts = append(clientOpts, fetch.WithRetries(*cfg.HTTP.MaxRetries, 0, 0))
	}
	client := fetch.NewClient(clientOpts...)

	sessionOpts := []resolver.Option{
		resolver.WithRepositories(repos),
		resolver.WithFetcher(client),
		resolver.WithConcurrency(cfg.Concurrency),
		resolver.WithNegativeTTL(cfg.Cache.NegativeTTL.Value()),
		resolver.WithMetadataCache(cfg.Cache.MetadataSize, cfg.Cache.MetadataTTL.Value()),
	}
	if !cfg.Cache.Disabled {
		store, err := persistent.Open(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("could not open resolution cache: %w", err)
		}
		e.store = store
		e.Cache = persistent.New(store, persistent.WithTTL(cfg.Cache.TTL.Value()))
		sessionOpts = append(sessionOpts, resolver.WithPersistentCache(e.Cache))
	}

	e.Session = resolver.NewSession(sessionOpts...)
	e.Verifier = checksum.NewVerifier(
		checksum.Layout{Root: repos.LocalRoot()},
		client,
		checksum.WithAlgorithm(cfg.Checksum.Algorithm),
		checksum.WithConcurrency(cfg.Concurrency),
	)
	return nil
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	root := New()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

var errCacheDisabled = errors.New("the persistent resolution cache is disabled")
