package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/crm/internal/config"
	"github.com/roach88/crm/internal/crm"
	"github.com/roach88/crm/internal/store"
)

// session is one open store plus the settings it was opened with.
type session struct {
	cfg    config.Config
	path   string
	logger *slog.Logger
	store  *store.Store
	db     *crm.DB
}

// loadConfig reads --config and the environment, then applies --db and -v.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// openSession opens (creating and migrating if needed) the configured
// store. Logs go to the command's stderr.
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	path, err := cfg.ResolveDBPath()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve database path", err)
	}

	logger := cfg.NewLogger(cmd.ErrOrStderr())
	st, err := store.Open(commandContext(cmd), path, store.Options{
		Driver: cfg.Driver,
		Logger: logger,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	db, err := crm.New(st)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to bind tables", err)
	}

	return &session{cfg: cfg, path: path, logger: logger, store: st, db: db}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
