// Command lifedashctl administers a lifedash database from the terminal:
// schema migrations, provider consent, manual syncs and budget targets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lifedash/internal/cli"
	"lifedash/internal/config"
	applog "lifedash/internal/log"
	"lifedash/internal/storage"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

type rootOptions struct {
	userID   string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lifedashctl",
		Short:         "Administer the lifedash personal dashboard",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.userID, "user", "u", os.Getenv("LIFEDASH_USER_ID"), "user id (default $LIFEDASH_USER_ID)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(migrateCmd(opts))
	cmd.AddCommand(authCmd(opts))
	cmd.AddCommand(syncCmd(opts))
	cmd.AddCommand(budgetCmd(opts))

	return cmd
}

// app is what a subcommand works with once configuration and storage are up.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	repo   *storage.SQLiteRepository
	svc    *cli.Services
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("Failed to close database", applog.FieldError, err)
	}
}

// openApp loads the configuration, lets adjust tweak it and opens storage.
func openApp(opts *rootOptions, adjust func(*config.Config)) (*app, error) {
	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if adjust != nil {
		adjust(cfg)
	}

	logger := cli.SetupLogger(cfg, applog.ComponentCLI)
	repo, err := cli.OpenStorage(cfg)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		svc:    cli.NewServices(cfg, repo, logger),
	}, nil
}

func (o *rootOptions) requireUser() (string, error) {
	if o.userID == "" {
		return "", fmt.Errorf("user id required: pass --user or set LIFEDASH_USER_ID")
	}
	return o.userID, nil
}
