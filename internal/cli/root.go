// Package cli implements siterankctl, the operator CLI for rating reports.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/utafrali/siterank/internal/config"
	"github.com/utafrali/siterank/internal/service"
	"github.com/utafrali/siterank/pkg/logger"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "csv"}

// Backend is the read side the report commands run against.
type Backend struct {
	Stats *service.StatsService
	Close func()
}

// ConnectFunc opens a Backend for the loaded configuration.
type ConnectFunc func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

// RootOptions holds global flags and the injectable collaborators.
type RootOptions struct {
	Verbose bool
	Format  string

	LoadConfig func() (*config.Config, error)
	Connect    ConnectFunc
}

// NewRootCommand creates the root command wired to the environment
// configuration and PostgreSQL.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{LoadConfig: config.Load, Connect: ConnectPostgres})
}

// NewRootCommandWith creates the root command around opts.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siterankctl",
		Short: "siterank reports",
		Long:  "Query site rating statistics and export report rows from the siterank catalog.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|csv)")

	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewRankedCommand(opts))
	cmd.AddCommand(NewAuthorsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) config() (*config.Config, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logger.NewWithWriter("siterankctl", level, cmd.ErrOrStderr())
}

// withBackend loads config, connects, and runs fn against the backend.
func (o *RootOptions) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *Backend) error) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	b, err := o.Connect(ctx, cfg, o.logger(cmd))
	if err != nil {
		return WrapExitError(ExitUnavailable, "failed to connect", err)
	}
	defer b.Close()

	return fn(ctx, b)
}
