// Package cli implements grcctl, the operator command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/config"

	"github.com/spf13/cobra"
)

var (
	openApp      = app.Open
	dialTemporal = app.DialTemporal
	now          = time.Now
)

type rootOptions struct {
	sourcesPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "grcctl",
		Short:         "Operate evidence collection, control testing and audit packages",
		Long:          "Starts compliance workflows on the worker task queue, or runs them in-process with --local.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.sourcesPath, "sources", "", "sources config file (default $SOURCES_CONFIG)")

	root.AddCommand(
		newCollectCmd(opts),
		newTestCmd(opts),
		newPackageCmd(opts),
		newScheduleCmd(opts),
		newControlsCmd(opts),
		newEvidenceCmd(opts),
	)
	return root
}

// Execute runs grcctl and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func (o *rootOptions) config() config.Config {
	cfg := config.FromEnv()
	if o.sourcesPath != "" {
		cfg.SourcesConfig = o.sourcesPath
	}
	return cfg
}

func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, o.config())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD: %w", flag, err)
	}
	return t, nil
}
