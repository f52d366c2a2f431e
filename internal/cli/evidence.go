package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yokoszn/CreatureGRC/internal/app"
	"github.com/yokoszn/CreatureGRC/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var errVerifyFailed = errors.New("evidence failed verification")

func newEvidenceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Inspect and review stored evidence",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <evidence-id>...",
		Short: "Re-hash stored evidence and compare with the recorded hash",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := cmd.OutOrStdout()
				failed := 0
				for _, id := range args {
					rec, err := a.Evidence.Get(ctx, id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					actual, err := a.Evidence.Verify(ctx, rec.StoragePath, rec.ContentHash)
					switch {
					case err == nil:
						color.New(color.FgGreen).Fprintf(out, "OK       %s %s\n", rec.ID, rec.ContentHash)
					case errors.Is(err, domain.ErrContentMismatch):
						failed++
						color.New(color.FgRed).Fprintf(out, "MISMATCH %s expected %s got %s\n", rec.ID, rec.ContentHash, actual)
					case errors.Is(err, domain.ErrNotFound):
						failed++
						color.New(color.FgRed).Fprintf(out, "MISSING  %s %s\n", rec.ID, rec.StoragePath)
					default:
						return fmt.Errorf("%s: %w", id, err)
					}
				}
				if failed > 0 {
					return fmt.Errorf("%w: %d of %d", errVerifyFailed, failed, len(args))
				}
				return nil
			})
		},
	}

	var status string
	reviewCmd := &cobra.Command{
		Use:   "review <evidence-id>",
		Short: "Approve or reject pending evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rec, err := a.Evidence.Review(ctx, args[0], domain.ReviewStatus(strings.ToLower(status)))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "evidence %s is %s\n", rec.ID, rec.ReviewStatus)
				return nil
			})
		},
	}
	reviewCmd.Flags().StringVar(&status, "status", "approved", "approved or rejected")

	cmd.AddCommand(verifyCmd, reviewCmd)
	return cmd
}
