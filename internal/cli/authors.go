package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/export"
)

// AuthorsOptions holds flags for the authors command.
type AuthorsOptions struct {
	*RootOptions
	Threshold float64
}

// NewAuthorsCommand creates the authors command.
func NewAuthorsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthorsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "authors",
		Short: "Users who wrote at least one review at or above --threshold",
		Long: `List name, email and registration date of every user with a review
rated at or above the threshold.

Examples:
  siterankctl authors
  siterankctl authors --threshold 4.5 --format csv > authors.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				authors, err := b.Stats.HighRatingAuthors(ctx, opts.Threshold)
				if err != nil {
					return operationError("author report failed", err)
				}
				f := opts.formatter(cmd)
				f.VerboseLog("%d authors at or above %g", len(authors), opts.Threshold)
				return f.Render(authors, export.AuthorRows(authors))
			})
		},
	}

	cmd.Flags().Float64Var(&opts.Threshold, "threshold", domain.DefaultHighRatingThreshold, "inclusive rating cut-off")

	return cmd
}
