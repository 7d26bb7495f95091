package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/utafrali/siterank/internal/domain"
)

// NewStatsCommand creates the stats command group.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Rating statistics",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sites",
		Short: "Average rating and review count per site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				stats, err := b.Stats.PerSiteStats(ctx)
				if err != nil {
					return operationError("per-site stats failed", err)
				}
				table := [][]string{{"site", "average rating", "reviews"}}
				for _, s := range stats {
					table = append(table, []string{s.SiteName, formatRating(s.AverageRating), strconv.Itoa(s.ReviewCount)})
				}
				return rootOpts.formatter(cmd).Render(stats, table)
			})
		},
	})

	cmd.AddCommand(newGroupStatsCommand(rootOpts, "themes", "theme", func(ctx context.Context, b *Backend) ([]domain.GroupStat, error) {
		return b.Stats.PerThemeStats(ctx)
	}))
	cmd.AddCommand(newGroupStatsCommand(rootOpts, "developers", "developer", func(ctx context.Context, b *Backend) ([]domain.GroupStat, error) {
		return b.Stats.PerDeveloperStats(ctx)
	}))

	cmd.AddCommand(&cobra.Command{
		Use:   "global",
		Short: "Catalog-wide review totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				g, err := b.Stats.GlobalStats(ctx)
				if err != nil {
					return operationError("global stats failed", err)
				}
				table := [][]string{
					{"metric", "value"},
					{"sites reviewed", strconv.Itoa(g.SitesReviewed)},
					{"distinct authors", strconv.Itoa(g.DistinctAuthors)},
					{"total reviews", strconv.Itoa(g.TotalReviews)},
					{"average rating", formatRating(g.AverageRating)},
				}
				return rootOpts.formatter(cmd).Render(g, table)
			})
		},
	})

	return cmd
}

func newGroupStatsCommand(rootOpts *RootOptions, use, column string, load func(context.Context, *Backend) ([]domain.GroupStat, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Average rating and review count per " + column,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				stats, err := load(ctx, b)
				if err != nil {
					return operationError(column+" stats failed", err)
				}
				table := [][]string{{column, "average rating", "reviews"}}
				for _, s := range stats {
					table = append(table, []string{s.Key, formatRating(s.AverageRating), strconv.Itoa(s.ReviewCount)})
				}
				return rootOpts.formatter(cmd).Render(stats, table)
			})
		},
	}
}

// RankedOptions holds flags for the ranked command.
type RankedOptions struct {
	*RootOptions
	Sort string
}

// NewRankedCommand creates the ranked command.
func NewRankedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RankedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ranked",
		Short: "Sites with their computed rating, ordered by --sort",
		Long: `List every site with its average rating and review count.

Examples:
  siterankctl ranked --sort rating
  siterankctl ranked --sort name --format csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key := domain.ParseSortKey(opts.Sort)
			if opts.Sort != "" && key == domain.SortUnspecified {
				return NewExitError(ExitCommandError, "invalid sort "+strconv.Quote(opts.Sort)+": must be rating, reviewCount or name")
			}
			return opts.withBackend(cmd, func(ctx context.Context, b *Backend) error {
				sites, err := b.Stats.SitesWithComputedStats(ctx, key)
				if err != nil {
					return operationError("ranking failed", err)
				}
				table := [][]string{{"name", "theme", "developer", "rating", "reviews"}}
				for _, s := range sites {
					table = append(table, []string{s.Name, s.Theme, s.Developer, formatRating(s.Rating), strconv.Itoa(s.ReviewCount)})
				}
				return opts.formatter(cmd).Render(sites, table)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort key (rating|reviewCount|name); empty keeps catalog order")

	return cmd
}

func formatRating(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
