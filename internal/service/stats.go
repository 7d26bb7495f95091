package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/siterank/internal/aggregate"
	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/export"
	"github.com/utafrali/siterank/internal/repository"
	apperrors "github.com/utafrali/siterank/pkg/errors"
)

// StatsService computes derived rating statistics on demand. It holds no
// state between calls.
type StatsService struct {
	sites   repository.SiteRepository
	reviews repository.ReviewRepository
	users   repository.UserDirectory
	logger  *slog.Logger
}

// NewStatsService creates a new stats service.
func NewStatsService(sites repository.SiteRepository, reviews repository.ReviewRepository, users repository.UserDirectory, logger *slog.Logger) *StatsService {
	return &StatsService{
		sites:   sites,
		reviews: reviews,
		users:   users,
		logger:  logger,
	}
}

// PerSiteStats returns a stat for every site, best rated first.
func (s *StatsService) PerSiteStats(ctx context.Context) ([]domain.SiteStat, error) {
	sites, tallies, err := s.sitesAndTallies(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.PerSite(sites, tallies), nil
}

// PerThemeStats groups reviews by the theme of their site.
func (s *StatsService) PerThemeStats(ctx context.Context) ([]domain.GroupStat, error) {
	return s.groupStats(ctx, domain.GroupByTheme)
}

// PerDeveloperStats groups reviews by the developer of their site.
func (s *StatsService) PerDeveloperStats(ctx context.Context) ([]domain.GroupStat, error) {
	return s.groupStats(ctx, domain.GroupByDeveloper)
}

// SitesWithComputedStats returns every site with its rating and review count,
// ordered by key.
func (s *StatsService) SitesWithComputedStats(ctx context.Context, key domain.SortKey) ([]domain.SiteWithStats, error) {
	sites, tallies, err := s.sitesAndTallies(ctx)
	if err != nil {
		return nil, err
	}
	return aggregate.WithStats(sites, tallies, key), nil
}

// GlobalStats summarizes the whole rating store.
func (s *StatsService) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	all := repository.ReviewFilter{}

	sitesReviewed, err := s.reviews.Distinct(ctx, repository.DistinctSite, all)
	if err != nil {
		return nil, fmt.Errorf("distinct reviewed sites: %w", err)
	}
	authors, err := s.reviews.Distinct(ctx, repository.DistinctAuthor, all)
	if err != nil {
		return nil, fmt.Errorf("distinct authors: %w", err)
	}
	total, err := s.reviews.Count(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("count reviews: %w", err)
	}
	tallies, err := s.tallies(ctx, domain.GroupBySite)
	if err != nil {
		return nil, err
	}

	return &domain.GlobalStats{
		SitesReviewed:   len(sitesReviewed),
		DistinctAuthors: len(authors),
		TotalReviews:    total,
		AverageRating:   aggregate.Total(tallies).Mean(),
	}, nil
}

// FilterSitesByTheme returns the sites whose theme equals theme, ignoring case.
func (s *StatsService) FilterSitesByTheme(ctx context.Context, theme string) (*domain.SiteFilterResult, error) {
	return s.filterSites(ctx, repository.SiteFilter{Theme: &theme})
}

// FilterSitesByDeveloper returns the sites whose developer equals developer, ignoring case.
func (s *StatsService) FilterSitesByDeveloper(ctx context.Context, developer string) (*domain.SiteFilterResult, error) {
	return s.filterSites(ctx, repository.SiteFilter{Developer: &developer})
}

// HighRatingAuthors returns the directory users who wrote at least one review
// rated threshold or higher, ordered by username.
func (s *StatsService) HighRatingAuthors(ctx context.Context, threshold float64) ([]domain.HighRatingAuthor, error) {
	if !domain.ValidRating(threshold) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("threshold must be between %g and %g", domain.MinRating, domain.MaxRating))
	}

	names, err := s.reviews.Distinct(ctx, repository.DistinctAuthor, repository.ReviewFilter{MinRating: &threshold})
	if err != nil {
		return nil, fmt.Errorf("distinct high rating authors: %w", err)
	}

	users, err := s.users.FindByUsernames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}

	authors := make([]domain.HighRatingAuthor, 0, len(users))
	for _, u := range users {
		authors = append(authors, domain.HighRatingAuthor{
			Username:     u.Username,
			Email:        u.Email,
			RegisteredAt: u.CreatedAt,
		})
	}

	if dropped := len(names) - len(authors); dropped > 0 {
		s.logger.DebugContext(ctx, "authors unknown to the directory dropped",
			slog.Int("dropped", dropped),
		)
	}

	return authors, nil
}

// HighRatingAuthorRows returns HighRatingAuthors in tabular form, header first.
func (s *StatsService) HighRatingAuthorRows(ctx context.Context, threshold float64) ([][]string, error) {
	authors, err := s.HighRatingAuthors(ctx, threshold)
	if err != nil {
		return nil, err
	}
	return export.AuthorRows(authors), nil
}

func (s *StatsService) filterSites(ctx context.Context, filter repository.SiteFilter) (*domain.SiteFilterResult, error) {
	if filter.Theme != nil && strings.TrimSpace(*filter.Theme) == "" ||
		filter.Developer != nil && strings.TrimSpace(*filter.Developer) == "" {
		return nil, apperrors.InvalidInput("filter value is required")
	}

	sites, _, err := s.sites.List(ctx, filter, repository.SiteOrderDeliveredDesc)
	if err != nil {
		return nil, fmt.Errorf("filter sites: %w", err)
	}
	return &domain.SiteFilterResult{Sites: sites, NoMatch: len(sites) == 0}, nil
}

func (s *StatsService) groupStats(ctx context.Context, key domain.GroupKey) ([]domain.GroupStat, error) {
	tallies, err := s.tallies(ctx, key)
	if err != nil {
		return nil, err
	}
	return aggregate.Groups(tallies), nil
}

func (s *StatsService) sitesAndTallies(ctx context.Context) ([]domain.Site, map[string]aggregate.Tally, error) {
	sites, _, err := s.sites.List(ctx, repository.SiteFilter{}, repository.SiteOrderCatalog)
	if err != nil {
		return nil, nil, fmt.Errorf("list sites: %w", err)
	}
	tallies, err := s.tallies(ctx, domain.GroupBySite)
	if err != nil {
		return nil, nil, err
	}
	return sites, tallies, nil
}

func (s *StatsService) tallies(ctx context.Context, key domain.GroupKey) (map[string]aggregate.Tally, error) {
	rows, err := s.reviews.Aggregate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("aggregate reviews by %s: %w", key, err)
	}

	tallies := make(map[string]aggregate.Tally, len(rows))
	for _, r := range rows {
		tallies[r.Key] = tallies[r.Key].Add(aggregate.Tally{Sum: r.RatingSum, Count: r.ReviewCount})
	}
	return tallies, nil
}
