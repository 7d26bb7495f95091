package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/event"
	"github.com/utafrali/siterank/internal/repository"
	apperrors "github.com/utafrali/siterank/pkg/errors"
	"github.com/utafrali/siterank/pkg/pagination"
)

// SiteService implements the catalog lifecycle operations.
type SiteService struct {
	sites    repository.SiteRepository
	reviews  repository.ReviewRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewSiteService creates a new site service.
func NewSiteService(sites repository.SiteRepository, reviews repository.ReviewRepository, producer *event.Producer, logger *slog.Logger) *SiteService {
	return &SiteService{
		sites:    sites,
		reviews:  reviews,
		producer: producer,
		logger:   logger,
	}
}

// AddSiteInput holds the parameters for adding a site.
type AddSiteInput struct {
	Name        string
	Link        string
	Description string
	Theme       string
	Developer   string
	DeliveredAt *time.Time
}

// AddSite creates a catalog entry. (Name, Link) must be unused.
func (s *SiteService) AddSite(ctx context.Context, input *AddSiteInput) (*domain.Site, error) {
	now := time.Now().UTC()
	site := &domain.Site{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Link:        input.Link,
		Description: input.Description,
		Theme:       input.Theme,
		Developer:   input.Developer,
		DeliveredAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.DeliveredAt != nil {
		site.DeliveredAt = input.DeliveredAt.UTC()
	}
	site.Normalize()

	if err := validateSite(site); err != nil {
		return nil, err
	}
	if err := s.ensureKeyFree(ctx, site.Name, site.Link, ""); err != nil {
		return nil, err
	}

	// The unique constraint still arbitrates concurrent inserts.
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, fmt.Errorf("create site: %w", err)
	}

	if err := s.producer.PublishSiteCreated(ctx, site); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish site.created event",
			slog.String("site_id", site.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "site added",
		slog.String("site_id", site.ID),
		slog.String("name", site.Name),
	)

	return site, nil
}

// UpdateSite merges patch into an existing site and re-validates the result.
func (s *SiteService) UpdateSite(ctx context.Context, id string, patch domain.SitePatch) (*domain.Site, error) {
	current, err := s.sites.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}

	merged := current.Apply(patch)
	if err := validateSite(&merged); err != nil {
		return nil, err
	}

	if merged.Name != current.Name || merged.Link != current.Link {
		if err := s.ensureKeyFree(ctx, merged.Name, merged.Link, merged.ID); err != nil {
			return nil, err
		}
	}

	if err := s.sites.Update(ctx, &merged); err != nil {
		return nil, fmt.Errorf("update site: %w", err)
	}

	if err := s.producer.PublishSiteUpdated(ctx, &merged); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish site.updated event",
			slog.String("site_id", merged.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "site updated", slog.String("site_id", merged.ID))

	return &merged, nil
}

// DeleteSite removes a site together with its reviews.
func (s *SiteService) DeleteSite(ctx context.Context, id string) error {
	if err := s.sites.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete site: %w", err)
	}

	if err := s.producer.PublishSiteDeleted(ctx, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish site.deleted event",
			slog.String("site_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "site deleted", slog.String("site_id", id))

	return nil
}

// ListSites returns one page of the catalog, newest delivery first.
func (s *SiteService) ListSites(ctx context.Context, params pagination.Params) (pagination.Result[domain.Site], error) {
	sites, total, err := s.sites.List(ctx, repository.SiteFilter{
		Limit:  params.PerPage,
		Offset: params.Offset,
	}, repository.SiteOrderDeliveredDesc)
	if err != nil {
		return pagination.Result[domain.Site]{}, fmt.Errorf("list sites: %w", err)
	}
	return pagination.NewResult(sites, total, params), nil
}

// GetSiteDetails returns a site with its reviews, newest first.
func (s *SiteService) GetSiteDetails(ctx context.Context, id string) (*domain.SiteDetails, error) {
	site, err := s.sites.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}

	reviews, err := s.reviews.List(ctx, repository.ReviewFilter{SiteID: &id})
	if err != nil {
		return nil, fmt.Errorf("list reviews of site %s: %w", id, err)
	}

	return &domain.SiteDetails{Site: *site, Reviews: reviews}, nil
}

func (s *SiteService) ensureKeyFree(ctx context.Context, name, link, selfID string) error {
	existing, err := s.sites.FindOne(ctx, name, link)
	switch {
	case err == nil && existing.ID != selfID:
		return apperrors.AlreadyExists("site", "name and link", name+" "+link)
	case err == nil, apperrors.KindOf(err) == apperrors.KindNotFound:
		return nil
	default:
		return fmt.Errorf("find site by key: %w", err)
	}
}

func validateSite(site *domain.Site) error {
	if missing := site.MissingFields(); len(missing) > 0 {
		return apperrors.InvalidInput("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}
