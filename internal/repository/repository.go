package repository

import (
	"context"

	"github.com/utafrali/siterank/internal/domain"
)

// SiteFilter defines filter criteria for listing sites. Theme and Developer
// match case-insensitively against the whole stored value.
type SiteFilter struct {
	Theme     *string
	Developer *string
	Limit     int
	Offset    int
}

// SiteOrder selects the ordering of SiteRepository.List.
type SiteOrder int

const (
	// SiteOrderCatalog is the store's natural order (creation order).
	SiteOrderCatalog SiteOrder = iota
	// SiteOrderDeliveredDesc is newest delivery first.
	SiteOrderDeliveredDesc
)

// SiteRepository defines persistence operations for sites.
type SiteRepository interface {
	// List returns sites matching filter, ordered by order, and the total
	// number of matches before Limit/Offset.
	List(ctx context.Context, filter SiteFilter, order SiteOrder) ([]domain.Site, int, error)

	// GetByID returns the site or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Site, error)

	// FindOne looks a site up by its (name, link) key.
	FindOne(ctx context.Context, name, link string) (*domain.Site, error)

	// Create inserts a site. A (name, link) collision yields apperrors.ErrAlreadyExists.
	Create(ctx context.Context, site *domain.Site) error

	// Update replaces the mutable fields of an existing site.
	Update(ctx context.Context, site *domain.Site) error

	// Delete removes a site and its reviews.
	Delete(ctx context.Context, id string) error
}

// ReviewFilter defines filter criteria for reviews.
type ReviewFilter struct {
	SiteID    *string
	MinRating *float64
}

// DistinctField names a review field for Distinct.
type DistinctField string

const (
	DistinctAuthor DistinctField = "author"
	DistinctSite   DistinctField = "site_id"
)

// AggregateRow is one group of a rating aggregate. Label is the site name
// when grouping by site and equals Key otherwise.
type AggregateRow struct {
	Key         string
	Label       string
	RatingSum   float64
	ReviewCount int
}

// ReviewRepository defines persistence operations for reviews.
type ReviewRepository interface {
	// List returns reviews matching filter, newest first.
	List(ctx context.Context, filter ReviewFilter) ([]domain.Review, error)

	// GetByID returns the review or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Review, error)

	// Create inserts a review. A missing site yields apperrors.ErrNotFound.
	Create(ctx context.Context, review *domain.Review) error

	// Save writes rating, comment and updated_at only if the stored author
	// still equals review.Author. Zero affected rows yields apperrors.ErrNotFound.
	Save(ctx context.Context, review *domain.Review) error

	// Distinct returns the distinct values of field among reviews matching filter.
	Distinct(ctx context.Context, field DistinctField, filter ReviewFilter) ([]string, error)

	// Count returns the number of reviews matching filter.
	Count(ctx context.Context, filter ReviewFilter) (int, error)

	// Aggregate groups reviews by key through their site and returns the
	// rating sum and count of every non-empty group.
	Aggregate(ctx context.Context, key domain.GroupKey) ([]AggregateRow, error)
}

// UserDirectory resolves review authors to contact records.
type UserDirectory interface {
	// FindByUsernames returns the users known for the given usernames.
	// Unknown names are silently absent from the result.
	FindByUsernames(ctx context.Context, usernames []string) ([]domain.User, error)
}
