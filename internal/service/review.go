package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/event"
	"github.com/utafrali/siterank/internal/repository"
	apperrors "github.com/utafrali/siterank/pkg/errors"
)

// ReviewService implements the review lifecycle rules.
type ReviewService struct {
	sites    repository.SiteRepository
	reviews  repository.ReviewRepository
	producer *event.Producer
	logger   *slog.Logger
}

// NewReviewService creates a new review service.
func NewReviewService(sites repository.SiteRepository, reviews repository.ReviewRepository, producer *event.Producer, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		sites:    sites,
		reviews:  reviews,
		producer: producer,
		logger:   logger,
	}
}

// AddReviewInput holds the parameters for reviewing a site. There is no
// author field: the author is always the caller.
type AddReviewInput struct {
	SiteID  string
	Rating  float64
	Comment string
}

// UpdateReviewInput holds the optional fields of a review update.
type UpdateReviewInput struct {
	// SiteID, when set, must match the site the review belongs to.
	SiteID  string
	Rating  *float64
	Comment *string
}

// AddReview records a review of an existing site by the caller.
func (s *ReviewService) AddReview(ctx context.Context, caller domain.Caller, input *AddReviewInput) (*domain.Review, error) {
	if caller.Identity == "" {
		return nil, apperrors.Unauthorized("caller identity is required")
	}
	if _, err := s.sites.GetByID(ctx, input.SiteID); err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	if !domain.ValidRating(input.Rating) {
		return nil, ratingError()
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:        uuid.New().String(),
		SiteID:    input.SiteID,
		Rating:    input.Rating,
		Comment:   input.Comment,
		Author:    caller.Identity,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// A site deleted since the lookup surfaces here as NotFound.
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	if err := s.producer.PublishReviewCreated(ctx, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.created event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review added",
		slog.String("review_id", review.ID),
		slog.String("site_id", review.SiteID),
		slog.Float64("rating", review.Rating),
	)

	return review, nil
}

// UpdateReview changes the rating and/or comment of the caller's own review.
func (s *ReviewService) UpdateReview(ctx context.Context, caller domain.Caller, reviewID string, input *UpdateReviewInput) (*domain.Review, error) {
	review, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, fmt.Errorf("get review: %w", err)
	}
	if input.SiteID != "" && review.SiteID != input.SiteID {
		return nil, apperrors.NotFound("review", reviewID)
	}

	if review.Author != caller.Identity {
		s.logger.WarnContext(ctx, "review update by non-author rejected",
			slog.String("review_id", reviewID),
			slog.String("caller", caller.Identity),
		)
		return nil, apperrors.Forbidden("only the author can modify this review")
	}

	if input.Rating != nil {
		if !domain.ValidRating(*input.Rating) {
			return nil, ratingError()
		}
		review.Rating = *input.Rating
	}
	if input.Comment != nil {
		review.Comment = *input.Comment
	}
	review.UpdatedAt = time.Now().UTC()

	// Save is guarded on the stored author, so the check above cannot be raced.
	if err := s.reviews.Save(ctx, review); err != nil {
		return nil, fmt.Errorf("save review: %w", err)
	}

	if err := s.producer.PublishReviewUpdated(ctx, review); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish review.updated event",
			slog.String("review_id", review.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "review updated", slog.String("review_id", review.ID))

	return review, nil
}

func ratingError() error {
	return apperrors.InvalidInput(fmt.Sprintf("rating must be between %g and %g", domain.MinRating, domain.MaxRating))
}
