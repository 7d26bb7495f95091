package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/siterank/internal/domain"
	pkgkafka "github.com/utafrali/siterank/pkg/kafka"
	"github.com/utafrali/siterank/pkg/logger"
)

// Kafka topics for catalog domain events.
var (
	TopicSiteCreated   = pkgkafka.Topic("site", "created")
	TopicSiteUpdated   = pkgkafka.Topic("site", "updated")
	TopicSiteDeleted   = pkgkafka.Topic("site", "deleted")
	TopicReviewCreated = pkgkafka.Topic("review", "created")
	TopicReviewUpdated = pkgkafka.Topic("review", "updated")
)

// Aggregate type constants.
const (
	AggregateTypeSite   = "site"
	AggregateTypeReview = "review"
)

// SourceSiteRank identifies events originating from this service.
const SourceSiteRank = "siterank"

// SiteData is the payload of site.created and site.updated events.
type SiteData struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Link        string `json:"link"`
	Theme       string `json:"theme"`
	Developer   string `json:"developer"`
	DeliveredAt string `json:"delivered_at"`
}

// SiteDeletedData is the payload of a site.deleted event.
type SiteDeletedData struct {
	ID string `json:"id"`
}

// ReviewData is the payload of review.created and review.updated events.
type ReviewData struct {
	ID     string  `json:"id"`
	SiteID string  `json:"site_id"`
	Rating float64 `json:"rating"`
	Author string  `json:"author"`
}

// Publisher sends an event envelope to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes siterank domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer. A nil publisher disables
// publishing, which the report CLI relies on.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSiteCreated publishes a site.created event.
func (p *Producer) PublishSiteCreated(ctx context.Context, site *domain.Site) error {
	return p.publish(ctx, TopicSiteCreated, site.ID, AggregateTypeSite, siteData(site))
}

// PublishSiteUpdated publishes a site.updated event.
func (p *Producer) PublishSiteUpdated(ctx context.Context, site *domain.Site) error {
	return p.publish(ctx, TopicSiteUpdated, site.ID, AggregateTypeSite, siteData(site))
}

// PublishSiteDeleted publishes a site.deleted event.
func (p *Producer) PublishSiteDeleted(ctx context.Context, id string) error {
	return p.publish(ctx, TopicSiteDeleted, id, AggregateTypeSite, SiteDeletedData{ID: id})
}

// PublishReviewCreated publishes a review.created event keyed by the site, so
// every event of one site lands on the same partition.
func (p *Producer) PublishReviewCreated(ctx context.Context, review *domain.Review) error {
	return p.publish(ctx, TopicReviewCreated, review.SiteID, AggregateTypeReview, reviewData(review))
}

// PublishReviewUpdated publishes a review.updated event.
func (p *Producer) PublishReviewUpdated(ctx context.Context, review *domain.Review) error {
	return p.publish(ctx, TopicReviewUpdated, review.SiteID, AggregateTypeReview, reviewData(review))
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	if p.kafka == nil {
		return nil
	}

	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, SourceSiteRank, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}

func siteData(s *domain.Site) SiteData {
	return SiteData{
		ID:          s.ID,
		Name:        s.Name,
		Link:        s.Link,
		Theme:       s.Theme,
		Developer:   s.Developer,
		DeliveredAt: s.DeliveredAt.UTC().Format(time.RFC3339),
	}
}

func reviewData(r *domain.Review) ReviewData {
	return ReviewData{
		ID:     r.ID,
		SiteID: r.SiteID,
		Rating: r.Rating,
		Author: r.Author,
	}
}
