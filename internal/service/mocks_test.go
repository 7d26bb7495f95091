package service

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/event"
	"github.com/utafrali/siterank/internal/repository"
	pkgkafka "github.com/utafrali/siterank/pkg/kafka"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// --- Mock Site Repository ---

type mockSiteRepository struct {
	mock.Mock
}

func (m *mockSiteRepository) List(ctx context.Context, filter repository.SiteFilter, order repository.SiteOrder) ([]domain.Site, int, error) {
	args := m.Called(ctx, filter, order)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Site), args.Int(1), args.Error(2)
}

func (m *mockSiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

func (m *mockSiteRepository) FindOne(ctx context.Context, name, link string) (*domain.Site, error) {
	args := m.Called(ctx, name, link)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Site), args.Error(1)
}

func (m *mockSiteRepository) Create(ctx context.Context, site *domain.Site) error {
	return m.Called(ctx, site).Error(0)
}

func (m *mockSiteRepository) Update(ctx context.Context, site *domain.Site) error {
	return m.Called(ctx, site).Error(0)
}

func (m *mockSiteRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// --- Mock Review Repository ---

type mockReviewRepository struct {
	mock.Mock
}

func (m *mockReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) ([]domain.Review, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Review), args.Error(1)
}

func (m *mockReviewRepository) GetByID(ctx context.Context, id string) (*domain.Review, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Review), args.Error(1)
}

func (m *mockReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	return m.Called(ctx, review).Error(0)
}

func (m *mockReviewRepository) Save(ctx context.Context, review *domain.Review) error {
	return m.Called(ctx, review).Error(0)
}

func (m *mockReviewRepository) Distinct(ctx context.Context, field repository.DistinctField, filter repository.ReviewFilter) ([]string, error) {
	args := m.Called(ctx, field, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockReviewRepository) Count(ctx context.Context, filter repository.ReviewFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *mockReviewRepository) Aggregate(ctx context.Context, key domain.GroupKey) ([]repository.AggregateRow, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.AggregateRow), args.Error(1)
}

// --- Mock User Directory ---

type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) FindByUsernames(ctx context.Context, usernames []string) ([]domain.User, error) {
	args := m.Called(ctx, usernames)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

// --- Recording event publisher ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func newTestProducer(pub *recordingPublisher) *event.Producer {
	return event.NewProducer(pub, newTestLogger())
}
