// Package memory provides mutex-guarded in-process implementations of the
// repository contracts. Uniqueness and ownership guards run inside the same
// critical section as the write they protect.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/repository"
	apperrors "github.com/utafrali/siterank/pkg/errors"
)

// Store holds sites, reviews and users behind one lock.
type Store struct {
	mu      sync.RWMutex
	sites   map[string]domain.Site
	reviews map[string]domain.Review
	users   map[string]domain.User
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sites:   make(map[string]domain.Site),
		reviews: make(map[string]domain.Review),
		users:   make(map[string]domain.User),
	}
}

// Sites returns the site repository view of the store.
func (s *Store) Sites() *SiteRepository { return &SiteRepository{store: s} }

// Reviews returns the review repository view of the store.
func (s *Store) Reviews() *ReviewRepository { return &ReviewRepository{store: s} }

// Users returns the user directory view of the store.
func (s *Store) Users() *UserDirectory { return &UserDirectory{store: s} }

// PutUser adds or replaces a directory record.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

// ─────────────────────────────────────────────────────────────────────────────
// Sites
// ─────────────────────────────────────────────────────────────────────────────

// SiteRepository implements repository.SiteRepository.
type SiteRepository struct {
	store *Store
}

// Create inserts a site unless (name, link) is taken.
func (r *SiteRepository) Create(_ context.Context, site *domain.Site) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[site.ID]; ok {
		return apperrors.AlreadyExists("site", "id", site.ID)
	}
	if s.keyTakenLocked(site.Name, site.Link, "") {
		return apperrors.AlreadyExists("site", "name and link", site.Name+" "+site.Link)
	}
	s.sites[site.ID] = *site
	return nil
}

// GetByID returns a copy of the stored site.
func (r *SiteRepository) GetByID(_ context.Context, id string) (*domain.Site, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	site, ok := s.sites[id]
	if !ok {
		return nil, apperrors.NotFound("site", id)
	}
	return &site, nil
}

// FindOne looks a site up by its (name, link) key.
func (r *SiteRepository) FindOne(_ context.Context, name, link string) (*domain.Site, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, site := range s.sites {
		if site.Name == name && site.Link == link {
			return &site, nil
		}
	}
	return nil, apperrors.NotFoundMessage(fmt.Sprintf("site %q at %q not found", name, link))
}

// List returns sites matching filter in the requested order.
func (r *SiteRepository) List(_ context.Context, filter repository.SiteFilter, order repository.SiteOrder) ([]domain.Site, int, error) {
	s := r.store
	s.mu.RLock()
	matched := make([]domain.Site, 0, len(s.sites))
	for _, site := range s.sites {
		if filter.Theme != nil && !strings.EqualFold(site.Theme, *filter.Theme) {
			continue
		}
		if filter.Developer != nil && !strings.EqualFold(site.Developer, *filter.Developer) {
			continue
		}
		matched = append(matched, site)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.Site) int {
		if order == repository.SiteOrderDeliveredDesc {
			if c := b.DeliveredAt.Compare(a.DeliveredAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := len(matched)
	if filter.Limit > 0 {
		start := min(filter.Offset, total)
		end := min(start+filter.Limit, total)
		matched = matched[start:end]
	}
	return matched, total, nil
}

// Update replaces a stored site unless its new key collides with another site.
func (r *SiteRepository) Update(_ context.Context, site *domain.Site) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[site.ID]; !ok {
		return apperrors.NotFound("site", site.ID)
	}
	if s.keyTakenLocked(site.Name, site.Link, site.ID) {
		return apperrors.AlreadyExists("site", "name and link", site.Name+" "+site.Link)
	}
	site.UpdatedAt = time.Now().UTC()
	s.sites[site.ID] = *site
	return nil
}

// Delete removes a site and its reviews.
func (r *SiteRepository) Delete(_ context.Context, id string) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[id]; !ok {
		return apperrors.NotFound("site", id)
	}
	delete(s.sites, id)
	for rid, rv := range s.reviews {
		if rv.SiteID == id {
			delete(s.reviews, rid)
		}
	}
	return nil
}

func (s *Store) keyTakenLocked(name, link, exceptID string) bool {
	for id, site := range s.sites {
		if id != exceptID && site.Name == name && site.Link == link {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Reviews
// ─────────────────────────────────────────────────────────────────────────────

// ReviewRepository implements repository.ReviewRepository.
type ReviewRepository struct {
	store *Store
}

// Create inserts a review for an existing site.
func (r *ReviewRepository) Create(_ context.Context, rv *domain.Review) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sites[rv.SiteID]; !ok {
		return apperrors.NotFound("site", rv.SiteID)
	}
	if _, ok := s.reviews[rv.ID]; ok {
		return apperrors.AlreadyExists("review", "id", rv.ID)
	}
	s.reviews[rv.ID] = *rv
	return nil
}

// GetByID returns a copy of the stored review.
func (r *ReviewRepository) GetByID(_ context.Context, id string) (*domain.Review, error) {
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	rv, ok := s.reviews[id]
	if !ok {
		return nil, apperrors.NotFound("review", id)
	}
	return &rv, nil
}

// Save writes rating, comment and updated_at if the stored author matches.
func (r *ReviewRepository) Save(_ context.Context, rv *domain.Review) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.reviews[rv.ID]
	if !ok || stored.Author != rv.Author {
		return apperrors.NotFound("review", rv.ID)
	}
	stored.Rating = rv.Rating
	stored.Comment = rv.Comment
	stored.UpdatedAt = rv.UpdatedAt
	s.reviews[rv.ID] = stored
	return nil
}

// List returns matching reviews, newest first.
func (r *ReviewRepository) List(_ context.Context, filter repository.ReviewFilter) ([]domain.Review, error) {
	out := r.store.matchReviews(filter)
	slices.SortFunc(out, func(a, b domain.Review) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Distinct returns the sorted distinct values of field among matching reviews.
func (r *ReviewRepository) Distinct(_ context.Context, field repository.DistinctField, filter repository.ReviewFilter) ([]string, error) {
	var pick func(domain.Review) string
	switch field {
	case repository.DistinctAuthor:
		pick = func(rv domain.Review) string { return rv.Author }
	case repository.DistinctSite:
		pick = func(rv domain.Review) string { return rv.SiteID }
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported distinct field %q", field))
	}

	seen := make(map[string]struct{})
	values := []string{}
	for _, rv := range r.store.matchReviews(filter) {
		v := pick(rv)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	slices.Sort(values)
	return values, nil
}

// Count returns the number of matching reviews.
func (r *ReviewRepository) Count(_ context.Context, filter repository.ReviewFilter) (int, error) {
	return len(r.store.matchReviews(filter)), nil
}

// Aggregate groups reviews through their site by key.
func (r *ReviewRepository) Aggregate(_ context.Context, key domain.GroupKey) ([]repository.AggregateRow, error) {
	var group func(domain.Site) (string, string)
	switch key {
	case domain.GroupBySite:
		group = func(site domain.Site) (string, string) { return site.ID, site.Name }
	case domain.GroupByTheme:
		group = func(site domain.Site) (string, string) { return site.Theme, site.Theme }
	case domain.GroupByDeveloper:
		group = func(site domain.Site) (string, string) { return site.Developer, site.Developer }
	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported group key %q", key))
	}

	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	index := make(map[string]int)
	rows := []repository.AggregateRow{}
	for _, rv := range s.reviews {
		site, ok := s.sites[rv.SiteID]
		if !ok {
			continue
		}
		k, label := group(site)
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, repository.AggregateRow{Key: k, Label: label})
		}
		rows[i].RatingSum += rv.Rating
		rows[i].ReviewCount++
	}
	return rows, nil
}

func (s *Store) matchReviews(filter repository.ReviewFilter) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Review{}
	for _, rv := range s.reviews {
		if filter.SiteID != nil && rv.SiteID != *filter.SiteID {
			continue
		}
		if filter.MinRating != nil && rv.Rating < *filter.MinRating {
			continue
		}
		out = append(out, rv)
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

// UserDirectory implements repository.UserDirectory.
type UserDirectory struct {
	store *Store
}

// FindByUsernames returns known users ordered by username.
func (d *UserDirectory) FindByUsernames(_ context.Context, usernames []string) ([]domain.User, error) {
	s := d.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := []domain.User{}
	seen := make(map[string]struct{}, len(usernames))
	for _, name := range usernames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if u, ok := s.users[name]; ok {
			users = append(users, u)
		}
	}
	slices.SortFunc(users, func(a, b domain.User) int { return cmp.Compare(a.Username, b.Username) })
	return users, nil
}

var (
	_ repository.SiteRepository   = (*SiteRepository)(nil)
	_ repository.ReviewRepository = (*ReviewRepository)(nil)
	_ repository.UserDirectory    = (*UserDirectory)(nil)
)
