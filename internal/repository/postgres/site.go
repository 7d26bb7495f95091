package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/repository"
	"github.com/utafrali/siterank/pkg/database"
	apperrors "github.com/utafrali/siterank/pkg/errors"
)

const siteColumns = `id, name, link, description, theme, developer, delivered_at, created_at, updated_at`

// SiteRepository implements repository.SiteRepository using PostgreSQL.
type SiteRepository struct {
	pool database.DBTX
}

// NewSiteRepository creates a new PostgreSQL-backed site repository.
func NewSiteRepository(pool database.DBTX) *SiteRepository {
	return &SiteRepository{pool: pool}
}

// Create inserts a new site. The (name, link) unique constraint is the
// arbiter for concurrent duplicates.
func (r *SiteRepository) Create(ctx context.Context, s *domain.Site) (err error) {
	query := `
		INSERT INTO sites (` + siteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	ctx, end := database.TraceQuery(ctx, "CreateSite", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		s.ID,
		s.Name,
		s.Link,
		s.Description,
		s.Theme,
		s.Developer,
		s.DeliveredAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("site", "name and link", s.Name+" "+s.Link)
		}
		return fmt.Errorf("insert site: %w", err)
	}

	return nil
}

// GetByID retrieves a site by its ID.
func (r *SiteRepository) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = $1`

	s, err := r.scanSite(ctx, "GetSite", query, id)
	if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidTextRepresentation(err) {
		return nil, apperrors.NotFound("site", id)
	}
	return s, err
}

// FindOne retrieves a site by its (name, link) key.
func (r *SiteRepository) FindOne(ctx context.Context, name, link string) (*domain.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE name = $1 AND link = $2`

	s, err := r.scanSite(ctx, "FindSite", query, name, link)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundMessage(fmt.Sprintf("site %q at %q not found", name, link))
	}
	return s, err
}

// List returns sites matching the filter with the total count.
func (r *SiteRepository) List(ctx context.Context, filter repository.SiteFilter, order repository.SiteOrder) (_ []domain.Site, _ int, err error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Theme != nil {
		conditions = append(conditions, fmt.Sprintf("lower(theme) = lower($%d)", argIndex))
		args = append(args, *filter.Theme)
		argIndex++
	}

	if filter.Developer != nil {
		conditions = append(conditions, fmt.Sprintf("lower(developer) = lower($%d)", argIndex))
		args = append(args, *filter.Developer)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	orderClause := "ORDER BY created_at ASC, id ASC"
	if order == repository.SiteOrderDeliveredDesc {
		orderClause = "ORDER BY delivered_at DESC, id ASC"
	}

	limitClause := ""
	if filter.Limit > 0 {
		limitClause = fmt.Sprintf("LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*) OVER() AS total_count
		FROM sites
		%s
		%s
		%s`,
		siteColumns, whereClause, orderClause, limitClause,
	)

	ctx, end := database.TraceQuery(ctx, "ListSites", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var (
		sites      []domain.Site
		totalCount int
	)

	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.Link,
			&s.Description,
			&s.Theme,
			&s.Developer,
			&s.DeliveredAt,
			&s.CreatedAt,
			&s.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan site row: %w", err)
		}
		sites = append(sites, s)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate site rows: %w", err)
	}

	if sites == nil {
		sites = []domain.Site{}
	}

	return sites, totalCount, nil
}

// Update modifies an existing site.
func (r *SiteRepository) Update(ctx context.Context, s *domain.Site) (err error) {
	s.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE sites
		SET name = $1, link = $2, description = $3, theme = $4, developer = $5,
		    delivered_at = $6, updated_at = $7
		WHERE id = $8`

	ctx, end := database.TraceQuery(ctx, "UpdateSite", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		s.Name,
		s.Link,
		s.Description,
		s.Theme,
		s.Developer,
		s.DeliveredAt,
		s.UpdatedAt,
		s.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("site", "name and link", s.Name+" "+s.Link)
		}
		if database.IsInvalidTextRepresentation(err) {
			return apperrors.NotFound("site", s.ID)
		}
		return fmt.Errorf("update site: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("site", s.ID)
	}

	return nil
}

// Delete removes a site. Its reviews go with it (ON DELETE CASCADE).
func (r *SiteRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM sites WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "DeleteSite", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		if database.IsInvalidTextRepresentation(err) {
			return apperrors.NotFound("site", id)
		}
		return fmt.Errorf("delete site: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("site", id)
	}

	return nil
}

func (r *SiteRepository) scanSite(ctx context.Context, op, query string, args ...any) (_ *domain.Site, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() {
		if errors.Is(err, pgx.ErrNoRows) {
			end(nil)
			return
		}
		end(err)
	}()

	var s domain.Site
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID,
		&s.Name,
		&s.Link,
		&s.Description,
		&s.Theme,
		&s.Developer,
		&s.DeliveredAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan site: %w", err)
	}

	return &s, nil
}
