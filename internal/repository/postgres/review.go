package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/internal/repository"
	"github.com/utafrali/siterank/pkg/database"
	apperrors "github.com/utafrali/siterank/pkg/errors"
)

const reviewColumns = `id, site_id, rating, comment, author, created_at, updated_at`

// distinctColumns whitelists the columns Distinct may select.
var distinctColumns = map[repository.DistinctField]string{
	repository.DistinctAuthor: "author",
	repository.DistinctSite:   "site_id",
}

// groupColumns maps a group key to the (key, label) expressions of Aggregate.
var groupColumns = map[domain.GroupKey][2]string{
	domain.GroupBySite:      {"s.id::text", "s.name"},
	domain.GroupByTheme:     {"s.theme", "s.theme"},
	domain.GroupByDeveloper: {"s.developer", "s.developer"},
}

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// Create inserts a new review. The site reference is checked by the foreign key.
func (r *ReviewRepository) Create(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (` + reviewColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	ctx, end := database.TraceQuery(ctx, "CreateReview", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		rv.ID,
		rv.SiteID,
		rv.Rating,
		rv.Comment,
		rv.Author,
		rv.CreatedAt,
		rv.UpdatedAt,
	)
	if err != nil {
		// A malformed site id can name no site either.
		if database.IsForeignKeyViolation(err) || database.IsInvalidTextRepresentation(err) {
			return apperrors.NotFound("site", rv.SiteID)
		}
		return fmt.Errorf("insert review: %w", err)
	}

	return nil
}

// GetByID retrieves a review by its ID.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReview", query)
	defer func() { end(err) }()

	var rv domain.Review
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&rv.ID,
		&rv.SiteID,
		&rv.Rating,
		&rv.Comment,
		&rv.Author,
		&rv.CreatedAt,
		&rv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || database.IsInvalidTextRepresentation(err) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review: %w", err)
	}

	return &rv, nil
}

// Save writes the mutable fields of a review, guarded on its stored author.
func (r *ReviewRepository) Save(ctx context.Context, rv *domain.Review) (err error) {
	query := `
		UPDATE reviews
		SET rating = $1, comment = $2, updated_at = $3
		WHERE id = $4 AND author = $5`

	ctx, end := database.TraceQuery(ctx, "SaveReview", query)
	defer func() { end(err) }()

	ct, err := r.pool.Exec(ctx, query,
		rv.Rating,
		rv.Comment,
		rv.UpdatedAt,
		rv.ID,
		rv.Author,
	)
	if err != nil {
		if database.IsInvalidTextRepresentation(err) {
			return apperrors.NotFound("review", rv.ID)
		}
		return fmt.Errorf("update review: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", rv.ID)
	}

	return nil
}

// List returns reviews matching the filter, newest first.
func (r *ReviewRepository) List(ctx context.Context, filter repository.ReviewFilter) (_ []domain.Review, err error) {
	whereClause, args := reviewWhere(filter)

	query := fmt.Sprintf(`
		SELECT %s
		FROM reviews
		%s
		ORDER BY created_at DESC, id ASC`,
		reviewColumns, whereClause,
	)

	ctx, end := database.TraceQuery(ctx, "ListReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(
			&rv.ID,
			&rv.SiteID,
			&rv.Rating,
			&rv.Comment,
			&rv.Author,
			&rv.CreatedAt,
			&rv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, nil
}

// Distinct returns the distinct values of field among matching reviews,
// sorted ascending.
func (r *ReviewRepository) Distinct(ctx context.Context, field repository.DistinctField, filter repository.ReviewFilter) (_ []string, err error) {
	column, ok := distinctColumns[field]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported distinct field %q", field))
	}

	whereClause, args := reviewWhere(filter)
	query := fmt.Sprintf(`SELECT DISTINCT %s::text FROM reviews %s ORDER BY 1`, column, whereClause)

	ctx, end := database.TraceQuery(ctx, "DistinctReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("distinct reviews: %w", err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan distinct value: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distinct values: %w", err)
	}

	return values, nil
}

// Count returns the number of reviews matching the filter.
func (r *ReviewRepository) Count(ctx context.Context, filter repository.ReviewFilter) (_ int, err error) {
	whereClause, args := reviewWhere(filter)
	query := `SELECT COUNT(*) FROM reviews ` + whereClause

	ctx, end := database.TraceQuery(ctx, "CountReviews", query)
	defer func() { end(err) }()

	var n int
	if err = r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}

// Aggregate returns the rating sum and count of reviews grouped through
// their site by key. Groups without reviews do not appear.
func (r *ReviewRepository) Aggregate(ctx context.Context, key domain.GroupKey) (_ []repository.AggregateRow, err error) {
	cols, ok := groupColumns[key]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported group key %q", key))
	}

	query := fmt.Sprintf(`
		SELECT %[1]s AS group_key, %[2]s AS group_label, SUM(r.rating), COUNT(*)
		FROM reviews r
		JOIN sites s ON s.id = r.site_id
		GROUP BY %[1]s, %[2]s`,
		cols[0], cols[1],
	)

	ctx, end := database.TraceQuery(ctx, "AggregateReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate reviews by %s: %w", key, err)
	}
	defer rows.Close()

	result := []repository.AggregateRow{}
	for rows.Next() {
		var row repository.AggregateRow
		if err := rows.Scan(&row.Key, &row.Label, &row.RatingSum, &row.ReviewCount); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}

	return result, nil
}

func reviewWhere(filter repository.ReviewFilter) (string, []any) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", argIndex))
		args = append(args, *filter.SiteID)
		argIndex++
	}

	if filter.MinRating != nil {
		conditions = append(conditions, fmt.Sprintf("rating >= $%d", argIndex))
		args = append(args, *filter.MinRating)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
