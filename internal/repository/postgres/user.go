package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/siterank/internal/domain"
	"github.com/utafrali/siterank/pkg/database"
)

// UserRepository reads the local users table. It implements
// repository.UserDirectory.
type UserRepository struct {
	pool database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user directory.
func NewUserRepository(pool database.DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// FindByUsernames returns the users with the given usernames, ordered by
// username. Unknown names are absent from the result.
func (r *UserRepository) FindByUsernames(ctx context.Context, usernames []string) (_ []domain.User, err error) {
	users := []domain.User{}
	if len(usernames) == 0 {
		return users, nil
	}

	query := `
		SELECT id, username, email, created_at
		FROM users
		WHERE username = ANY($1)
		ORDER BY username ASC`

	ctx, end := database.TraceQuery(ctx, "FindUsersByUsername", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, usernames)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}

	return users, nil
}
