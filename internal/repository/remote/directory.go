// Package remote resolves users through an external user directory over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/utafrali/siterank/internal/domain"
	apperrors "github.com/utafrali/siterank/pkg/errors"
	"github.com/utafrali/siterank/pkg/httpclient"
)

const serviceName = "user directory"

// maxBatch bounds the number of usernames sent in one lookup request.
const maxBatch = 100

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// UserDirectory implements repository.UserDirectory against
// GET {baseURL}/api/v1/users?username=a&username=b.
type UserDirectory struct {
	client  HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewUserDirectory creates a directory client.
func NewUserDirectory(client HTTPDoer, baseURL string, logger *slog.Logger) *UserDirectory {
	return &UserDirectory{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type userPayload struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type lookupResponse struct {
	Data []userPayload `json:"data"`
}

// FindByUsernames returns the users the directory knows, ordered by username.
// Transport failures and an open circuit surface as apperrors.ErrServiceUnavail.
func (d *UserDirectory) FindByUsernames(ctx context.Context, usernames []string) ([]domain.User, error) {
	users := []domain.User{}
	for batch := range slices.Chunk(usernames, maxBatch) {
		found, err := d.lookup(ctx, batch)
		if err != nil {
			return nil, err
		}
		users = append(users, found...)
	}

	slices.SortFunc(users, func(a, b domain.User) int { return strings.Compare(a.Username, b.Username) })
	return slices.CompactFunc(users, func(a, b domain.User) bool { return a.Username == b.Username }), nil
}

func (d *UserDirectory) lookup(ctx context.Context, usernames []string) ([]domain.User, error) {
	q := url.Values{}
	for _, u := range usernames {
		q.Add("username", u)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/v1/users?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create user lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		d.logger.WarnContext(ctx, "user directory call failed",
			slog.Int("usernames", len(usernames)),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Unavailable(serviceName, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer resp.Body.Close()

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode user lookup response: %w", err)
	}

	wanted := make(map[string]struct{}, len(usernames))
	for _, u := range usernames {
		wanted[u] = struct{}{}
	}

	users := make([]domain.User, 0, len(body.Data))
	for _, p := range body.Data {
		if _, ok := wanted[p.Username]; !ok {
			continue
		}
		users = append(users, domain.User{
			ID:        p.ID,
			Username:  p.Username,
			Email:     p.Email,
			CreatedAt: p.CreatedAt,
		})
	}
	return users, nil
}
