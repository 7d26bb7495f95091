package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	startupAttempts = 3
	backoffBase     = time.Second
	backoffJitter   = 0.25
)

// backoff returns the wait before retry n (0-indexed): 1s, 2s, 4s, each
// spread by ±25%.
func backoff(n int) time.Duration {
	base := backoffBase << max(n, 0)
	spread := float64(base) * backoffJitter * (2*rand.Float64() - 1) // #nosec G404 -- jitter only
	return base + time.Duration(spread)
}

// isTransient reports whether err is a network-level failure worth retrying.
// Errors raised by the server itself (syntax, constraints) are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return false
	}
	var connectErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connectErr), errors.As(err, &netErr):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}

// retryStartup runs fn up to startupAttempts times while it fails with a
// transient error, sleeping with backoff between attempts.
func retryStartup(ctx context.Context, logger *slog.Logger, what string, fn func() error) error {
	var err error
	for attempt := range startupAttempts {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if attempt == startupAttempts-1 {
			break
		}

		wait := backoff(attempt)
		if logger != nil {
			logger.WarnContext(ctx, what+" failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", startupAttempts),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: canceled during retry: %w", what, ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%s after %d attempts: %w", what, startupAttempts, err)
}
