package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/siterank/internal/config"
	"github.com/utafrali/siterank/internal/repository"
	"github.com/utafrali/siterank/internal/repository/postgres"
	"github.com/utafrali/siterank/internal/repository/remote"
	"github.com/utafrali/siterank/internal/service"
	"github.com/utafrali/siterank/pkg/database"
	"github.com/utafrali/siterank/pkg/httpclient"
)

// ConnectPostgres opens a small read pool against the catalog database.
// Migrations are left to the server.
func ConnectPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        2,
		MinConns:        0,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.Connect(ctx, pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	var users repository.UserDirectory = postgres.NewUserRepository(pool)
	if cfg.UserDirectoryURL != "" {
		client := httpclient.NewCircuitBreakerClient(
			httpclient.New(httpclient.DefaultConfig()),
			httpclient.DefaultCircuitBreakerConfig("user-directory-cli"),
			logger,
		)
		users = remote.NewUserDirectory(client, cfg.UserDirectoryURL, logger)
	}

	sites := postgres.NewSiteRepository(pool)
	reviews := postgres.NewReviewRepository(pool)

	return &Backend{
		Stats: service.NewStatsService(sites, reviews, users, logger),
		Close: pool.Close,
	}, nil
}
