// Package storage opens the comment feed backend selected in the config.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"CommentThreads/internal/config"
	"CommentThreads/internal/feed"
	"CommentThreads/internal/storage/memory"
	"CommentThreads/internal/storage/psql"
	"CommentThreads/internal/storage/redisdb"

	"github.com/redis/go-redis/v9"
)

// Feed is a comment feed holding a connection that must be released.
type Feed interface {
	feed.Feed
	Close() error
}

type nopCloser struct {
	feed.Feed
}

func (nopCloser) Close() error { return nil }

func Open(ctx context.Context, cfg config.Storage, log *slog.Logger) (Feed, error) {
	const op = "storage.Open"

	switch cfg.Driver {
	case config.DriverMemory:
		return nopCloser{memory.New(log)}, nil

	case config.DriverRedis:
		s := redisdb.New(redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil

	case config.DriverPostgres:
		s, err := psql.New(cfg.Postgres.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Driver)
}
