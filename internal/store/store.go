package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ippclub/repo-catalog/internal/config"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/query"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no record has the requested identifier
var ErrNotFound = errors.New("repo not found")

// RepoStore is the persistence backend for repo records
type RepoStore interface {
	// Insert stores a new record and returns it with its generated identifier
	Insert(ctx context.Context, repo model.Repo) (model.Repo, error)
	// InsertMany stores records independently and returns those that were stored.
	// A failing record does not prevent the others from being stored.
	InsertMany(ctx context.Context, repos []model.Repo) ([]model.Repo, error)
	Find(ctx context.Context, spec query.Spec) ([]model.Repo, error)
	Count(ctx context.Context, filter query.Filter) (int64, error)
	Get(ctx context.Context, id string) (model.Repo, error)
	// Replace overwrites every mutable field and returns the updated record
	Replace(ctx context.Context, id string, repo model.Repo) (model.Repo, error)
	Delete(ctx context.Context, id string) error
	DistinctCategories(ctx context.Context) ([]string, error)
	Close() error
}

// Open creates the store selected by the storage configuration
func Open(ctx context.Context, cfg config.Storage, logger *zap.Logger) (RepoStore, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path, logger)
	case config.DriverMongo:
		return NewMongoStore(ctx, cfg.Mongo, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
