package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ippclub/repo-catalog/internal/apperr"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/query"
	"github.com/ippclub/repo-catalog/internal/store"
	"github.com/ippclub/repo-catalog/pkg/reltime"
	"go.uber.org/zap"
)

const notFoundMessage = "Repo not found"

// EmptyBulkMessage rejects a bulk request without candidates
const EmptyBulkMessage = "Request body must be a non-empty array of repo objects"

// ListResult is the response of a list query
type ListResult struct {
	Repos     []model.RepoView `json:"repos"`
	Total     int64            `json:"total"`
	Remaining int64            `json:"remaining"`
}

// RepoService implements the repo catalog operations on top of a store
type RepoService struct {
	store  store.RepoStore
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a RepoService
type Option func(*RepoService)

// WithClock replaces the clock used for defaults and relative times
func WithClock(now func() time.Time) Option {
	return func(s *RepoService) {
		s.now = now
	}
}

// NewRepoService creates a new RepoService instance
func NewRepoService(st store.RepoStore, logger *zap.Logger, opts ...Option) *RepoService {
	s := &RepoService{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a single repo
func (s *RepoService) Create(ctx context.Context, in model.RepoInput) (model.Repo, error) {
	repo := in.Build(s.now())
	if err := repo.Validate(); err != nil {
		return model.Repo{}, err
	}

	created, err := s.store.Insert(ctx, repo)
	if err != nil {
		return model.Repo{}, apperr.Store(err)
	}

	s.logger.Info("repo created", zap.String("id", created.ID), zap.String("name", created.Name))
	return created, nil
}

// CreateBulk stores every candidate with defaults substituted for missing
// fields. Candidates the store rejects are dropped from the result.
func (s *RepoService) CreateBulk(ctx context.Context, inputs []model.RepoInput) ([]model.Repo, error) {
	if len(inputs) == 0 {
		return nil, apperr.Validation(EmptyBulkMessage)
	}

	now := s.now()
	repos := make([]model.Repo, len(inputs))
	for i, in := range inputs {
		repos[i] = in.BuildBulk(now)
	}

	saved, err := s.store.InsertMany(ctx, repos)
	if err != nil {
		return nil, apperr.Store(err)
	}

	if dropped := len(repos) - len(saved); dropped > 0 {
		s.logger.Warn("bulk insert dropped candidates",
			zap.Int("requested", len(repos)),
			zap.Int("dropped", dropped),
		)
	}
	s.logger.Info("bulk insert completed", zap.Int("inserted", len(saved)))
	return saved, nil
}

// List runs a composed query and attaches relative times and counts
func (s *RepoService) List(ctx context.Context, params query.Params) (ListResult, error) {
	spec := query.Compose(params)

	repos, err := s.store.Find(ctx, spec)
	if err != nil {
		return ListResult{}, apperr.Store(err)
	}
	total, err := s.store.Count(ctx, spec.Filter)
	if err != nil {
		return ListResult{}, apperr.Store(err)
	}

	now := s.now()
	views := make([]model.RepoView, 0, len(repos))
	for _, repo := range repos {
		views = append(views, s.view(repo, now))
	}

	return ListResult{
		Repos:     views,
		Total:     total,
		Remaining: remaining(total, spec.Limit, len(repos)),
	}, nil
}

// remaining is total minus the requested limit, or minus the returned count
// when no limit was requested, never below zero. A requested limit of 0
// subtracts nothing.
func remaining(total int64, limit query.Limit, returned int) int64 {
	consumed := int64(returned)
	if n, ok := limit.Requested(); ok {
		consumed = int64(n)
	}
	if rest := total - consumed; rest > 0 {
		return rest
	}
	return 0
}

// Get returns a repo by identifier
func (s *RepoService) Get(ctx context.Context, id string) (model.RepoView, error) {
	repo, err := s.store.Get(ctx, id)
	if err != nil {
		return model.RepoView{}, s.storeError(err)
	}
	return s.view(repo, s.now()), nil
}

// Update replaces every mutable field of a repo
func (s *RepoService) Update(ctx context.Context, id string, in model.RepoInput) (model.Repo, error) {
	repo := in.Build(s.now())
	if err := repo.Validate(); err != nil {
		return model.Repo{}, err
	}

	updated, err := s.store.Replace(ctx, id, repo)
	if err != nil {
		return model.Repo{}, s.storeError(err)
	}

	s.logger.Info("repo updated", zap.String("id", id))
	return updated, nil
}

// Delete removes a repo by identifier
func (s *RepoService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return s.storeError(err)
	}
	s.logger.Info("repo deleted", zap.String("id", id))
	return nil
}

// Categories returns "All" followed by the sorted distinct categories
func (s *RepoService) Categories(ctx context.Context) ([]string, error) {
	distinct, err := s.store.DistinctCategories(ctx)
	if err != nil {
		return nil, apperr.Store(err)
	}

	categories := make([]string, 0, len(distinct)+1)
	for _, c := range distinct {
		if c != query.AllCategories {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return append([]string{query.AllCategories}, categories...), nil
}

func (s *RepoService) view(repo model.Repo, now time.Time) model.RepoView {
	return model.RepoView{
		Repo:                repo,
		LastUpdatedRelative: reltime.Format(repo.LastUpdated, now),
	}
}

func (s *RepoService) storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(notFoundMessage)
	}
	return apperr.Store(err)
}
