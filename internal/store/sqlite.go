package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/query"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const repoColumns = `id, name, tagline, category, stack, stars, last_updated, is_top_pick, github_url, deep_wiki_url`

// sqliteDriver is go-sqlite3 with a fold() function that lowercases the full Unicode range.
// The built-in LOWER() only folds ASCII.
const sqliteDriver = "sqlite3_fold"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("fold", fold, true)
		},
	})
}

// fold is the case folding applied to both sides of a search
func fold(s string) string {
	return strings.ToLower(s)
}

// SQLiteStore implements RepoStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(dataPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "repo-catalog.db")
	db, err := sql.Open(sqliteDriver, dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(model.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Insert inserts a new repo record
func (s *SQLiteStore) Insert(ctx context.Context, repo model.Repo) (model.Repo, error) {
	row, err := toRow(repo)
	if err != nil {
		return model.Repo{}, err
	}
	row.ID = uuid.NewString()

	stmt := `INSERT INTO repos (` + repoColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		row.ID,
		row.Name,
		row.Tagline,
		row.Category,
		row.Stack,
		row.Stars,
		row.LastUpdated,
		row.IsTopPick,
		row.GithubURL,
		row.DeepWikiURL,
	)
	if err != nil {
		return model.Repo{}, fmt.Errorf("failed to insert repo: %w", err)
	}

	return fromRow(row)
}

// InsertMany inserts each record on its own, skipping the ones that fail
func (s *SQLiteStore) InsertMany(ctx context.Context, repos []model.Repo) ([]model.Repo, error) {
	saved := make([]model.Repo, 0, len(repos))
	for i, repo := range repos {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		created, err := s.Insert(ctx, repo)
		if err != nil {
			s.logger.Warn("skipping bulk candidate",
				zap.Int("index", i),
				zap.String("name", repo.Name),
				zap.Error(err),
			)
			continue
		}
		saved = append(saved, created)
	}
	return saved, nil
}

// Find returns the records matching the spec, sorted and capped
func (s *SQLiteStore) Find(ctx context.Context, spec query.Spec) ([]model.Repo, error) {
	where, args := sqliteWhere(spec.Filter)
	q := `SELECT ` + repoColumns + ` FROM repos` + where + ` ORDER BY ` + sqliteOrderBy(spec.Sort)
	if n, ok := spec.Limit.Cap(); ok {
		q += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query repos: %w", err)
	}
	defer rows.Close()

	repos := make([]model.Repo, 0)
	for rows.Next() {
		repo, err := scanRepo(rows)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate repos: %w", err)
	}

	return repos, nil
}

// Count returns the number of records matching the filter
func (s *SQLiteStore) Count(ctx context.Context, filter query.Filter) (int64, error) {
	where, args := sqliteWhere(filter)
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM repos`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count repos: %w", err)
	}
	return count, nil
}

// Get gets a repo by identifier
func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Repo, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repoColumns+` FROM repos WHERE id = ?`, id)
	repo, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Repo{}, ErrNotFound
	}
	if err != nil {
		return model.Repo{}, err
	}
	return repo, nil
}

// Replace overwrites all mutable fields of a repo
func (s *SQLiteStore) Replace(ctx context.Context, id string, repo model.Repo) (model.Repo, error) {
	row, err := toRow(repo)
	if err != nil {
		return model.Repo{}, err
	}

	stmt := `
		UPDATE repos SET
			name = ?,
			tagline = ?,
			category = ?,
			stack = ?,
			stars = ?,
			last_updated = ?,
			is_top_pick = ?,
			github_url = ?,
			deep_wiki_url = ?
		WHERE id = ?
		RETURNING ` + repoColumns

	updated, err := scanRepo(s.db.QueryRowContext(ctx, stmt,
		row.Name,
		row.Tagline,
		row.Category,
		row.Stack,
		row.Stars,
		row.LastUpdated,
		row.IsTopPick,
		row.GithubURL,
		row.DeepWikiURL,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Repo{}, ErrNotFound
	}
	if err != nil {
		return model.Repo{}, err
	}
	return updated, nil
}

// Delete removes a repo by identifier
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete repo: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DistinctCategories returns every category in use, unordered
func (s *SQLiteStore) DistinctCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM repos`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]string, 0)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// sqliteWhere renders a filter as a WHERE clause with positional arguments
func sqliteWhere(filter query.Filter) (string, []any) {
	if filter.Empty() {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)
	for _, c := range filter.Clauses {
		switch c := c.(type) {
		case query.CategoryEquals:
			conds = append(conds, "category = ?")
			args = append(args, c.Category)
		case query.TopPickEquals:
			conds = append(conds, "is_top_pick = ?")
			args = append(args, c.TopPick)
		case query.TextSearch:
			pattern := likePattern(c.Text)
			conds = append(conds, `(fold(name) LIKE ? ESCAPE '\'`+
				` OR fold(tagline) LIKE ? ESCAPE '\'`+
				` OR fold(category) LIKE ? ESCAPE '\'`+
				` OR EXISTS (SELECT 1 FROM json_each(repos.stack) WHERE fold(json_each.value) LIKE ? ESCAPE '\'))`)
			args = append(args, pattern, pattern, pattern, pattern)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// sqliteOrderBy renders a sort order; rowid keeps ties in insertion order
func sqliteOrderBy(sort query.Sort) string {
	column := "last_updated"
	switch sort.Field {
	case query.FieldStars:
		column = "stars"
	case query.FieldName:
		column = "name"
	}
	if sort.Descending {
		return column + " DESC, rowid ASC"
	}
	return column + " ASC, rowid ASC"
}

// likePattern builds a case-folded substring pattern matching text literally
func likePattern(text string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(fold(text))
	return "%" + escaped + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRepo(r rowScanner) (model.Repo, error) {
	row := model.DBRepo{}
	err := r.Scan(
		&row.ID,
		&row.Name,
		&row.Tagline,
		&row.Category,
		&row.Stack,
		&row.Stars,
		&row.LastUpdated,
		&row.IsTopPick,
		&row.GithubURL,
		&row.DeepWikiURL,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Repo{}, err
	}
	if err != nil {
		return model.Repo{}, fmt.Errorf("failed to scan repo: %w", err)
	}
	return fromRow(row)
}

func toRow(repo model.Repo) (model.DBRepo, error) {
	stack := repo.Stack
	if stack == nil {
		stack = []string{}
	}
	data, err := json.Marshal(stack)
	if err != nil {
		return model.DBRepo{}, fmt.Errorf("failed to encode stack: %w", err)
	}
	return model.DBRepo{
		ID:          repo.ID,
		Name:        repo.Name,
		Tagline:     repo.Tagline,
		Category:    repo.Category,
		Stack:       string(data),
		Stars:       repo.Stars,
		LastUpdated: repo.LastUpdated.UnixMilli(),
		IsTopPick:   repo.IsTopPick,
		GithubURL:   repo.GithubURL,
		DeepWikiURL: repo.DeepWikiURL,
	}, nil
}

func fromRow(row model.DBRepo) (model.Repo, error) {
	stack := []string{}
	if row.Stack != "" {
		if err := json.Unmarshal([]byte(row.Stack), &stack); err != nil {
			return model.Repo{}, fmt.Errorf("failed to decode stack of repo %s: %w", row.ID, err)
		}
	}
	return model.Repo{
		ID:          row.ID,
		Name:        row.Name,
		Tagline:     row.Tagline,
		Category:    row.Category,
		Stack:       stack,
		Stars:       row.Stars,
		LastUpdated: time.UnixMilli(row.LastUpdated).UTC(),
		IsTopPick:   row.IsTopPick,
		GithubURL:   row.GithubURL,
		DeepWikiURL: row.DeepWikiURL,
	}, nil
}
