package model

// DBRepo represents a repo row in the SQLite database
type DBRepo struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Tagline     string `db:"tagline"`
	Category    string `db:"category"`
	Stack       string `db:"stack"`        // JSON array
	Stars       int    `db:"stars"`
	LastUpdated int64  `db:"last_updated"` // unix milliseconds
	IsTopPick   bool   `db:"is_top_pick"`
	GithubURL   string `db:"github_url"`
	DeepWikiURL string `db:"deep_wiki_url"`
}

// Schema contains the SQL schema for the database
const Schema = `
CREATE TABLE IF NOT EXISTS repos (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    tagline TEXT NOT NULL,
    category TEXT NOT NULL,
    stack TEXT NOT NULL DEFAULT '[]',
    stars INTEGER NOT NULL DEFAULT 0,
    last_updated INTEGER NOT NULL,
    is_top_pick INTEGER NOT NULL DEFAULT 0,
    github_url TEXT NOT NULL,
    deep_wiki_url TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_repos_category ON repos(category);
CREATE INDEX IF NOT EXISTS idx_repos_stars ON repos(stars);
CREATE INDEX IF NOT EXISTS idx_repos_last_updated ON repos(last_updated);
CREATE INDEX IF NOT EXISTS idx_repos_name ON repos(name);
`
