package model

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ippclub/repo-catalog/internal/apperr"
)

// DefaultCategory is assigned to bulk candidates that carry no category
const DefaultCategory = "Miscellaneous"

// Repo is a stored repo metadata record
type Repo struct {
	ID          string    `json:"_id"`
	Name        string    `json:"name"`
	Tagline     string    `json:"tagline"`
	Category    string    `json:"category"`
	Stack       []string  `json:"stack"`
	Stars       int       `json:"stars"`
	LastUpdated time.Time `json:"lastUpdated"`
	IsTopPick   bool      `json:"isTopPick"`
	GithubURL   string    `json:"githubUrl"`
	DeepWikiURL string    `json:"deepWikiUrl"`
}

// RepoView is a repo as returned by read endpoints
type RepoView struct {
	Repo
	LastUpdatedRelative string `json:"lastUpdatedRelative"`
}

// RepoInput is the request payload for create and update.
// Optional fields are pointers so that an absent field can be told apart from a zero value.
type RepoInput struct {
	Name        string     `json:"name"`
	Tagline     string     `json:"tagline"`
	Category    string     `json:"category"`
	Stack       []string   `json:"stack"`
	Stars       *int       `json:"stars"`
	LastUpdated *Timestamp `json:"lastUpdated"`
	IsTopPick   *bool      `json:"isTopPick"`
	GithubURL   string     `json:"githubUrl"`
	DeepWikiURL string     `json:"deepWikiUrl"`
}

// Build turns the input into a record, filling only the record's own field defaults
func (in RepoInput) Build(now time.Time) Repo {
	repo := Repo{
		Name:        in.Name,
		Tagline:     in.Tagline,
		Category:    in.Category,
		Stack:       in.Stack,
		LastUpdated: in.lastUpdatedOr(now),
		GithubURL:   in.GithubURL,
		DeepWikiURL: in.DeepWikiURL,
	}
	if repo.Stack == nil {
		repo.Stack = []string{}
	}
	if in.Stars != nil {
		repo.Stars = *in.Stars
	}
	if in.IsTopPick != nil {
		repo.IsTopPick = *in.IsTopPick
	}
	return repo
}

// BuildBulk turns a bulk candidate into a record, substituting defaults for
// every missing field so that the result never fails validation
func (in RepoInput) BuildBulk(now time.Time) Repo {
	repo := in.Build(now)
	if repo.Name == "" {
		repo.Name = PlaceholderName()
	}
	if repo.Category == "" {
		repo.Category = DefaultCategory
	}
	return repo
}

func (in RepoInput) lastUpdatedOr(now time.Time) time.Time {
	if in.LastUpdated != nil && !in.LastUpdated.IsZero() {
		return Normalize(in.LastUpdated.Time)
	}
	return Normalize(now)
}

// Validate checks that all required fields are present
func (r Repo) Validate() error {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"name", r.Name},
		{"tagline", r.Tagline},
		{"category", r.Category},
		{"githubUrl", r.GithubURL},
		{"deepWikiUrl", r.DeepWikiURL},
	} {
		if f.value == "" {
			missing = append(missing, f.name+" is required")
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("repo validation failed: %s", strings.Join(missing, ", "))
	}
	return nil
}

// PlaceholderName returns "Unnamed-" and 9 random base-36 characters, for bulk
// candidates that have no name
func PlaceholderName() string {
	id := uuid.New()
	digits := strconv.FormatUint(binary.BigEndian.Uint64(id[8:]), 36)
	if len(digits) < placeholderLen {
		digits = strings.Repeat("0", placeholderLen-len(digits)) + digits
	}
	return "Unnamed-" + digits[len(digits)-placeholderLen:]
}

const placeholderLen = 9

// Normalize truncates t to the millisecond precision kept by the stores and converts it to UTC
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
