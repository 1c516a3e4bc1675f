package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ippclub/repo-catalog/internal/config"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/service"
	"github.com/ippclub/repo-catalog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type listBody struct {
	Repos     []map[string]any `json:"repos"`
	Total     int              `json:"total"`
	Remaining int              `json:"remaining"`
}

type testServer struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}

	st, err := store.NewSQLiteStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	api := NewAPI(cfg, zap.NewNop(), service.NewRepoService(st, zap.NewNop()))
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) create(fields map[string]any) map[string]any {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/repos", fields)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](s.t, rec)
}

func (s *testServer) list(rawQuery string) listBody {
	s.t.Helper()
	rec := s.do(http.MethodGet, "/repos?"+rawQuery, nil)
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[listBody](s.t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func repoFields(name, category string, stars int) map[string]any {
	return map[string]any{
		"name":        name,
		"tagline":     name + " tagline",
		"category":    category,
		"stack":       []string{"Go"},
		"stars":       stars,
		"githubUrl":   "https://github.com/example/" + name,
		"deepWikiUrl": "https://deepwiki.com/example/" + name,
	}
}

func repoNames(body listBody) []string {
	out := make([]string, 0, len(body.Repos))
	for _, r := range body.Repos {
		out = append(out, r["name"].(string))
	}
	return out
}

func TestCreateRepo(t *testing.T) {
	s := newTestServer(t)

	first := s.create(repoFields("chi", "Libraries", 10))
	second := s.create(repoFields("chi", "Libraries", 10))

	assert.NotEmpty(t, first["_id"])
	assert.NotEqual(t, first["_id"], second["_id"])
	assert.Equal(t, "chi", first["name"])
	assert.Equal(t, false, first["isTopPick"])
	assert.NotEmpty(t, first["lastUpdated"])
}

func TestCreateRepoMissingRequiredField(t *testing.T) {
	s := newTestServer(t)

	for _, field := range []string{"name", "tagline", "category", "githubUrl", "deepWikiUrl"} {
		t.Run(field, func(t *testing.T) {
			fields := repoFields("x", "Tools", 1)
			delete(fields, field)
			rec := s.do(http.MethodPost, "/repos", fields)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["message"], field+" is required")
		})
	}
}

func TestCreateRepoMalformedBody(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/repos", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/repos", `{"name":"x","lastUpdated":"not a date"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRepoBodyTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.MaxBodyBytes = 64 })

	fields := repoFields(strings.Repeat("n", 100), "Tools", 1)
	rec := s.do(http.MethodPost, "/repos", fields)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBulkRepos(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/repos/bulk", []map[string]any{
		repoFields("complete", "Tools", 3),
		{"tagline": "missing everything else"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	saved := decode[[]map[string]any](t, rec)
	require.Len(t, saved, 2)
	assert.Equal(t, "complete", saved[0]["name"])
	assert.True(t, strings.HasPrefix(saved[1]["name"].(string), "Unnamed-"))
	assert.Equal(t, "Miscellaneous", saved[1]["category"])
	assert.Equal(t, "", saved[1]["githubUrl"])
	assert.Equal(t, []any{}, saved[1]["stack"])

	assert.Equal(t, 2, s.list("").Total)
}

func TestCreateBulkSubstitutesDefaultsForMistypedFields(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/repos/bulk", `[{"name":"a","stack":"Go, React"},{"name":"b","stars":"7"},{"name":"c","stars":"many","isTopPick":"yes"},42]`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	saved := decode[[]map[string]any](t, rec)
	require.Len(t, saved, 4)

	assert.Equal(t, "a", saved[0]["name"])
	assert.Equal(t, []any{}, saved[0]["stack"])

	assert.Equal(t, "b", saved[1]["name"])
	assert.Equal(t, float64(7), saved[1]["stars"])

	assert.Equal(t, "c", saved[2]["name"])
	assert.Equal(t, float64(0), saved[2]["stars"])
	assert.Equal(t, false, saved[2]["isTopPick"])

	assert.True(t, strings.HasPrefix(saved[3]["name"].(string), "Unnamed-"))
	assert.Equal(t, "Miscellaneous", saved[3]["category"])

	assert.Equal(t, 4, s.list("").Total)
}

func TestCreateBulkRejectsNonArrays(t *testing.T) {
	s := newTestServer(t)

	for name, body := range map[string]string{
		"empty array": `[]`,
		"object":      `{"name":"x"}`,
		"string":      `"repos"`,
		"null":        `null`,
		"no body":     ``,
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/repos/bulk", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["message"])
		})
	}
}

func TestListRepos(t *testing.T) {
	s := newTestServer(t)

	tool := repoFields("hammer", "Tools", 5)
	tool["isTopPick"] = true
	s.create(tool)
	lib := repoFields("zap", "Libraries", 500)
	lib["tagline"] = "blazing fast structured logging"
	s.create(lib)
	s.create(repoFields("cobra", "Tools", 50))

	t.Run("All equals no filter", func(t *testing.T) {
		all := s.list("filterCategory=All")
		none := s.list("")
		assert.ElementsMatch(t, repoNames(none), repoNames(all))
		assert.Equal(t, 3, all.Total)
	})

	t.Run("sort by stars is non-increasing", func(t *testing.T) {
		body := s.list("sortBy=stars")
		require.Len(t, body.Repos, 3)
		for i := 1; i < len(body.Repos); i++ {
			assert.GreaterOrEqual(t, body.Repos[i-1]["stars"].(float64), body.Repos[i]["stars"].(float64))
		}
	})

	t.Run("tagline-only search", func(t *testing.T) {
		body := s.list("searchQuery=Structured")
		assert.Equal(t, []string{"zap"}, repoNames(body))
		assert.Equal(t, 1, body.Total)
	})

	t.Run("top picks only", func(t *testing.T) {
		assert.Equal(t, []string{"hammer"}, repoNames(s.list("showTopPicksOnly=true")))
	})

	t.Run("relative time attached", func(t *testing.T) {
		body := s.list("")
		for _, r := range body.Repos {
			assert.Contains(t, []any{"today", "1 day ago"}, r["lastUpdatedRelative"])
		}
	})

	t.Run("limit and remaining", func(t *testing.T) {
		body := s.list("sortBy=name&limit=2")
		assert.Equal(t, []string{"cobra", "hammer"}, repoNames(body))
		assert.Equal(t, 3, body.Total)
		assert.Equal(t, 1, body.Remaining)
	})

	t.Run("zero limit returns everything and subtracts nothing", func(t *testing.T) {
		body := s.list("limit=0")
		assert.Len(t, body.Repos, 3)
		assert.Equal(t, 3, body.Total)
		assert.Equal(t, 3, body.Remaining)
	})

	t.Run("limit above total clamps remaining", func(t *testing.T) {
		body := s.list("limit=10")
		assert.Len(t, body.Repos, 3)
		assert.Equal(t, 0, body.Remaining)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/repos?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListReposEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/repos", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"repos":[],"total":0,"remaining":0}`, rec.Body.String())
}

func TestGetRepo(t *testing.T) {
	s := newTestServer(t)
	fields := repoFields("old", "Tools", 1)
	fields["lastUpdated"] = time.Now().AddDate(0, 0, -400).Format(time.RFC3339)
	created := s.create(fields)

	rec := s.do(http.MethodGet, "/repos/"+created["_id"].(string), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.Equal(t, "old", got["name"])
	assert.Equal(t, "1 years ago", got["lastUpdatedRelative"])

	rec = s.do(http.MethodGet, "/repos/never-issued", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Repo not found"}`, rec.Body.String())
}

func TestUpdateRepo(t *testing.T) {
	s := newTestServer(t)
	created := s.create(repoFields("before", "Tools", 1))
	id := created["_id"].(string)

	replacement := repoFields("after", "Libraries", 77)
	replacement["stack"] = []string{"Go", "SQL"}
	replacement["isTopPick"] = true
	replacement["lastUpdated"] = "2024-01-15T00:00:00Z"

	rec := s.do(http.MethodPut, "/repos/"+id, replacement)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "after", decode[map[string]any](t, rec)["name"])

	got := decode[map[string]any](t, s.do(http.MethodGet, "/repos/"+id, nil))
	assert.Equal(t, "after", got["name"])
	assert.Equal(t, "Libraries", got["category"])
	assert.Equal(t, float64(77), got["stars"])
	assert.Equal(t, true, got["isTopPick"])
	assert.Equal(t, []any{"Go", "SQL"}, got["stack"])
	assert.Equal(t, "2024-01-15T00:00:00Z", got["lastUpdated"])

	rec = s.do(http.MethodPut, "/repos/"+id, map[string]any{"name": "only"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPut, "/repos/missing", repoFields("x", "y", 0))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRepo(t *testing.T) {
	s := newTestServer(t)
	created := s.create(repoFields("gone", "Tools", 1))
	id := created["_id"].(string)

	rec := s.do(http.MethodDelete, "/repos/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/repos/"+id, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/repos/"+id, nil).Code)
}

func TestListCategories(t *testing.T) {
	s := newTestServer(t)
	s.create(repoFields("a", "Tools", 1))
	s.create(repoFields("b", "Libraries", 1))
	s.create(repoFields("c", "Tools", 1))

	rec := s.do(http.MethodGet, "/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"All", "Libraries", "Tools"}, decode[[]string](t, rec))
}

func TestWelcomeAndMiddleware(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the Repo API", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	req.Header.Set("Origin", "https://frontend.example")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRoutePrefix(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Server.Prefix = "/api" })

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/categories", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/categories", nil).Code)
}

func TestCreatedRecordDecodesAsModel(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodPost, "/repos", repoFields("typed", "Tools", 9))
	require.Equal(t, http.StatusCreated, rec.Code)

	repo := decode[model.Repo](t, rec)
	assert.Equal(t, "typed", repo.Name)
	assert.Equal(t, 9, repo.Stars)
}
