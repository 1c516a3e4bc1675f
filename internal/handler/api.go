package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ippclub/repo-catalog/internal/apperr"
	"github.com/ippclub/repo-catalog/internal/config"
	"github.com/ippclub/repo-catalog/internal/model"
	"github.com/ippclub/repo-catalog/internal/query"
	"github.com/ippclub/repo-catalog/internal/service"
	"go.uber.org/zap"
)

// API handles HTTP requests
type API struct {
	cfg    *config.Config
	logger *zap.Logger
	repos  *service.RepoService
}

// NewAPI creates a new API instance
func NewAPI(cfg *config.Config, logger *zap.Logger, repos *service.RepoService) *API {
	return &API{
		cfg:    cfg,
		logger: logger,
		repos:  repos,
	}
}

// RegisterRoutes registers the API routes
func (a *API) RegisterRoutes(r chi.Router) {
	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(a.logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS(a.cfg.CORS))
	if a.cfg.Server.RequestTimeout > 0 {
		r.Use(middleware.Timeout(a.cfg.Server.RequestTimeout))
	}

	routes := func(r chi.Router) {
		r.Get("/", a.welcome)
		r.Get("/repos", a.listRepos)
		r.Post("/repos", a.createRepo)
		r.Post("/repos/bulk", a.createBulkRepos)
		r.Get("/repos/{id}", a.getRepo)
		r.Put("/repos/{id}", a.updateRepo)
		r.Delete("/repos/{id}", a.deleteRepo)
		r.Get("/categories", a.listCategories)
	}

	if prefix := a.cfg.Server.Prefix; prefix != "" && prefix != "/" {
		r.Route(prefix, routes)
	} else {
		routes(r)
	}
}

// welcome answers the root path
func (a *API) welcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("Welcome to the Repo API"))
}

// listRepos returns repos matching the search, filter and sort parameters
func (a *API) listRepos(w http.ResponseWriter, r *http.Request) {
	params, err := query.ParseParams(r.URL.Query())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	result, err := a.repos.List(r.Context(), params)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getRepo returns a single repo
func (a *API) getRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := a.repos.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// createRepo creates a single repo
func (a *API) createRepo(w http.ResponseWriter, r *http.Request) {
	var in model.RepoInput
	if err := a.decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	repo, err := a.repos.Create(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

// createBulkRepos creates many repos from a JSON array. Fields of the wrong
// type are treated as absent and replaced by defaults.
func (a *API) createBulkRepos(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := a.decodeBody(w, r, &raw); err != nil {
		a.writeError(w, r, err)
		return
	}

	inputs, err := model.DecodeBulk(raw)
	if err != nil || len(inputs) == 0 {
		a.writeError(w, r, apperr.Validation(service.EmptyBulkMessage))
		return
	}

	repos, err := a.repos.CreateBulk(r.Context(), inputs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repos)
}

// updateRepo replaces a repo
func (a *API) updateRepo(w http.ResponseWriter, r *http.Request) {
	var in model.RepoInput
	if err := a.decodeBody(w, r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}

	repo, err := a.repos.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// deleteRepo deletes a repo
func (a *API) deleteRepo(w http.ResponseWriter, r *http.Request) {
	if err := a.repos.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listCategories returns the distinct categories prefixed with "All"
func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.repos.Categories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// decodeBody decodes a size-limited JSON request body into v
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if a.cfg.Server.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxBodyBytes)
	}

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.Validation("invalid JSON body: %v", err)
	}
	return nil
}

// errorResponse is the body of every failed request
type errorResponse struct {
	Message string `json:"message"`
}

// writeError maps an application error to its status code
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindNotFound:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}

	writeJSON(w, status, errorResponse{Message: apperr.MessageOf(err)})
}

// writeJSON writes v as a JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
