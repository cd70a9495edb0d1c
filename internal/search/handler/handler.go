package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"peoplefinder/internal/search/providers"
	"peoplefinder/internal/search/service"
	"peoplefinder/pkg/platform/httputil"
	"peoplefinder/pkg/requestcontext"
)

// Service defines the interface for search operations.
type Service interface {
	Search(ctx context.Context, req service.Request) (*service.Response, error)
	Photo(ctx context.Context, backend, id string) ([]byte, string, error)
	Check(ctx context.Context) []service.BackendHealth
}

// Handler wires search endpoints to the search service.
type Handler struct {
	service  Service
	backends []string
	logger   *slog.Logger
}

// New constructs a search handler. backends lists the names accepted as
// "<name>_id" known-identifier query parameters.
func New(service Service, backends []string, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		backends: backends,
		logger:   logger,
	}
}

// Register mounts search endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/search", h.HandleSearch)
	r.Get("/api/photos/{backend}/{id}", h.HandlePhoto)
	r.Get("/healthz", h.HandleHealth)
}

// HandleSearch handles GET /api/search?q=<term>&<backend>_id=<id>.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	req := service.Request{Term: strings.TrimSpace(query.Get("q"))}
	for _, name := range h.backends {
		if id := strings.TrimSpace(query.Get(name + "_id")); id != "" {
			if req.KnownIDs == nil {
				req.KnownIDs = make(map[string]string)
			}
			req.KnownIDs[name] = id
		}
	}

	resp, err := h.service.Search(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrEmptyTerm) {
			httputil.WriteError(w, httputil.New(httputil.CodeBadRequest, "query parameter q is required"))
			return
		}
		h.logger.ErrorContext(ctx, "search failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromResponse(resp))
}

// HandlePhoto handles GET /api/photos/{backend}/{id}.
func (h *Handler) HandlePhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	backend := chi.URLParam(r, "backend")
	id := chi.URLParam(r, "id")
	// chi matches on RawPath when the client escaped reserved characters,
	// as it must for directory DNs.
	if r.URL.RawPath != "" {
		if unescaped, err := url.PathUnescape(id); err == nil {
			id = unescaped
		}
	}

	data, contentType, err := h.service.Photo(ctx, backend, id)
	if err != nil {
		switch {
		case errors.Is(err, providers.ErrBackendNotFound), errors.Is(err, providers.ErrPhotosNotSupported):
			httputil.WriteError(w, httputil.Wrap(httputil.CodeNotFound, "no photo source "+backend, err))
		default:
			h.logger.WarnContext(ctx, "photo fetch failed",
				"request_id", requestcontext.RequestID(ctx),
				"backend", backend,
				"error", err,
			)
			httputil.WriteError(w, httputil.Wrap(httputil.CodeBadGateway, "photo fetch failed", err))
		}
		return
	}
	if len(data) == 0 {
		httputil.WriteError(w, httputil.New(httputil.CodeNotFound, "no photo"))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := FromHealth(h.service.Check(r.Context()))
	status := http.StatusOK
	if !resp.Healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, resp)
}
