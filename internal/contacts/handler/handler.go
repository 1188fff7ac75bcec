package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"contactdir/internal/contacts"
	"contactdir/internal/contacts/duplicates"
	"contactdir/internal/directory"
	dErrors "contactdir/pkg/domain-errors"
	"contactdir/pkg/platform/httputil"
	"contactdir/pkg/platform/middleware/request"
)

// Service is the directory surface the HTTP API drives.
type Service interface {
	Domain() string
	Fetch(ctx context.Context) ([]contacts.Contact, error)
	Create(ctx context.Context, draft contacts.Draft) (contacts.Contact, error)
	Update(ctx context.Context, editURL string, draft contacts.Draft) (contacts.Contact, error)
	Delete(ctx context.Context, editURL string) error
	FindDuplicates(ctx context.Context, threshold float64) ([]contacts.DuplicatePair, error)
	RemoveDuplicates(ctx context.Context, editURLs []string) []directory.Removal
	Health(ctx context.Context) error
}

// Handler serves the contacts JSON API.
type Handler struct {
	service   Service
	logger    *slog.Logger
	threshold float64
	guard     func(http.Handler) http.Handler
	probes    []probe
}

type probe struct {
	name  string
	check func(context.Context) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithDefaultThreshold sets the threshold used when a duplicate scan request
// does not pass one.
func WithDefaultThreshold(t float64) Option {
	return func(h *Handler) { h.threshold = t }
}

// WithMutationGuard wraps the mutating routes, typically with the admin token
// middleware.
func WithMutationGuard(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) { h.guard = mw }
}

// WithHealthProbe adds a dependency checked by the deep health probe, such as
// the shared token cache.
func WithHealthProbe(name string, check func(context.Context) error) Option {
	return func(h *Handler) {
		if check != nil {
			h.probes = append(h.probes, probe{name: name, check: check})
		}
	}
}

// New creates a contacts handler.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:   service,
		logger:    logger,
		threshold: duplicates.DefaultThreshold,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register registers the contacts routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.HandleHealth)
		api.Get("/contacts", h.HandleListContacts)
		api.Get("/duplicates", h.HandleFindDuplicates)

		api.Group(func(mut chi.Router) {
			if h.guard != nil {
				mut.Use(h.guard)
			}
			mut.Post("/contacts", h.HandleCreateContact)
			mut.Put("/contacts/update", h.HandleUpdateContact)
			mut.Delete("/contacts/delete", h.HandleDeleteContact)
			mut.Post("/duplicates/remove", h.HandleRemoveDuplicates)
		})
	})
}

// HandleListContacts returns every contact in the directory.
func (h *Handler) HandleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cs, err := h.service.Fetch(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to list contacts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ContactsResponse{Contacts: cs})
}

// HandleCreateContact creates a contact from a draft.
func (h *Handler) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ContactRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}

	created, err := h.service.Create(ctx, req.Draft)
	if err != nil {
		h.fail(ctx, w, "failed to create contact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, &ContactResponse{Success: true, Contact: created})
}

// HandleUpdateContact replaces the contact at edit_url.
func (h *Handler) HandleUpdateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[UpdateContactRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}

	updated, err := h.service.Update(ctx, req.EditURL, *req.ContactData)
	if err != nil {
		h.fail(ctx, w, "failed to update contact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ContactResponse{Success: true, Contact: updated})
}

// HandleDeleteContact deletes the contact at edit_url.
func (h *Handler) HandleDeleteContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[DeleteContactRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, req.EditURL); err != nil {
		h.fail(ctx, w, "failed to delete contact", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SuccessResponse{Success: true})
}

// HandleFindDuplicates scans the directory for likely duplicates.
func (h *Handler) HandleFindDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threshold := h.threshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "threshold must be a number"))
			return
		}
		threshold = t
	}
	if err := duplicates.ValidateThreshold(threshold); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, err.Error()))
		return
	}

	pairs, err := h.service.FindDuplicates(ctx, threshold)
	if err != nil {
		h.fail(ctx, w, "failed to find duplicates", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &DuplicatesResponse{Duplicates: pairs})
}

// HandleRemoveDuplicates deletes each listed contact independently and
// reports a result per edit URL.
func (h *Handler) HandleRemoveDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[RemoveDuplicatesRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}

	removals := h.service.RemoveDuplicates(ctx, req.DuplicateIDs)
	resp := &RemoveDuplicatesResponse{Results: make([]RemovalResult, 0, len(removals))}
	failed := 0
	for _, rm := range removals {
		status := RemovalStatus{Success: true}
		if rm.Err != nil {
			failed++
			status = RemovalStatus{Error: removalMessage(rm.Err)}
		}
		resp.Results = append(resp.Results, RemovalResult{EditURL: rm.EditURL, Result: status})
	}

	h.logger.InfoContext(ctx, "duplicate removal finished",
		"request_id", request.GetRequestID(ctx),
		"requested", len(removals),
		"failed", failed,
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleHealth reports liveness. With ?deep=true it also probes the remote
// feed and any registered dependencies, answering 503 when one fails.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := &HealthResponse{Status: "healthy", Domain: h.service.Domain()}
	if r.URL.Query().Get("deep") != "true" {
		httputil.WriteJSON(w, http.StatusOK, resp)
		return
	}

	ctx := r.Context()
	if err := h.service.Health(ctx); err != nil {
		h.logger.WarnContext(ctx, "directory health probe failed",
			"request_id", request.GetRequestID(ctx),
			"error", err,
		)
		resp.Status = "unhealthy"
		resp.Error = string(directory.GetCategory(err))
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	for _, p := range h.probes {
		if err := p.check(ctx); err != nil {
			h.logger.WarnContext(ctx, "dependency health probe failed",
				"request_id", request.GetRequestID(ctx),
				"dependency", p.name,
				"error", err,
			)
			resp.Status = "unhealthy"
			resp.Error = p.name + " unavailable"
			httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelError
	if code := httputil.ErrorCode(err); code == dErrors.CodeBadRequest || code == dErrors.CodeNotFound || code == dErrors.CodeConflict {
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", request.GetRequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

// removalMessage keeps upstream detail for the caller while hiding internal
// failures.
func removalMessage(err error) string {
	var de *directory.Error
	if errors.As(err, &de) && de.Category != directory.ErrorInternal {
		return de.Error()
	}
	return "failed to delete contact"
}
