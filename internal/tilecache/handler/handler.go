// Package handler exposes cache sessions over HTTP so a page script can use
// the server in place of browser storage.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tilecache/internal/tilecache/models"
	"tilecache/internal/tilecache/service"
	"tilecache/pkg/domain"
	dErrors "tilecache/pkg/domain-errors"
	"tilecache/pkg/platform/httputil"
	"tilecache/pkg/requestcontext"
)

// Sessions is the registry of live cache sessions.
type Sessions interface {
	Create(ctx context.Context, params models.Params) (domain.SessionID, *service.Session, error)
	Get(id domain.SessionID) (*service.Session, error)
	Delete(id domain.SessionID) bool
}

// Defaults fill page parameters a create request omits.
type Defaults struct {
	MaxSectionsToStore int
	StaleMinutes       int
	AssumeConsent      bool
}

// Handler wires session endpoints to the registry.
type Handler struct {
	sessions Sessions
	defaults Defaults
	logger   *slog.Logger
}

// New constructs a session handler with its dependencies.
func New(sessions Sessions, defaults Defaults, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		defaults: defaults,
		logger:   logger,
	}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Route("/{session}", func(r chi.Router) {
			r.Use(h.sessionID)
			r.Get("/", h.HandleGet)
			r.Delete("/", h.HandleDelete)
			r.Put("/consent", h.HandleSetConsent)
			r.Get("/last-section", h.HandleGetLastSection)
			r.Put("/last-section", h.HandleSetLastSection)
			r.Get("/section-zero", h.HandleGetSectionZero)
			r.Put("/section-zero", h.HandleSetSectionZero)
			r.Get("/sections/{section}/content", h.HandleGetContent)
			r.Put("/sections/{section}/content", h.HandlePutContent)
			r.Delete("/sections/{section}/content", h.HandleDeleteContent)
			r.Post("/cleanup", h.HandleCleanup)
			r.Post("/events/{event}", h.HandleEvent)
		})
	})
}

// sessionID parses the {session} path parameter into the request context.
func (h *Handler) sessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := domain.ParseSessionID(chi.URLParam(r, "session"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithSessionID(r.Context(), id)))
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	sess, err := h.sessions.Get(requestcontext.SessionID(r.Context()))
	if err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}
	return sess, true
}

func sectionParam(w http.ResponseWriter, r *http.Request) (domain.SectionNum, bool) {
	section, err := domain.ParseSectionNum(chi.URLParam(r, "section"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return section, true
}

func (h *Handler) snapshot(ctx context.Context, id domain.SessionID, sess *service.Session) *SessionResponse {
	return fromSnapshot(id, sess.Snapshot(), sess.NeedsConsentPrompt(), sess.ContentCount(ctx))
}

// HandleCreate handles POST /v1/sessions.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	id, sess, err := h.sessions.Create(ctx, req.Params(h.defaults))
	if err != nil {
		h.logger.WarnContext(ctx, "session create failed",
			"request_id", requestID,
			"course_id", req.CourseID,
			"user_id", req.UserID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session opened",
		"request_id", requestID,
		"session_id", id.String(),
		"duration_ms", time.Since(requestcontext.Now(ctx)).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, h.snapshot(ctx, id, sess))
}

// HandleGet handles GET /v1/sessions/{session}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	httputil.WriteJSON(w, http.StatusOK, h.snapshot(ctx, requestcontext.SessionID(ctx), sess))
}

// HandleDelete handles DELETE /v1/sessions/{session}, the page unload.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := requestcontext.SessionID(ctx)
	if !h.sessions.Delete(id) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found"))
		return
	}
	h.logger.InfoContext(ctx, "session closed",
		"request_id", requestcontext.RequestID(ctx),
		"session_id", id.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetConsent handles PUT /v1/sessions/{session}/consent.
func (h *Handler) HandleSetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ConsentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	sess.SetConsent(ctx, *req.Given)
	httputil.WriteJSON(w, http.StatusOK, h.snapshot(ctx, requestcontext.SessionID(ctx), sess))
}

// HandleGetLastSection handles GET /v1/sessions/{session}/last-section.
func (h *Handler) HandleGetLastSection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	section, ok := sess.LastVisitedSection(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no last visited section"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &LastSectionResponse{Section: int(section)})
}

// HandleSetLastSection handles PUT /v1/sessions/{session}/last-section.
func (h *Handler) HandleSetLastSection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LastSectionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sess.SetLastVisitedSection(ctx, domain.SectionNum(*req.Section))
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetSectionZero handles GET /v1/sessions/{session}/section-zero.
func (h *Handler) HandleGetSectionZero(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &SectionZeroResponse{Expanded: sess.SectionZeroExpanded(r.Context())})
}

// HandleSetSectionZero handles PUT /v1/sessions/{session}/section-zero.
func (h *Handler) HandleSetSectionZero(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SectionZeroRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sess.SetSectionZeroCollapsed(ctx, !*req.Expanded)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetContent handles GET /v1/sessions/{session}/sections/{section}/content.
func (h *Handler) HandleGetContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	html, ok := sess.Content(ctx, section)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "section content not cached"))
		return
	}
	resp := &ContentResponse{Section: int(section), HTML: html}
	if age, ok := sess.ContentAge(ctx, section); ok {
		resp.AgeSeconds = &age
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandlePutContent handles PUT /v1/sessions/{session}/sections/{section}/content.
func (h *Handler) HandlePutContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ContentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	sess.PutContent(ctx, section, req.HTML)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteContent handles DELETE /v1/sessions/{session}/sections/{section}/content.
func (h *Handler) HandleDeleteContent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	section, ok := sectionParam(w, r)
	if !ok {
		return
	}
	sess.InvalidateContent(r.Context(), section)
	w.WriteHeader(http.StatusNoContent)
}

// HandleCleanup handles POST /v1/sessions/{session}/cleanup.
func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CleanupRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := sess.Cleanup(ctx, req.Options())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "cleanup ran",
		"request_id", requestID,
		"session_id", requestcontext.SessionID(ctx).String(),
		"clear_all", req.ClearAll,
		"removed", res.Removed,
		"remaining", res.Remaining,
	)
	httputil.WriteJSON(w, http.StatusOK, fromCleanupResult(res))
}

// HandleEvent handles POST /v1/sessions/{session}/events/{event}.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var scheduled bool
	switch event := chi.URLParam(r, "event"); event {
	case "page-ready":
		scheduled = sess.OnPageReady(ctx)
	case "tile-click":
		scheduled = sess.OnTileClick(ctx)
	case "completion-toggle":
		req, ok := httputil.DecodeAndPrepare[CompletionToggleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		sess.OnCompletionToggle(ctx, domain.SectionNum(*req.Section))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown event "+event))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &EventResponse{Scheduled: scheduled})
}
