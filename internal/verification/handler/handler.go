// Package handler exposes verification attempts to the storefronts over
// REST and server-sent events.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/presentation"
	"eudi-storefront/internal/verification/service"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/httputil"
	"eudi-storefront/pkg/platform/middleware/request"
)

// Service is the verification orchestration the handler drives.
type Service interface {
	Start(ctx context.Context, cmd service.StartCommand) (*service.StartResult, error)
	Get(ctx context.Context, subject id.SubjectID) (*models.VerificationState, error)
	Refresh(ctx context.Context, subject id.SubjectID) (*models.VerificationState, error)
	Retry(ctx context.Context, subject id.SubjectID, caps models.Capabilities) (*service.StartResult, error)
	Reset(ctx context.Context, subject id.SubjectID) error
	SubmitDCAPIResponse(ctx context.Context, subject id.SubjectID, nonce string, res presentation.DCAPIResult) (*models.VerificationState, error)
	HandleCallback(ctx context.Context, authzID id.AuthorizationID, reported models.RemoteStatus) (*models.VerificationState, error)
}

// Streamer serves a subject's event stream.
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request, subject id.SubjectID)
}

// Handler handles verification endpoints.
type Handler struct {
	service Service
	stream  Streamer
	logger  *slog.Logger
	timeout time.Duration
}

// New creates a Handler. timeout bounds every route except the event
// stream; zero disables it.
func New(svc Service, stream Streamer, logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: svc, stream: stream, logger: logger, timeout: timeout}
}

// Register mounts the routes. The events route is registered outside the
// timeout group because the stream is long-lived.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verifications/{subjectID}", func(r chi.Router) {
		r.Get("/events", h.handleEvents)

		r.Group(func(r chi.Router) {
			h.bounded(r)
			r.Post("/", h.handleStart)
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleReset)
			r.Post("/refresh", h.handleRefresh)
			r.Post("/retry", h.handleRetry)
			r.Post("/dc-api", h.handleDCAPI)
		})
	})

	r.Group(func(r chi.Router) {
		h.bounded(r)
		r.Post("/callbacks/authorizer", h.handleCallback)
	})
}

func (h *Handler) bounded(r chi.Router) {
	if h.timeout > 0 {
		r.Use(request.Timeout(h.timeout))
	}
	r.Use(request.ContentTypeJSON)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.RequestIDFrom(ctx)
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Start(ctx, req.ToCommand(subject, r.UserAgent()))
	if err != nil {
		h.fail(ctx, w, "failed to start verification", subject, requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	st, err := h.service.Get(ctx, subject)
	if err != nil {
		h.fail(ctx, w, "failed to load verification", subject, request.RequestIDFrom(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	st, err := h.service.Refresh(ctx, subject)
	if err != nil {
		h.fail(ctx, w, "failed to refresh verification", subject, request.RequestIDFrom(ctx), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.RequestIDFrom(ctx)
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	var body RetryRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		h.logger.WarnContext(ctx, "failed to decode retry request", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	caps := presentation.DetectCapabilities(r.UserAgent(), body.Capabilities.DigitalCredentials)
	res, err := h.service.Retry(ctx, subject, caps)
	if err != nil {
		h.fail(ctx, w, "failed to retry verification", subject, requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(ctx, subject); err != nil {
		h.fail(ctx, w, "failed to reset verification", subject, request.RequestIDFrom(ctx), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDCAPI(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.RequestIDFrom(ctx)
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[DCAPISubmission](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	st, err := h.service.SubmitDCAPIResponse(ctx, subject, req.Nonce, req.Result())
	if err != nil {
		h.fail(ctx, w, "failed to apply dc_api response", subject, requestID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.subject(w, r)
	if !ok {
		return
	}
	h.stream.Serve(w, r, subject)
}

// handleCallback answers 204 once the re-fetched status has been applied.
// The body is never echoed back.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.RequestIDFrom(ctx)

	req, ok := httputil.DecodeAndPrepare[CallbackRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	authzID := id.AuthorizationID(req.AuthorizationID)
	if _, err := h.service.HandleCallback(ctx, authzID, models.RemoteStatus(req.Status)); err != nil {
		h.logger.WarnContext(ctx, "authorizer callback failed",
			"request_id", requestID,
			"authorizer_id", authzID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) subject(w http.ResponseWriter, r *http.Request) (id.SubjectID, bool) {
	subject, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return subject, true
}

// fail logs at a level that matches the cause and writes the error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, subject id.SubjectID, requestID string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"subject_id", subject,
		"error", err,
	)
	httputil.WriteError(w, err)
}
