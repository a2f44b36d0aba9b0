// Package main is a scriptable stand-in for the Authorizer REST API, used by
// demos and the e2e suite. Status sequences, policy outcomes and disclosed
// credentials are scripted per nonce prefix through /_mock endpoints.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPort = "8090"
	apiBase     = "/openid4/vp/v1_0/authorizations"
)

type createRequest struct {
	Nonce        string          `json:"nonce"`
	ResponseMode string          `json:"responseMode"`
	Query        json.RawMessage `json:"query"`
}

type createResponse struct {
	AuthorizationID string    `json:"authorizationId"`
	AuthorizeURL    string    `json:"authorizeUrl,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
	Nonce           string    `json:"nonce"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// server is the mock's HTTP surface.
type server struct {
	registry    *Registry
	apiKey      string
	publicURL   string
	callbackURL string
	latency     time.Duration
	client      *http.Client
	logger      *slog.Logger
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	port := getEnv("PORT", defaultPort)
	s := &server{
		registry:    NewRegistry(5 * time.Minute),
		apiKey:      os.Getenv("API_KEY"),
		publicURL:   getEnv("PUBLIC_URL", "http://localhost:"+port),
		callbackURL: os.Getenv("CALLBACK_URL"),
		latency:     time.Duration(getEnvInt("LATENCY_MS", 0)) * time.Millisecond,
		client:      &http.Client{Timeout: 5 * time.Second},
		logger:      logger,
	}

	logger.Info("mock authorizer starting", "port", port, "callback_url", s.callbackURL)
	srv := &http.Server{Addr: ":" + port, Handler: s.routes(), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)

	r.Route(apiBase, func(r chi.Router) {
		r.Use(s.authenticate, s.simulateLatency)
		r.Post("/", s.handleCreate)
		r.Get("/{id}/status", s.handleStatus)
		r.Get("/{id}/policy-response", s.handlePolicy)
		r.Get("/{id}/credentials", s.handleCredentials)
	})

	r.Route("/_mock", func(r chi.Router) {
		r.Put("/scripts/{prefix}", s.handlePutScript)
		r.Delete("/scripts/{prefix}", s.handleDeleteScript)
		r.Post("/authorizations/{id}/status", s.handleForceStatus)
	})
	return r
}

func (s *server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("Authorization") != "Bearer "+s.apiKey {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) simulateLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			time.Sleep(s.latency)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "mock-authorizer"})
}

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid request body: " + err.Error()})
		return
	}
	if req.Nonce == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "nonce is required"})
		return
	}
	if req.ResponseMode != "direct_post" && req.ResponseMode != "dc_api" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "unsupported responseMode " + strconv.Quote(req.ResponseMode)})
		return
	}

	a, script := s.registry.Create(strings.ToLower(req.Nonce), req.ResponseMode)
	if script.CreateStatus != 0 {
		msg := script.CreateMessage
		if msg == "" {
			msg = http.StatusText(script.CreateStatus)
		}
		s.logger.Info("scripted create failure", "nonce_prefix", prefix(req.Nonce), "status", script.CreateStatus)
		writeJSON(w, script.CreateStatus, errorResponse{Message: msg})
		return
	}

	resp := createResponse{AuthorizationID: a.ID, ExpiresAt: a.ExpiresAt, Nonce: req.Nonce}
	if req.ResponseMode == "direct_post" {
		resp.AuthorizeURL = "openid4vp://authorize?client_id=mock-authorizer&request_uri=" +
			s.publicURL + apiBase + "/" + a.ID + "/request"
	}
	s.logger.Info("authorization created", "authorization_id", a.ID, "nonce_prefix", prefix(req.Nonce), "mode", req.ResponseMode)
	writeJSON(w, http.StatusCreated, resp)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.registry.Status(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "authorization not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func (s *server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	script, ok := s.registry.Script(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "authorization not found"})
		return
	}
	writeRaw(w, http.StatusOK, script.PolicyResponse())
}

func (s *server) handleCredentials(w http.ResponseWriter, r *http.Request) {
	script, ok := s.registry.Script(chi.URLParam(r, "id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "authorization not found"})
		return
	}
	writeRaw(w, http.StatusOK, script.Credentials)
}

func (s *server) handlePutScript(w http.ResponseWriter, r *http.Request) {
	var script Script
	if err := json.NewDecoder(r.Body).Decode(&script); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "invalid script: " + err.Error()})
		return
	}
	if err := script.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	s.registry.SetScript(chi.URLParam(r, "prefix"), script)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	s.registry.DeleteScript(chi.URLParam(r, "prefix"))
	w.WriteHeader(http.StatusNoContent)
}

// handleForceStatus pins an authorization's status and, when a callback URL
// is configured, notifies the storefront.
func (s *server) handleForceStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !validStatuses[body.Status] {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "status must be a known authorization status"})
		return
	}
	authzID := chi.URLParam(r, "id")
	if !s.registry.Force(authzID, body.Status) {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "authorization not found"})
		return
	}
	if s.callbackURL != "" {
		go s.notify(authzID, body.Status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) notify(authzID, status string) {
	payload, _ := json.Marshal(map[string]string{"authorizationId": authzID, "status": status}) //nolint:errcheck // plain map
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.callbackURL, bytes.NewReader(payload))
	if err != nil {
		s.logger.Warn("callback request", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("callback failed", "authorization_id", authzID, "error", err)
		return
	}
	resp.Body.Close()
	s.logger.Info("callback sent", "authorization_id", authzID, "status", status, "response", resp.StatusCode)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, raw json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
}

func prefix(nonce string) string {
	if len(nonce) > 8 {
		return nonce[:8]
	}
	return nonce
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
