// Package authorizer is a typed client for the remote Authorizer REST API.
// It never retries: every failure is returned to the caller as an
// *UpstreamError and the attempt is restarted from scratch.
package authorizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"eudi-storefront/internal/platform/tracer"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/request"
	id "eudi-storefront/pkg/domain"
	"eudi-storefront/pkg/platform/circuit"
	s "eudi-storefront/pkg/platform/strings"
)

const (
	authorizationsPath = "/openid4/vp/v1_0/authorizations"

	// DefaultBypassHeader is sent on every call so demo tunnels do not answer
	// with an interstitial page.
	DefaultBypassHeader = "ngrok-skip-browser-warning"

	maxBodyBytes = 1 << 20
)

// Operation names used in errors, spans and metrics.
const (
	OpCreate      = "create_authorization"
	OpStatus      = "get_status"
	OpPolicy      = "get_policy_response"
	OpCredentials = "get_credentials"
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Observer receives one observation per call.
type Observer interface {
	ObserveAuthorizerCall(operation, outcome string, seconds float64)
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	BypassHeader string
	HTTPClient   HTTPDoer
	Tracer       tracer.Tracer
	Observer     Observer
	// Breaker, when set, tracks consecutive outages and timeouts. It never
	// blocks a call; Health reports it.
	Breaker *circuit.Breaker
	Logger  *slog.Logger
}

// Client talks to one Authorizer deployment.
type Client struct {
	baseURL      string
	apiKey       string
	bypassHeader string
	client       HTTPDoer
	tracer       tracer.Tracer
	observer     Observer
	breaker      *circuit.Breaker
	logger       *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BypassHeader == "" {
		cfg.BypassHeader = DefaultBypassHeader
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		bypassHeader: cfg.BypassHeader,
		client:       cfg.HTTPClient,
		tracer:       cfg.Tracer,
		observer:     cfg.Observer,
		breaker:      cfg.Breaker,
		logger:       cfg.Logger,
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if c.tracer == nil {
		c.tracer = tracer.NewNoop()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Authorization is the Authorizer's answer to a create call.
type Authorization struct {
	ID           id.AuthorizationID `json:"authorizationId"`
	AuthorizeURL *string            `json:"authorizeUrl,omitempty"`
	ExpiresAt    time.Time          `json:"expiresAt"`
	Nonce        string             `json:"nonce"`
}

type createBody struct {
	Nonce        string      `json:"nonce"`
	ResponseMode string      `json:"responseMode"`
	Query        createQuery `json:"query"`
}

type createQuery struct {
	Type string       `json:"type"`
	DCQL request.DCQL `json:"dcql"`
}

// CreateAuthorization opens an authorization for nonce and query.
func (c *Client) CreateAuthorization(ctx context.Context, nonce string, mode models.Mode, query request.DCQL) (authz *Authorization, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanAuthorizerCreate,
		tracer.String(tracer.AttrNoncePrefix, s.Prefix(nonce, 8)),
		tracer.String(tracer.AttrResponseMode, string(mode)),
	)
	defer func() { span.End(err) }()

	body, err := json.Marshal(createBody{
		Nonce:        nonce,
		ResponseMode: string(mode),
		Query:        createQuery{Type: "DCQL", DCQL: query},
	})
	if err != nil {
		return nil, newUpstreamError(OpCreate, ErrorInternal, 0, "failed to encode authorization request", err)
	}

	var out Authorization
	status, err := c.do(ctx, OpCreate, http.MethodPost, authorizationsPath, body, &out)
	span.SetAttributes(tracer.Int(tracer.AttrHTTPStatus, status))
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, newUpstreamError(OpCreate, ErrorBadData, status, "Authorizer response is missing authorizationId", nil)
	}
	if out.Nonce != "" && out.Nonce != nonce {
		return nil, newUpstreamError(OpCreate, ErrorBadData, status, "Authorizer echoed a different nonce", nil)
	}
	if out.AuthorizeURL != nil && *out.AuthorizeURL == "" {
		out.AuthorizeURL = nil
	}
	out.Nonce = nonce
	span.SetAttributes(tracer.String(tracer.AttrAuthorizationID, string(out.ID)))
	return &out, nil
}

type statusBody struct {
	Status models.RemoteStatus `json:"status"`
}

// GetStatus returns the current remote status.
func (c *Client) GetStatus(ctx context.Context, authzID id.AuthorizationID) (st models.RemoteStatus, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanAuthorizerStatus,
		tracer.String(tracer.AttrAuthorizationID, string(authzID)),
	)
	defer func() { span.End(err) }()

	var out statusBody
	if _, err := c.do(ctx, OpStatus, http.MethodGet, c.itemPath(authzID, "status"), nil, &out); err != nil {
		return "", err
	}
	if !out.Status.IsValid() {
		return "", newUpstreamError(OpStatus, ErrorBadData, http.StatusOK,
			fmt.Sprintf("Authorizer returned unknown status %q", out.Status), nil)
	}
	span.SetAttributes(tracer.String(tracer.AttrRemoteStatus, string(out.Status)))
	return out.Status, nil
}

// GetPolicyResponse returns the raw policy evaluation body.
func (c *Client) GetPolicyResponse(ctx context.Context, authzID id.AuthorizationID) (raw json.RawMessage, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanAuthorizerPolicy,
		tracer.String(tracer.AttrAuthorizationID, string(authzID)),
	)
	defer func() { span.End(err) }()

	if _, err := c.do(ctx, OpPolicy, http.MethodGet, c.itemPath(authzID, "policy-response"), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetCredentials returns the raw disclosed-credential body.
func (c *Client) GetCredentials(ctx context.Context, authzID id.AuthorizationID) (raw json.RawMessage, err error) {
	ctx, span := c.tracer.Start(ctx, tracer.SpanAuthorizerCredentials,
		tracer.String(tracer.AttrAuthorizationID, string(authzID)),
	)
	defer func() { span.End(err) }()

	if _, err := c.do(ctx, OpCredentials, http.MethodGet, c.itemPath(authzID, "credentials"), nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Health probes the Authorizer's base URL. Any HTTP answer below 500 counts
// as reachable. The probe feeds the breaker, so an open breaker recovers
// from readiness checks alone; while it is open Health fails.
func (c *Client) Health(ctx context.Context) error {
	err := c.probe(ctx)
	c.record(err)
	if err != nil {
		return err
	}
	if c.breaker != nil {
		return c.breaker.Err()
	}
	return nil
}

func (c *Client) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	c.decorate(req)
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newUpstreamError("health", ErrorCancelled, 0, "health probe abandoned: "+ctxErr.Error(), err)
		}
		return newUpstreamError("health", ErrorOutage, 0, "Authorizer unreachable: "+err.Error(), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	if resp.StatusCode >= 500 {
		return newUpstreamError("health", ErrorOutage, resp.StatusCode, fmt.Sprintf("authorizer unhealthy: %d", resp.StatusCode), nil)
	}
	return nil
}

// record feeds the breaker. Only outages and timeouts count against the
// Authorizer; a 404 or a rejected request means it is up, and a call we
// abandoned says nothing either way.
func (c *Client) record(err error) {
	if c.breaker == nil || Category(err) == ErrorCancelled {
		return
	}
	failed := false
	if err != nil {
		switch Category(err) {
		case ErrorOutage, ErrorTimeout:
			failed = true
		}
	}
	change := c.breaker.Record(!failed)
	switch {
	case change.Opened:
		c.logger.Warn("authorizer circuit opened", "breaker", c.breaker.Name(), "error", err)
	case change.Closed:
		c.logger.Info("authorizer circuit closed", "breaker", c.breaker.Name())
	}
}

func (c *Client) itemPath(authzID id.AuthorizationID, leaf string) string {
	return authorizationsPath + "/" + url.PathEscape(string(authzID)) + "/" + leaf
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.bypassHeader, "true")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// do performs one round-trip and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, out any) (status int, err error) {
	start := time.Now()
	defer func() {
		c.record(err)
		if c.observer != nil {
			outcome := "ok"
			if err != nil {
				outcome = string(Category(err))
			}
			c.observer.ObserveAuthorizerCall(op, outcome, time.Since(start).Seconds())
		}
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, newUpstreamError(op, ErrorInternal, 0, "failed to create request", err)
	}
	c.decorate(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, newUpstreamError(op, ErrorCancelled, 0, "Authorizer call abandoned: "+ctxErr.Error(), err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, newUpstreamError(op, ErrorTimeout, 0, "Authorizer request timed out", err)
		}
		return 0, newUpstreamError(op, ErrorOutage, 0, "Authorizer unreachable: "+err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, newUpstreamError(op, ErrorBadData, resp.StatusCode, "failed to read Authorizer response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, newUpstreamError(op, categoryForStatus(resp.StatusCode), resp.StatusCode,
			remoteMessage(resp.StatusCode, respBody), nil)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, newUpstreamError(op, ErrorBadData, resp.StatusCode, "Authorizer returned malformed JSON", err)
	}
	return resp.StatusCode, nil
}
