package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gopkg.in/h2non/gock.v1"

	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/request"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/circuit"
)

const (
	testBaseURL = "https://authorizer.test"
	testNonce   = "00112233445566778899aabbccddeeff"
)

// ClientSuite exercises the Authorizer contract over intercepted HTTP.
//
// Justification: the client is the only network boundary of the subsystem;
// every failure must surface as an UpstreamError carrying the remote text.
type ClientSuite struct {
	suite.Suite
	client   *Client
	observed []string
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) ObserveAuthorizerCall(op, outcome string, _ float64) {
	s.observed = append(s.observed, op+":"+outcome)
}

func (s *ClientSuite) SetupTest() {
	s.observed = nil
	s.client = New(Config{BaseURL: testBaseURL + "/", APIKey: "secret", Observer: s})
}

func (s *ClientSuite) TearDownTest() {
	s.True(gock.IsDone(), "pending mocks: %d", len(gock.Pending()))
	gock.Off()
}

func (s *ClientSuite) query() request.DCQL {
	req, err := request.NewBuilder().Build(request.Context{SubjectID: "order_42", Flow: models.FlowCarRental, VehicleCategory: "B"})
	s.Require().NoError(err)
	return request.ToDCQL(req)
}

func (s *ClientSuite) TestCreateAuthorization() {
	s.Run("returns the authorization with headers set", func() {
		defer gock.Off()
		gock.New(testBaseURL).
			Post("/openid4/vp/v1_0/authorizations").
			MatchHeader("Authorization", "^Bearer secret$").
			MatchHeader(DefaultBypassHeader, "true").
			MatchType("json").
			Reply(http.StatusCreated).
			JSON(map[string]any{
				"authorizationId": "az_1",
				"authorizeUrl":    "openid4vp://authorize?request_uri=x",
				"expiresAt":       "2026-03-01T10:05:00Z",
				"nonce":           testNonce,
			})

		authz, err := s.client.CreateAuthorization(context.Background(), testNonce, models.ModeDirectPost, s.query())
		s.Require().NoError(err)
		s.Equal(id.AuthorizationID("az_1"), authz.ID)
		s.Require().NotNil(authz.AuthorizeURL)
		s.Equal("openid4vp://authorize?request_uri=x", *authz.AuthorizeURL)
		s.Equal(time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC), authz.ExpiresAt.UTC())
		s.Contains(s.observed, OpCreate+":ok")
	})

	s.Run("authorizeUrl is optional", func() {
		defer gock.Off()
		gock.New(testBaseURL).Post("/openid4/vp/v1_0/authorizations").
			Reply(http.StatusCreated).
			JSON(map[string]any{"authorizationId": "az_2", "expiresAt": "2026-03-01T10:05:00Z", "nonce": testNonce})

		authz, err := s.client.CreateAuthorization(context.Background(), testNonce, models.ModeDirectPost, s.query())
		s.Require().NoError(err)
		s.Nil(authz.AuthorizeURL)
	})

	s.Run("nonce mismatch is bad data", func() {
		defer gock.Off()
		gock.New(testBaseURL).Post("/openid4/vp/v1_0/authorizations").
			Reply(http.StatusCreated).
			JSON(map[string]any{"authorizationId": "az_3", "nonce": "ffff"})

		_, err := s.client.CreateAuthorization(context.Background(), testNonce, models.ModeDirectPost, s.query())
		s.Equal(ErrorBadData, Category(err))
	})

	s.Run("remote message is preserved", func() {
		defer gock.Off()
		gock.New(testBaseURL).Post("/openid4/vp/v1_0/authorizations").
			Reply(http.StatusBadRequest).
			JSON(map[string]any{"error": "invalid_request", "message": "dcql.credentials[0].meta is required"})

		_, err := s.client.CreateAuthorization(context.Background(), testNonce, models.ModeDirectPost, s.query())
		s.Require().Error(err)
		s.EqualError(err, "dcql.credentials[0].meta is required")
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))

		var ue *UpstreamError
		s.Require().True(errors.As(err, &ue))
		s.Equal(OpCreate, ue.Operation)
		s.Equal(http.StatusBadRequest, ue.StatusCode)
		s.Equal(ErrorRejected, ue.Category)
	})
}

func (s *ClientSuite) TestGetStatus() {
	for _, st := range []models.RemoteStatus{models.RemoteCreated, models.RemotePending, models.RemoteAuthorized, models.RemoteRejected, models.RemoteExpired, models.RemoteError} {
		s.Run(string(st), func() {
			defer gock.Off()
			gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/status").
				Reply(http.StatusOK).JSON(map[string]string{"status": string(st)})

			got, err := s.client.GetStatus(context.Background(), "az_1")
			s.Require().NoError(err)
			s.Equal(st, got)
		})
	}

	s.Run("unknown status is bad data", func() {
		defer gock.Off()
		gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/status").
			Reply(http.StatusOK).JSON(map[string]string{"status": "approved"})

		_, err := s.client.GetStatus(context.Background(), "az_1")
		s.Equal(ErrorBadData, Category(err))
		s.Contains(err.Error(), `"approved"`)
	})
}

func (s *ClientSuite) TestStatusCodeClassification() {
	cases := []struct {
		code int
		want ErrorCategory
	}{
		{http.StatusUnauthorized, ErrorAuthentication},
		{http.StatusForbidden, ErrorAuthentication},
		{http.StatusNotFound, ErrorNotFound},
		{http.StatusTooManyRequests, ErrorRateLimited},
		{http.StatusGatewayTimeout, ErrorTimeout},
		{http.StatusBadGateway, ErrorOutage},
		{http.StatusConflict, ErrorRejected},
	}
	for _, tc := range cases {
		s.Run(http.StatusText(tc.code), func() {
			defer gock.Off()
			gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_9/credentials").
				Reply(tc.code).BodyString("upstream said no")

			_, err := s.client.GetCredentials(context.Background(), "az_9")
			s.Equal(tc.want, Category(err))
			s.EqualError(err, "upstream said no")
		})
	}
}

func (s *ClientSuite) TestPolicyAndCredentialsAreRaw() {
	defer gock.Off()
	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/policy-response").
		Reply(http.StatusOK).BodyString(`{"data":[{"name":"signature","status":"pass"}],"overallStatus":"pass"}`)
	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/credentials").
		Reply(http.StatusOK).BodyString(`{"credentials":[{"id":"mdl","format":"mso_mdoc","claims":{}}]}`)

	policy, err := s.client.GetPolicyResponse(context.Background(), "az_1")
	s.Require().NoError(err)
	s.JSONEq(`{"data":[{"name":"signature","status":"pass"}],"overallStatus":"pass"}`, string(policy))

	creds, err := s.client.GetCredentials(context.Background(), "az_1")
	s.Require().NoError(err)
	s.Contains(string(creds), `"mso_mdoc"`)
}

func (s *ClientSuite) TestMalformedJSON() {
	defer gock.Off()
	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/status").
		Reply(http.StatusOK).BodyString(`{"status":`)

	_, err := s.client.GetStatus(context.Background(), "az_1")
	s.Equal(ErrorBadData, Category(err))
	s.EqualError(err, "Authorizer returned malformed JSON")
}

func (s *ClientSuite) TestTransportFailureIsOutage() {
	defer gock.Off()
	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/status").
		ReplyError(errors.New("connection reset by peer"))

	_, err := s.client.GetStatus(context.Background(), "az_1")
	s.Equal(ErrorOutage, Category(err))
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Contains(s.observed, OpStatus+":provider_outage")
}

func (s *ClientSuite) TestBreakerTracksOutages() {
	defer gock.Off()
	breaker := circuit.New("authorizer", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	client := New(Config{BaseURL: testBaseURL, Breaker: breaker})

	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_1/status").Times(2).
		Reply(http.StatusServiceUnavailable).BodyString("maintenance")
	gock.New(testBaseURL).Get("/openid4/vp/v1_0/authorizations/az_2/status").
		Reply(http.StatusNotFound)

	_, err := client.GetStatus(context.Background(), "az_2")
	s.Equal(ErrorNotFound, Category(err))
	s.Equal(circuit.StateClosed, breaker.State(), "a 404 means the Authorizer is up")

	for i := 0; i < 2; i++ {
		_, err = client.GetStatus(context.Background(), "az_1")
		s.Equal(ErrorOutage, Category(err))
	}
	s.Equal(circuit.StateOpen, breaker.State())

	gock.New(testBaseURL).Get("/").Reply(http.StatusOK)
	s.NoError(client.Health(context.Background()), "a healthy probe closes the breaker")
	s.Equal(circuit.StateClosed, breaker.State())
}

func (s *ClientSuite) TestHealthFailsWhileBreakerOpen() {
	defer gock.Off()
	breaker := circuit.New("authorizer", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(2))
	client := New(Config{BaseURL: testBaseURL, Breaker: breaker})

	gock.New(testBaseURL).Get("/").Reply(http.StatusBadGateway)
	err := client.Health(context.Background())
	s.Equal(ErrorOutage, Category(err))
	s.Equal(circuit.StateOpen, breaker.State())

	gock.New(testBaseURL).Get("/").Reply(http.StatusOK)
	err = client.Health(context.Background())
	s.ErrorContains(err, "authorizer circuit open")
}

func TestAbandonedCallsDoNotTripBreaker(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	breaker := circuit.New("authorizer", circuit.WithFailureThreshold(2))
	var observed []string
	client := New(Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Breaker:    breaker,
		Observer: observerFunc(func(op, outcome string) {
			observed = append(observed, op+":"+outcome)
		}),
	})

	for i := 0; i < 5; i++ {
		var ctx context.Context
		var cancel context.CancelFunc
		if i%2 == 0 {
			ctx, cancel = context.WithCancel(context.Background())
			time.AfterFunc(20*time.Millisecond, cancel)
		} else {
			ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
		}
		_, err := client.GetStatus(ctx, "az_1")
		cancel()
		require.Error(t, err)
		assert.Equal(t, ErrorCancelled, Category(err))
	}

	assert.Equal(t, circuit.StateClosed, breaker.State())
	assert.NoError(t, breaker.Err())
	assert.NotContains(t, observed, OpStatus+":provider_outage")
	assert.Contains(t, observed, OpStatus+":cancelled")
}

type observerFunc func(op, outcome string)

func (f observerFunc) ObserveAuthorizerCall(op, outcome string, _ float64) { f(op, outcome) }

func TestCreateAuthorization_RequestBody(t *testing.T) {
	var got map[string]any
	var hdr http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"authorizationId":"az_1","expiresAt":"2026-03-01T10:05:00Z","nonce":"` + testNonce + `"}`))
	}))
	defer srv.Close()

	req, err := request.NewBuilder().Build(request.Context{SubjectID: "order_42", Flow: models.FlowCarRental, VehicleCategory: "B"})
	require.NoError(t, err)

	c := New(Config{BaseURL: srv.URL, HTTPClient: srv.Client()})
	_, err = c.CreateAuthorization(context.Background(), testNonce, models.ModeDirectPost, request.ToDCQL(req))
	require.NoError(t, err)

	assert.Equal(t, testNonce, got["nonce"])
	assert.Equal(t, "direct_post", got["responseMode"])
	query := got["query"].(map[string]any)
	assert.Equal(t, "DCQL", query["type"])
	dcql := query["dcql"].(map[string]any)
	assert.Equal(t, req.Purpose, dcql["purpose"])
	creds := dcql["credentials"].([]any)
	require.Len(t, creds, 1)
	meta := creds[0].(map[string]any)["meta"].(map[string]any)
	assert.Equal(t, request.MDLDocType, meta["doctype_value"])

	assert.Empty(t, hdr.Get("Authorization"), "no bearer without an API key")
	assert.Equal(t, "true", hdr.Get(DefaultBypassHeader))
}

func TestRemoteMessage(t *testing.T) {
	assert.Equal(t, "nope", remoteMessage(400, []byte(`{"error_description":"nope"}`)))
	assert.Equal(t, "inner", remoteMessage(400, []byte(`{"error":{"message":"inner"}}`)))
	assert.Equal(t, "Authorizer responded with HTTP 502", remoteMessage(502, []byte(`<html>bad gateway</html>`)))
	assert.Equal(t, "Authorizer responded with HTTP 500", remoteMessage(500, nil))
}
