package verification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string) error
	DELETE(path string) error
	Authorizer(method, path string, body interface{}) error
	GetResponseField(field string) (interface{}, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	RememberAttempt(subject, authzID, nonce string)
	AuthorizerID(subject string) string
	Nonce(subject string) string
}

// RegisterSteps registers verification lifecycle step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &verificationSteps{tc: tc}

	// Mock authorizer scripting
	ctx.Step(`^the wallet keeps the authorization pending$`, steps.walletKeepsPending)
	ctx.Step(`^the authorizer policy result is "(pass|fail)"$`, steps.policyResultIs)
	ctx.Step(`^the authorizer is unavailable$`, steps.authorizerUnavailable)
	ctx.Step(`^the wallet reports "([^"]*)" for "([^"]*)"$`, steps.walletReports)

	// Storefront actions
	ctx.Step(`^"([^"]*)" starts the "([^"]*)" flow$`, steps.startsFlow)
	ctx.Step(`^"([^"]*)" starts the "([^"]*)" flow in "([^"]*)" mode$`, steps.startsFlowInMode)
	ctx.Step(`^"([^"]*)" retries the verification$`, steps.retries)
	ctx.Step(`^"([^"]*)" resets the verification$`, steps.resets)
	ctx.Step(`^"([^"]*)" refreshes the verification$`, steps.refreshes)
	ctx.Step(`^I fetch the verification for "([^"]*)"$`, steps.fetch)
	ctx.Step(`^"([^"]*)" cancels wallet selection$`, steps.cancelsWalletSelection)
	ctx.Step(`^"([^"]*)" answers the dc_api request with a stale nonce$`, steps.answersWithStaleNonce)

	// Assertions
	ctx.Step(`^the verification for "([^"]*)" should reach "([^"]*)" within (\d+) seconds$`, steps.shouldReachWithin)
	ctx.Step(`^the verification for "([^"]*)" should stay "([^"]*)"$`, steps.shouldStay)
}

type verificationSteps struct {
	tc TestContext
	// script accumulates what the scenario asked the mock for.
	script map[string]interface{}
}

func (s *verificationSteps) putScript() error {
	return s.tc.Authorizer(http.MethodPut, "/_mock/scripts/default", s.script)
}

func (s *verificationSteps) scriptField(key string, value interface{}) error {
	if s.script == nil {
		s.script = map[string]interface{}{"statuses": []string{"pending"}, "policy": "pass"}
	}
	s.script[key] = value
	return s.putScript()
}

func (s *verificationSteps) walletKeepsPending(ctx context.Context) error {
	s.script = nil
	return s.scriptField("statuses", []string{"pending"})
}

func (s *verificationSteps) policyResultIs(ctx context.Context, result string) error {
	return s.scriptField("policy", result)
}

func (s *verificationSteps) authorizerUnavailable(ctx context.Context) error {
	if err := s.scriptField("createStatus", http.StatusServiceUnavailable); err != nil {
		return err
	}
	return s.scriptField("createMessage", "wallet network down")
}

func (s *verificationSteps) walletReports(ctx context.Context, status, subject string) error {
	authzID := s.tc.AuthorizerID(subject)
	if authzID == "" {
		return fmt.Errorf("no authorization known for %s", subject)
	}
	return s.tc.Authorizer(http.MethodPost, "/_mock/authorizations/"+url.PathEscape(authzID)+"/status",
		map[string]string{"status": status})
}

func (s *verificationSteps) startsFlow(ctx context.Context, subject, flow string) error {
	return s.start(subject, map[string]interface{}{"flow": flow})
}

func (s *verificationSteps) startsFlowInMode(ctx context.Context, subject, flow, mode string) error {
	body := map[string]interface{}{"flow": flow, "mode": mode}
	if mode == "dc_api" {
		body["capabilities"] = map[string]bool{"digitalCredentials": true}
	}
	return s.start(subject, body)
}

func (s *verificationSteps) start(subject string, body map[string]interface{}) error {
	if err := s.tc.POST(path(subject, ""), body); err != nil {
		return err
	}
	s.rememberStarted(subject)
	return nil
}

func (s *verificationSteps) retries(ctx context.Context, subject string) error {
	if err := s.tc.POST(path(subject, "/retry"), nil); err != nil {
		return err
	}
	s.rememberStarted(subject)
	return nil
}

func (s *verificationSteps) rememberStarted(subject string) {
	if s.tc.GetLastResponseStatus() != http.StatusCreated {
		return
	}
	authzID, _ := s.tc.GetResponseField("state.authorizerId") //nolint:errcheck // dc_api has none
	nonce, _ := s.tc.GetResponseField("state.request.nonce")  //nolint:errcheck // checked by later steps
	s.tc.RememberAttempt(subject, stringOf(authzID), stringOf(nonce))
}

func (s *verificationSteps) resets(ctx context.Context, subject string) error {
	return s.tc.DELETE(path(subject, ""))
}

func (s *verificationSteps) refreshes(ctx context.Context, subject string) error {
	return s.tc.POST(path(subject, "/refresh"), nil)
}

func (s *verificationSteps) fetch(ctx context.Context, subject string) error {
	return s.tc.GET(path(subject, ""))
}

func (s *verificationSteps) cancelsWalletSelection(ctx context.Context, subject string) error {
	return s.tc.POST(path(subject, "/dc-api"), map[string]interface{}{
		"nonce": s.tc.Nonce(subject),
		"error": map[string]string{"name": "AbortError", "message": "The user aborted a request."},
	})
}

func (s *verificationSteps) answersWithStaleNonce(ctx context.Context, subject string) error {
	return s.tc.POST(path(subject, "/dc-api"), map[string]interface{}{
		"nonce":    "00000000000000000000000000000000",
		"response": map[string]interface{}{"protocol": "openid4vp", "data": map[string]string{"vp_token": "x"}},
	})
}

func (s *verificationSteps) shouldReachWithin(ctx context.Context, subject, lifecycle string, seconds int) error {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	var last string
	for {
		if err := s.tc.GET(path(subject, "")); err != nil {
			return err
		}
		value, err := s.tc.GetResponseField("lifecycle")
		if err != nil {
			return err
		}
		last = stringOf(value)
		if last == lifecycle {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("verification for %s is %q after %ds, wanted %q", subject, last, seconds, lifecycle)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

func (s *verificationSteps) shouldStay(ctx context.Context, subject, lifecycle string) error {
	for i := 0; i < 3; i++ {
		if err := s.tc.GET(path(subject, "")); err != nil {
			return err
		}
		value, err := s.tc.GetResponseField("lifecycle")
		if err != nil {
			return err
		}
		if got := stringOf(value); got != lifecycle {
			return fmt.Errorf("verification for %s moved to %q, wanted it to stay %q", subject, got, lifecycle)
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil
}

func path(subject, suffix string) string {
	return "/verifications/" + url.PathEscape(subject) + suffix
}

func stringOf(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
