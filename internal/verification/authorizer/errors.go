package authorizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	dErrors "eudi-storefront/pkg/domain-errors"
)

// ErrorCategory classifies Authorizer failures for logs and metrics. None of
// them is retried by the client.
type ErrorCategory string

const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorOutage         ErrorCategory = "provider_outage"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorRejected       ErrorCategory = "rejected_request"
	ErrorInternal       ErrorCategory = "internal"
	// ErrorCancelled means our own context ended the call, not the Authorizer.
	ErrorCancelled      ErrorCategory = "cancelled"
)

// UpstreamError is a failed Authorizer call. Message is the remote error text
// when the Authorizer sent one.
type UpstreamError struct {
	Category   ErrorCategory
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// Unwrap exposes both the transport cause and a CodeUpstream domain error so
// errors.Is and dErrors.HasCode work on either.
func (e *UpstreamError) Unwrap() []error {
	errs := []error{&dErrors.Error{Code: dErrors.CodeUpstream, Message: e.Message}}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newUpstreamError(op string, category ErrorCategory, status int, msg string, err error) *UpstreamError {
	return &UpstreamError{
		Category:   category,
		Operation:  op,
		StatusCode: status,
		Message:    msg,
		Err:        err,
	}
}

// Category extracts the category from an error chain.
func Category(err error) ErrorCategory {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Category
	}
	return ErrorInternal
}

func categoryForStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuthentication
	case status == http.StatusNotFound:
		return ErrorNotFound
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return ErrorTimeout
	case status >= 500:
		return ErrorOutage
	default:
		return ErrorRejected
	}
}

const maxRemoteMessage = 512

// remoteMessage pulls a human-readable message out of an error body. The
// Authorizer is inconsistent about the field name.
func remoteMessage(status int, body []byte) string {
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		for _, key := range []string{"message", "error_description", "detail", "error", "title"} {
			switch v := payload[key].(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					return v
				}
			case map[string]any:
				if m, ok := v["message"].(string); ok && m != "" {
					return m
				}
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		if len(text) > maxRemoteMessage {
			text = text[:maxRemoteMessage]
		}
		return text
	}
	return fmt.Sprintf("Authorizer responded with HTTP %d", status)
}
