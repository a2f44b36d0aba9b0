package presentation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"eudi-storefront/internal/verification/claims"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/request"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/sentinel"
)

// DCAPIProtocol is the exchange protocol offered to navigator.credentials.get.
const DCAPIProtocol = "openid4vp-v1-unsigned"

// AbortErrorName is the DOMException name browsers report on cancellation.
const AbortErrorName = "AbortError"

// DCAPIRequest is one entry of digital.requests.
type DCAPIRequest struct {
	Protocol string      `json:"protocol"`
	Data     DCAPIParams `json:"data"`
}

// DCAPIParams is the unsigned OpenID4VP request carried in DCAPIRequest.
type DCAPIParams struct {
	ResponseType string       `json:"response_type"`
	ResponseMode string       `json:"response_mode"`
	Nonce        string       `json:"nonce"`
	ClientID     string       `json:"client_id,omitempty"`
	DCQLQuery    request.DCQL `json:"dcql_query"`
}

// NewDCAPIRequest projects req for the browser exchange, scoped to origin.
func NewDCAPIRequest(req *models.VerificationRequest, origin string) DCAPIRequest {
	params := DCAPIParams{
		ResponseType: "vp_token",
		ResponseMode: string(models.ModeDCAPI),
		Nonce:        req.Nonce,
		DCQLQuery:    request.ToDCQL(req),
	}
	if origin = strings.TrimRight(origin, "/"); origin != "" {
		params.ClientID = "origin:" + origin
	}
	return DCAPIRequest{Protocol: DCAPIProtocol, Data: params}
}

// DCAPIResponse is what navigator.credentials.get resolved with.
type DCAPIResponse struct {
	Protocol string          `json:"protocol"`
	Data     json.RawMessage `json:"data"`
}

// DCAPIError is what navigator.credentials.get rejected with.
type DCAPIError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// DCAPIResult is exactly one of Response or Error.
type DCAPIResult struct {
	Response *DCAPIResponse `json:"response,omitempty"`
	Error    *DCAPIError    `json:"error,omitempty"`
}

// Validate checks the result shape before it is delivered.
func (r DCAPIResult) Validate() error {
	if (r.Response == nil) == (r.Error == nil) {
		return dErrors.New(dErrors.CodeValidation, "exactly one of response or error is required")
	}
	if r.Response != nil && len(r.Response.Data) == 0 {
		return dErrors.New(dErrors.CodeValidation, "response.data is required")
	}
	if r.Error != nil && strings.TrimSpace(r.Error.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "error.name is required")
	}
	return nil
}

// Interpret turns a browser result into normalized claims or a coded error.
// An AbortError is CodeUserCancelled; any other browser error or a protocol
// mismatch is CodeUpstream.
func (r DCAPIResult) Interpret() (*models.NormalizedDisclosedClaims, error) {
	if r.Error != nil {
		if r.Error.Name == AbortErrorName {
			return nil, dErrors.New(dErrors.CodeUserCancelled, "Wallet selection was cancelled")
		}
		msg := r.Error.Name
		if r.Error.Message != "" {
			msg += ": " + r.Error.Message
		}
		return nil, dErrors.New(dErrors.CodeUpstream, "Digital Credentials request failed: "+msg)
	}
	if r.Response.Protocol != "" && r.Response.Protocol != DCAPIProtocol {
		return nil, dErrors.New(dErrors.CodeUpstream,
			fmt.Sprintf("unexpected Digital Credentials protocol %q", r.Response.Protocol))
	}
	return claims.Normalize(r.Response.Data), nil
}

// Exchange is the rendezvous between an attempt waiting on the browser and
// the HTTP request that delivers the browser's answer. Each pending exchange
// is keyed by subject and nonce, so an answer for a superseded attempt is
// never delivered to a newer one.
type Exchange struct {
	mu      sync.Mutex
	pending map[id.SubjectID]*Pending
}

// Pending is one open exchange. It accepts a delivery as soon as Open
// returns, before anyone waits on it.
type Pending struct {
	exchange *Exchange
	subject  id.SubjectID
	nonce    string
	result   chan DCAPIResult
}

// NewExchange creates an empty Exchange.
func NewExchange() *Exchange {
	return &Exchange{pending: make(map[id.SubjectID]*Pending)}
}

// Open registers an exchange for subject and nonce. A previously open
// exchange for the subject is superseded and its Wait returns
// sentinel.ErrStale.
func (e *Exchange) Open(subject id.SubjectID, nonce string) *Pending {
	p := &Pending{exchange: e, subject: subject, nonce: nonce, result: make(chan DCAPIResult, 1)}

	e.mu.Lock()
	if prev, ok := e.pending[subject]; ok {
		close(prev.result)
	}
	e.pending[subject] = p
	e.mu.Unlock()
	return p
}

// Wait blocks until the browser result is delivered, the exchange is
// superseded, or ctx ends. The exchange is closed when Wait returns.
func (p *Pending) Wait(ctx context.Context) (DCAPIResult, error) {
	defer p.Close()

	select {
	case <-ctx.Done():
		return DCAPIResult{}, ctx.Err()
	case res, ok := <-p.result:
		if !ok {
			return DCAPIResult{}, fmt.Errorf("exchange superseded: %w", sentinel.ErrStale)
		}
		return res, nil
	}
}

// Close withdraws the exchange without waiting. Closing twice is harmless.
func (p *Pending) Close() {
	p.exchange.mu.Lock()
	if p.exchange.pending[p.subject] == p {
		delete(p.exchange.pending, p.subject)
	}
	p.exchange.mu.Unlock()
}

// Deliver hands res to the attempt waiting for subject and nonce. It returns
// sentinel.ErrStale when no such attempt is open.
func (e *Exchange) Deliver(subject id.SubjectID, nonce string, res DCAPIResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[subject]
	if !ok || p.nonce != nonce {
		return fmt.Errorf("no open exchange for this attempt: %w", sentinel.ErrStale)
	}
	delete(e.pending, subject)
	p.result <- res
	return nil
}
