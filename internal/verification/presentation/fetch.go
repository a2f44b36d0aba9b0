package presentation

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"eudi-storefront/internal/platform/tracer"
	"eudi-storefront/internal/verification/authorizer"
	"eudi-storefront/internal/verification/claims"
	"eudi-storefront/internal/verification/models"
	id "eudi-storefront/pkg/domain"
)

// AuthorizedFetcher reads the results of an authorized presentation.
type AuthorizedFetcher interface {
	GetPolicyResponse(ctx context.Context, authzID id.AuthorizationID) (json.RawMessage, error)
	GetCredentials(ctx context.Context, authzID id.AuthorizationID) (json.RawMessage, error)
}

// Outcome is the post-authorization result.
type Outcome struct {
	Policy *models.VerificationPolicy
	Claims *models.NormalizedDisclosedClaims
}

// FetchAuthorized fetches the policy response and the disclosed credentials
// concurrently. If either fetch fails the whole step fails; there is no
// partial outcome.
func FetchAuthorized(ctx context.Context, f AuthorizedFetcher, t tracer.Tracer, authzID id.AuthorizationID) (out *Outcome, err error) {
	if t == nil {
		t = tracer.NewNoop()
	}
	ctx, span := t.Start(ctx, tracer.SpanPostAuthorization,
		tracer.String(tracer.AttrAuthorizationID, string(authzID)),
	)
	defer func() { span.End(err) }()

	g, gctx := errgroup.WithContext(ctx)

	var (
		policy    *models.VerificationPolicy
		disclosed *models.NormalizedDisclosedClaims
	)
	g.Go(func() error {
		raw, err := f.GetPolicyResponse(gctx, authzID)
		if err != nil {
			return err
		}
		p, err := authorizer.ParsePolicy(raw)
		if err != nil {
			return fmt.Errorf("parse policy response: %w", err)
		}
		policy = p
		return nil
	})
	g.Go(func() error {
		raw, err := f.GetCredentials(gctx, authzID)
		if err != nil {
			return err
		}
		disclosed = claims.Normalize(raw)
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	span.SetAttributes(tracer.String("policy.overall", string(policy.Overall)))
	return &Outcome{Policy: policy, Claims: disclosed}, nil
}
