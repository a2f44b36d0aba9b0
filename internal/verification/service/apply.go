package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eudi-storefront/internal/verification/events"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/presentation"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/sentinel"
)

// Messages recorded when disclosed claims do not satisfy the flow.
const (
	msgLicenceCategory = "Driving licence does not cover category %s"
	msgAgeNotMet       = "Age requirement not met"
	msgPostAuthFailed  = "Post-authorization processing failed: "
)

// applyRemote applies one fetched Authorizer status to the attempt that
// issued the fetch. It reports whether the attempt has settled. A result for
// a superseded attempt returns sentinel.ErrStale. A status that breaks the
// transition table is recorded, then the attempt is failed.
func (s *Service) applyRemote(ctx context.Context, subject id.SubjectID, nonce string, authzID id.AuthorizationID, remote models.RemoteStatus) (bool, error) {
	target, err := lifecycle.MapRemoteStatus(remote)
	if err != nil {
		return false, err
	}
	if target == models.LifecycleSuccess {
		return s.completeAuthorized(ctx, subject, nonce, authzID)
	}

	next, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "status:"+string(remote), func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsSettled() {
			return cur, nil
		}
		return lifecycle.ApplyRemote(cur, remote, now)
	})
	if dErrors.HasCode(err, dErrors.CodeTransitionNotAllowed) {
		return true, s.protocolViolation(ctx, subject, nonce, remote, err)
	}
	if err != nil {
		return false, err
	}
	return next.Lifecycle.IsSettled(), nil
}

// completeAuthorized fetches the post-authorization results and settles the
// attempt. Either fetch failing ends in error, never in success.
func (s *Service) completeAuthorized(ctx context.Context, subject id.SubjectID, nonce string, authzID id.AuthorizationID) (bool, error) {
	current, err := s.machine.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, fmt.Errorf("subject %s was reset: %w", subject, sentinel.ErrStale)
	}
	if err != nil {
		return false, err
	}
	if !current.IsCurrent(nonce) {
		return false, sentinel.ErrStale
	}
	if current.Lifecycle.IsSettled() {
		return true, nil
	}
	if !current.Lifecycle.CanTransitionTo(models.LifecycleSuccess) {
		_, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "status:authorized", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
			return lifecycle.Transition(cur, models.LifecycleSuccess, now)
		})
		if !dErrors.HasCode(err, dErrors.CodeTransitionNotAllowed) {
			return false, err
		}
		return true, s.protocolViolation(ctx, subject, nonce, models.RemoteAuthorized, err)
	}

	outcome, fetchErr := presentation.FetchAuthorized(ctx, s.authorizer, s.tracer, authzID)
	if fetchErr != nil && ctx.Err() != nil {
		return false, ctx.Err()
	}
	if fetchErr != nil {
		s.logger.WarnContext(ctx, "post-authorization fetch failed",
			"subject_id", subject,
			"authorizer_id", authzID,
			"error", fetchErr,
		)
	}

	next, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "status:authorized", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsSettled() {
			return cur, nil
		}
		if fetchErr != nil {
			return lifecycle.Fail(cur, models.LifecycleError, msgPostAuthFailed+fetchErr.Error(), nil, now)
		}
		return settle(cur, outcome.Policy, outcome.Claims, now)
	})
	if err != nil {
		return false, err
	}
	return next.Lifecycle.IsSettled(), nil
}

// protocolViolation fails the attempt after an out-of-order status. The
// rejected transition itself was already recorded by the machine.
func (s *Service) protocolViolation(ctx context.Context, subject id.SubjectID, nonce string, remote models.RemoteStatus, cause error) error {
	s.logger.ErrorContext(ctx, "Authorizer status violates the transition table",
		"subject_id", subject,
		"remote_status", remote,
		"error", cause,
	)
	_, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "protocol_violation", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsSettled() {
			return cur, nil
		}
		return lifecycle.Fail(cur, models.LifecycleError, cause.Error(), nil, now)
	})
	if err != nil && !errors.Is(err, sentinel.ErrStale) {
		return err
	}
	return cause
}

// settle decides the final lifecycle once the wallet's answer is in: a
// failing policy or unmet flow requirement rejects, otherwise success.
func settle(cur models.VerificationState, policy *models.VerificationPolicy, disclosed *models.NormalizedDisclosedClaims, now time.Time) (models.VerificationState, error) {
	if policy != nil && policy.Overall == models.PolicyFail {
		return lifecycle.Fail(cur, models.LifecycleRejected, policy.FailureSummary(), policy, now)
	}
	if msg := unmetRequirement(cur.Request, disclosed); msg != "" {
		return lifecycle.Fail(cur, models.LifecycleRejected, msg, policy, now)
	}
	return lifecycle.Succeed(cur, policy, disclosed, now)
}

func unmetRequirement(req *models.VerificationRequest, disclosed *models.NormalizedDisclosedClaims) string {
	if req == nil {
		return ""
	}
	if cat := req.Requirements.VehicleCategory; cat != "" && !disclosed.HasDrivingPrivilege(cat) {
		return fmt.Sprintf(msgLicenceCategory, cat)
	}
	if age := req.Requirements.MinimumAge; age != "" {
		if over, ok := disclosed.AgeOver(age); !ok || !over {
			return msgAgeNotMet
		}
	}
	return ""
}

// Refresh performs one status fetch for a direct_post attempt and applies it.
// It is the client-driven alternative to the background poller.
func (s *Service) Refresh(ctx context.Context, subject id.SubjectID) (*models.VerificationState, error) {
	current, err := s.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	if current.Lifecycle.IsSettled() {
		return current, nil
	}
	if current.Mode != models.ModeDirectPost || current.AuthorizerID == nil {
		return nil, dErrors.New(dErrors.CodePrecondition, "only an opened direct_post attempt can be refreshed")
	}
	if err := s.fetchAndApply(ctx, *current, "refresh"); err != nil {
		return nil, err
	}
	return s.Get(ctx, subject)
}

// HandleCallback reacts to an Authorizer push. The body is only a hint: the
// status is re-fetched and applied the same way the poller would.
func (s *Service) HandleCallback(ctx context.Context, authzID id.AuthorizationID, reported models.RemoteStatus) (*models.VerificationState, error) {
	if !reported.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown status %q", reported))
	}
	subject, err := s.machine.SubjectFor(ctx, authzID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown authorization")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve authorization")
	}

	s.publish(subject, events.CallbackReceived{
		SubjectID:       string(subject),
		AuthorizationID: string(authzID),
		Status:          string(reported),
	})

	current, err := s.Get(ctx, subject)
	if err != nil {
		return nil, err
	}
	if current.Authorizer() != authzID || current.Lifecycle.IsSettled() {
		return current, nil
	}
	if err := s.fetchAndApply(ctx, *current, "callback"); err != nil {
		return nil, err
	}
	return s.Get(ctx, subject)
}

func (s *Service) fetchAndApply(ctx context.Context, current models.VerificationState, stage string) error {
	subject, nonce, authzID := current.SubjectID, current.Nonce(), current.Authorizer()

	remote, err := s.authorizer.GetStatus(ctx, authzID)
	if err != nil {
		s.failAttempt(ctx, subject, nonce, stage, err)
		return err
	}
	if _, err := s.applyRemote(ctx, subject, nonce, authzID, remote); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrStale):
			s.dropStale(ctx, subject, stage)
		case dErrors.HasCode(err, dErrors.CodeTransitionNotAllowed):
			// recorded on the state as error
		default:
			s.failAttempt(ctx, subject, nonce, stage, err)
			return err
		}
	}
	return nil
}

// SubmitDCAPIResponse delivers the browser's answer to the waiting dc_api
// attempt and returns the state it settled in.
func (s *Service) SubmitDCAPIResponse(ctx context.Context, subject id.SubjectID, nonce string, res presentation.DCAPIResult) (*models.VerificationState, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	r, running := s.runFor(subject, nonce)
	if err := s.exchange.Deliver(subject, nonce, res); err != nil {
		s.dropStale(ctx, subject, "dc_api_deliver")
		return nil, dErrors.New(dErrors.CodeStale, "no dc_api exchange is open for this attempt")
	}
	if running {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Get(ctx, subject)
}

// awaitBrowser waits for the dc_api answer. There is no local timeout; the
// browser owns cancellation.
func (s *Service) awaitBrowser(ctx context.Context, subject id.SubjectID, nonce string, pending *presentation.Pending) {
	res, err := pending.Wait(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrStale) {
			s.dropStale(ctx, subject, "dc_api_await")
		}
		return
	}

	disclosed, interpretErr := res.Interpret()
	_, err = s.machine.UpdateIfCurrent(ctx, subject, nonce, "dc_api_response", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsSettled() {
			return cur, nil
		}
		switch {
		case dErrors.HasCode(interpretErr, dErrors.CodeUserCancelled):
			return lifecycle.Cancelled(cur, now)
		case interpretErr != nil:
			return lifecycle.Fail(cur, models.LifecycleError, interpretErr.Error(), nil, now)
		}
		return settle(cur, nil, disclosed, now)
	})
	switch {
	case errors.Is(err, sentinel.ErrStale):
		s.dropStale(ctx, subject, "dc_api_response")
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to apply dc_api response", "subject_id", subject, "error", err)
	}
}

func (s *Service) publish(subject id.SubjectID, p events.Payload) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(subject, p); err != nil {
		s.logger.Warn("event publish failed", "subject_id", subject, "type", p.EventType(), "error", err)
	}
}
