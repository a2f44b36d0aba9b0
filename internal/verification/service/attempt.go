package service

import (
	"context"
	"errors"
	"time"

	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/models"
	"eudi-storefront/internal/verification/presentation"
	"eudi-storefront/internal/verification/request"
	id "eudi-storefront/pkg/domain"
	dErrors "eudi-storefront/pkg/domain-errors"
	"eudi-storefront/pkg/platform/sentinel"
	pstrings "eudi-storefront/pkg/platform/strings"
)

// StartCommand asks for a new attempt.
type StartCommand struct {
	Context      request.Context
	Mode         models.Mode
	Capabilities models.Capabilities
}

// StartResult is what the storefront needs to continue on the client side.
// AuthorizeURL and DeliveryHint are set in direct_post mode, DCAPIRequest in
// dc_api mode.
type StartResult struct {
	State        models.VerificationState   `json:"state"`
	AuthorizeURL *string                    `json:"authorizeUrl,omitempty"`
	DeliveryHint presentation.DeliveryHint  `json:"deliveryHint,omitempty"`
	DCAPIRequest *presentation.DCAPIRequest `json:"dcApiRequest,omitempty"`
}

// Start begins a new attempt for the command's subject. A recoverable
// failure is retried in place; any other existing state is replaced. The
// request is built and validated before anything reaches the network.
func (s *Service) Start(ctx context.Context, cmd StartCommand) (*StartResult, error) {
	subject := cmd.Context.SubjectID
	mode, err := presentation.SelectMode(cmd.Mode, cmd.Capabilities)
	if err != nil {
		return nil, err
	}

	current, err := s.machine.Get(ctx, subject)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	bc := cmd.Context
	if bc.PreviousNonce == "" {
		bc.PreviousNonce = current.Nonce()
	}
	req, err := s.builder.Build(bc)
	if err != nil {
		return nil, err
	}

	s.stopRun(subject)
	st, err := s.machine.Update(ctx, subject, "start", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsRecoverable() {
			return lifecycle.Retry(cur, req, mode, now)
		}
		return lifecycle.Restart(cur, req, mode, now), nil
	})
	if err != nil {
		return nil, err
	}
	return s.open(ctx, st, cmd.Capabilities)
}

// Retry starts a new attempt from a recoverable failure, renewing the
// previous request with a fresh nonce. The old authorization is never
// resumed. Retrying from any other state is TransitionNotAllowed.
func (s *Service) Retry(ctx context.Context, subject id.SubjectID, caps models.Capabilities) (*StartResult, error) {
	current, err := s.machine.Get(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no verification for this subject")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	mode := current.Mode
	if mode == models.ModeDCAPI && !caps.DigitalCredentials {
		mode = models.ModeDirectPost
	}
	req, err := s.builder.Renew(current.Request)
	if err != nil {
		return nil, err
	}

	st, err := s.machine.UpdateIfCurrent(ctx, subject, current.Nonce(), "retry", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		return lifecycle.Retry(cur, req, mode, now)
	})
	if errors.Is(err, sentinel.ErrStale) {
		return nil, dErrors.New(dErrors.CodeStale, "the verification changed while retrying")
	}
	if err != nil {
		return nil, err
	}
	s.stopRun(subject)
	return s.open(ctx, st, caps)
}

// open performs the mode-specific opening step of a freshly created attempt.
func (s *Service) open(ctx context.Context, st models.VerificationState, caps models.Capabilities) (*StartResult, error) {
	if s.metrics != nil {
		s.metrics.IncrementAttemptsStarted(string(st.Mode), string(st.Request.Flow))
	}
	s.logger.InfoContext(ctx, "verification attempt started",
		"subject_id", st.SubjectID,
		"attempt", st.Attempt,
		"mode", st.Mode,
		"flow", st.Request.Flow,
		"nonce_prefix", pstrings.Prefix(st.Nonce(), 8),
	)
	if st.Mode == models.ModeDCAPI {
		return s.openDCAPI(ctx, st)
	}
	return s.openDirectPost(ctx, st, caps)
}

func (s *Service) openDirectPost(ctx context.Context, st models.VerificationState, caps models.Capabilities) (*StartResult, error) {
	subject, nonce := st.SubjectID, st.Nonce()

	authz, err := s.authorizer.CreateAuthorization(ctx, nonce, models.ModeDirectPost, request.ToDCQL(st.Request))
	if err == nil && authz.Nonce != "" && authz.Nonce != nonce {
		err = dErrors.New(dErrors.CodeUpstream, "Authorizer answered for a different nonce")
	}
	if err != nil {
		s.failAttempt(ctx, subject, nonce, "create_authorization", err)
		return nil, err
	}

	st, err = s.machine.UpdateIfCurrent(ctx, subject, nonce, "authorization_created", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		return lifecycle.Opened(cur, authz, now)
	})
	if errors.Is(err, sentinel.ErrStale) {
		s.dropStale(ctx, subject, "create_authorization")
		return &StartResult{State: st}, nil
	}
	if err != nil {
		return nil, err
	}

	s.launch(subject, nonce, func(runCtx context.Context) {
		s.poll(runCtx, subject, nonce, authz.ID)
	})
	return &StartResult{
		State:        st,
		AuthorizeURL: authz.AuthorizeURL,
		DeliveryHint: presentation.HintFor(caps),
	}, nil
}

func (s *Service) openDCAPI(ctx context.Context, st models.VerificationState) (*StartResult, error) {
	subject, nonce := st.SubjectID, st.Nonce()

	pending := s.exchange.Open(subject, nonce)
	st, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "dc_api_opened", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		return lifecycle.AwaitingWallet(cur, now)
	})
	if errors.Is(err, sentinel.ErrStale) {
		pending.Close()
		s.dropStale(ctx, subject, "dc_api_open")
		return &StartResult{State: st}, nil
	}
	if err != nil {
		pending.Close()
		return nil, err
	}

	s.launch(subject, nonce, func(runCtx context.Context) {
		s.awaitBrowser(runCtx, subject, nonce, pending)
	})
	dc := presentation.NewDCAPIRequest(st.Request, s.origin)
	return &StartResult{State: st, DCAPIRequest: &dc}, nil
}

// poll drives a direct_post attempt until it settles, fails or passes the
// ceiling. The ceiling is enforced here, whether or not the Authorizer ever
// answers.
func (s *Service) poll(ctx context.Context, subject id.SubjectID, nonce string, authzID id.AuthorizationID) {
	err := s.poller.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		remote, err := s.authorizer.GetStatus(ctx, authzID)
		if err != nil {
			return false, err
		}
		return s.applyRemote(ctx, subject, nonce, authzID, remote)
	})

	switch {
	case err == nil:
	case ctx.Err() != nil:
		// superseded or shutting down
	case errors.Is(err, presentation.ErrCeilingReached):
		s.expire(ctx, subject, nonce)
	case errors.Is(err, sentinel.ErrStale):
		s.dropStale(ctx, subject, "poll")
	case dErrors.HasCode(err, dErrors.CodeTransitionNotAllowed):
		// already failed by protocolViolation
	default:
		s.failAttempt(ctx, subject, nonce, "poll", err)
	}
}

// expire forces a waiting attempt into expired after the ceiling. Any other
// state is left alone; created has no edge to expired.
func (s *Service) expire(ctx context.Context, subject id.SubjectID, nonce string) {
	_, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, "polling_ceiling", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if !cur.Lifecycle.IsWaiting() {
			return cur, nil
		}
		return lifecycle.Expired(cur, now)
	})
	switch {
	case errors.Is(err, sentinel.ErrStale):
		s.dropStale(ctx, subject, "expire")
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to expire attempt", "subject_id", subject, "error", err)
	default:
		s.logger.InfoContext(ctx, "attempt expired after polling ceiling",
			"subject_id", subject,
			"ceiling", s.poller.Schedule().Ceiling,
		)
	}
}

// failAttempt ends the attempt in error with cause's message, unless it has
// already settled.
func (s *Service) failAttempt(ctx context.Context, subject id.SubjectID, nonce, stage string, cause error) {
	s.logger.WarnContext(ctx, "verification attempt failed",
		"subject_id", subject,
		"stage", stage,
		"error", cause,
	)
	_, err := s.machine.UpdateIfCurrent(ctx, subject, nonce, stage+"_failed", func(cur models.VerificationState, now time.Time) (models.VerificationState, error) {
		if cur.Lifecycle.IsSettled() {
			return cur, nil
		}
		return lifecycle.Fail(cur, models.LifecycleError, cause.Error(), nil, now)
	})
	switch {
	case errors.Is(err, sentinel.ErrStale):
		s.dropStale(ctx, subject, stage)
	case err != nil:
		s.logger.ErrorContext(ctx, "failed to record attempt failure", "subject_id", subject, "error", err)
	}
}
