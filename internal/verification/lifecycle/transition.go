// Package lifecycle owns every change to a VerificationState. The functions
// here are pure: they take a state and return the next one, and the Machine
// is the single writer that persists the result.
package lifecycle

import (
	"fmt"
	"time"

	"eudi-storefront/internal/verification/authorizer"
	"eudi-storefront/internal/verification/models"
	dErrors "eudi-storefront/pkg/domain-errors"
)

// User-facing failure messages.
const (
	MsgUserCancelled   = "Wallet selection was cancelled"
	MsgRemoteRejected  = "The presentation was rejected"
	MsgRemoteExpired   = "The authorization request expired"
	MsgRemoteError     = "The Authorizer reported an error"
	MsgPollingTimedOut = "No answer from the wallet within the time limit"
)

// Transition moves st to target. A self-transition returns st unchanged. A
// move outside the table returns a TransitionNotAllowed error together with st
// carrying the error message and a refreshed UpdatedAt; the lifecycle and
// every other field stay as they were.
func Transition(st models.VerificationState, target models.Lifecycle, now time.Time) (models.VerificationState, error) {
	if st.Lifecycle == target {
		return st, nil
	}
	if !st.Lifecycle.CanTransitionTo(target) {
		err := dErrors.New(dErrors.CodeTransitionNotAllowed,
			fmt.Sprintf("transition not allowed: %s -> %s", st.Lifecycle, target))
		rejected := st
		rejected.LastError = models.Ptr(err.Error())
		rejected.UpdatedAt = advance(st.UpdatedAt, now)
		return rejected, err
	}
	next := st
	next.Lifecycle = target
	next.UpdatedAt = advance(st.UpdatedAt, now)
	return next, nil
}

// advance keeps UpdatedAt strictly increasing even when the clock does not move.
func advance(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Microsecond)
}

// MapRemoteStatus maps an Authorizer status onto a local lifecycle.
func MapRemoteStatus(remote models.RemoteStatus) (models.Lifecycle, error) {
	switch remote {
	case models.RemoteCreated:
		return models.LifecyclePendingWallet, nil
	case models.RemotePending:
		return models.LifecycleProcessing, nil
	case models.RemoteAuthorized:
		return models.LifecycleSuccess, nil
	case models.RemoteRejected:
		return models.LifecycleRejected, nil
	case models.RemoteExpired:
		return models.LifecycleExpired, nil
	case models.RemoteError:
		return models.LifecycleError, nil
	default:
		return "", dErrors.New(dErrors.CodeUpstream, fmt.Sprintf("unknown Authorizer status %q", remote))
	}
}

// Retry starts a new attempt from a recoverable failure. The previous
// authorization is dropped, never resumed.
func Retry(st models.VerificationState, req *models.VerificationRequest, mode models.Mode, now time.Time) (models.VerificationState, error) {
	next, err := Transition(st, models.LifecycleCreated, now)
	if err != nil {
		return next, err
	}
	return withAttempt(next, req, mode), nil
}

// Restart discards st and begins a new attempt on the same subject. Unlike
// Retry it is allowed from any lifecycle because the old record is replaced,
// not transitioned.
func Restart(st models.VerificationState, req *models.VerificationRequest, mode models.Mode, now time.Time) models.VerificationState {
	fresh := models.NewVerificationState(st.SubjectID, advance(st.UpdatedAt, now))
	fresh.Attempt = st.Attempt
	return withAttempt(fresh, req, mode)
}

func withAttempt(st models.VerificationState, req *models.VerificationRequest, mode models.Mode) models.VerificationState {
	st.Attempt++
	st.Mode = mode
	st.Request = req
	st.AuthorizerID = nil
	st.AuthorizationURL = nil
	st.ExpiresAt = nil
	st.Policy = nil
	st.DisclosedClaims = nil
	st.LastError = nil
	return st
}

// Opened records the Authorizer's acceptance and waits for the wallet.
func Opened(st models.VerificationState, authz *authorizer.Authorization, now time.Time) (models.VerificationState, error) {
	if st.Lifecycle == models.LifecyclePendingWallet {
		return st, nil
	}
	next, err := Transition(st, models.LifecyclePendingWallet, now)
	if err != nil {
		return next, err
	}
	next.AuthorizerID = models.Ptr(authz.ID)
	next.AuthorizationURL = authz.AuthorizeURL
	if !authz.ExpiresAt.IsZero() {
		next.ExpiresAt = models.Ptr(authz.ExpiresAt)
	}
	return next, nil
}

// AwaitingWallet moves a dc_api attempt into pending_wallet while the browser
// exchange is open. There is no authorization URL in this mode.
func AwaitingWallet(st models.VerificationState, now time.Time) (models.VerificationState, error) {
	return Transition(st, models.LifecyclePendingWallet, now)
}

// ApplyRemote applies a non-authorized Authorizer status. authorized must go
// through Succeed after the post-authorization fetch.
func ApplyRemote(st models.VerificationState, remote models.RemoteStatus, now time.Time) (models.VerificationState, error) {
	target, err := MapRemoteStatus(remote)
	if err != nil {
		return st, err
	}
	if target == models.LifecycleSuccess {
		return st, dErrors.New(dErrors.CodeInternal, "authorized status requires post-authorization fetch")
	}
	next, err := Transition(st, target, now)
	if err != nil {
		return next, err
	}
	if target != st.Lifecycle {
		switch target {
		case models.LifecycleRejected:
			next.LastError = models.Ptr(MsgRemoteRejected)
		case models.LifecycleExpired:
			next.LastError = models.Ptr(MsgRemoteExpired)
		case models.LifecycleError:
			next.LastError = models.Ptr(MsgRemoteError)
		}
	}
	return next, nil
}

// Succeed records the fetched policy and claims and ends in success.
func Succeed(st models.VerificationState, policy *models.VerificationPolicy, claims *models.NormalizedDisclosedClaims, now time.Time) (models.VerificationState, error) {
	if st.Lifecycle == models.LifecycleSuccess {
		return st, nil
	}
	next, err := Transition(st, models.LifecycleSuccess, now)
	if err != nil {
		return next, err
	}
	next.Policy = policy
	next.DisclosedClaims = claims
	next.LastError = nil
	return next, nil
}

// Fail ends the attempt in a recoverable failure state with msg as lastError.
// policy may be nil.
func Fail(st models.VerificationState, target models.Lifecycle, msg string, policy *models.VerificationPolicy, now time.Time) (models.VerificationState, error) {
	if !target.IsRecoverable() {
		return st, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("%s is not a failure state", target))
	}
	if st.Lifecycle == target {
		return st, nil
	}
	next, err := Transition(st, target, now)
	if err != nil {
		return next, err
	}
	next.LastError = models.Ptr(msg)
	if policy != nil {
		next.Policy = policy
	}
	next.DisclosedClaims = nil
	return next, nil
}

// Cancelled ends a dc_api attempt the user aborted. It is a recoverable
// outcome equivalent to rejected, never an error.
func Cancelled(st models.VerificationState, now time.Time) (models.VerificationState, error) {
	return Fail(st, models.LifecycleRejected, MsgUserCancelled, nil, now)
}

// Expired forces the attempt into expired after the polling ceiling.
func Expired(st models.VerificationState, now time.Time) (models.VerificationState, error) {
	return Fail(st, models.LifecycleExpired, MsgPollingTimedOut, nil, now)
}
