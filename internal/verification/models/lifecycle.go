package models

// Lifecycle is the local state of one verification attempt.
type Lifecycle string

const (
	LifecycleCreated       Lifecycle = "created"
	LifecyclePendingWallet Lifecycle = "pending_wallet"
	LifecycleProcessing    Lifecycle = "processing"
	LifecycleSuccess       Lifecycle = "success"
	LifecycleRejected      Lifecycle = "rejected"
	LifecycleExpired       Lifecycle = "expired"
	LifecycleError         Lifecycle = "error"
)

// AllLifecycles lists every state in declaration order.
func AllLifecycles() []Lifecycle {
	return []Lifecycle{
		LifecycleCreated,
		LifecyclePendingWallet,
		LifecycleProcessing,
		LifecycleSuccess,
		LifecycleRejected,
		LifecycleExpired,
		LifecycleError,
	}
}

func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleCreated, LifecyclePendingWallet, LifecycleProcessing,
		LifecycleSuccess, LifecycleRejected, LifecycleExpired, LifecycleError:
		return true
	}
	return false
}

func (l Lifecycle) String() string {
	return string(l)
}

// IsRecoverable reports whether the state is a failure the user may retry from.
func (l Lifecycle) IsRecoverable() bool {
	return l == LifecycleRejected || l == LifecycleExpired || l == LifecycleError
}

// IsSettled reports whether no further wallet or Authorizer input is expected.
func (l Lifecycle) IsSettled() bool {
	return l == LifecycleSuccess || l.IsRecoverable()
}

// IsWaiting reports whether the attempt is still waiting on the wallet.
func (l Lifecycle) IsWaiting() bool {
	return l == LifecyclePendingWallet || l == LifecycleProcessing
}

// CanTransitionTo checks the transition table. Self-transitions are handled by
// the caller as no-ops and are not listed here.
//
//	created        -> pending_wallet, error
//	pending_wallet -> processing, success, rejected, expired, error
//	processing     -> success, rejected, expired, error
//	success        -> (terminal)
//	rejected, expired, error -> created
func (l Lifecycle) CanTransitionTo(target Lifecycle) bool {
	switch l {
	case LifecycleCreated:
		return target == LifecyclePendingWallet || target == LifecycleError
	case LifecyclePendingWallet:
		return target == LifecycleProcessing || target == LifecycleSuccess ||
			target == LifecycleRejected || target == LifecycleExpired || target == LifecycleError
	case LifecycleProcessing:
		return target == LifecycleSuccess || target == LifecycleRejected ||
			target == LifecycleExpired || target == LifecycleError
	case LifecycleSuccess:
		return false
	case LifecycleRejected, LifecycleExpired, LifecycleError:
		return target == LifecycleCreated
	default:
		return false
	}
}

// RemoteStatus is the Authorizer's view of an authorization.
type RemoteStatus string

const (
	RemoteCreated    RemoteStatus = "created"
	RemotePending    RemoteStatus = "pending"
	RemoteAuthorized RemoteStatus = "authorized"
	RemoteRejected   RemoteStatus = "rejected"
	RemoteExpired    RemoteStatus = "expired"
	RemoteError      RemoteStatus = "error"
)

func (s RemoteStatus) IsValid() bool {
	switch s {
	case RemoteCreated, RemotePending, RemoteAuthorized, RemoteRejected, RemoteExpired, RemoteError:
		return true
	}
	return false
}

// IsTerminal reports whether the Authorizer will not change this status again.
func (s RemoteStatus) IsTerminal() bool {
	return s == RemoteAuthorized || s == RemoteRejected || s == RemoteExpired || s == RemoteError
}
