package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// DomainErrorsSuite tests the coded error primitives shared by every layer.
//
// Justification: handlers translate codes into status lines and the
// orchestration service branches on them, so wrapping must never lose a code.
type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorInterface() {
	s.Run("returns message when present", func() {
		err := &Error{Code: CodeUserCancelled, Message: "Wallet selection was cancelled"}
		s.Equal("Wallet selection was cancelled", err.Error())
	})

	s.Run("returns code when message is empty", func() {
		err := &Error{Code: CodeStale}
		s.Equal("stale", err.Error())
	})
}

func (s *DomainErrorsSuite) TestIsMatching() {
	s.Run("matches by code only", func() {
		a := &Error{Code: CodeUpstream, Message: "authorization not found"}
		b := &Error{Code: CodeUpstream, Message: "bad gateway"}
		s.True(a.Is(b))
	})

	s.Run("does not match different codes", func() {
		s.False((&Error{Code: CodeUpstream}).Is(&Error{Code: CodeValidation}))
	})

	s.Run("does not match non-domain errors", func() {
		s.False((&Error{Code: CodeNotFound}).Is(errors.New("not found")))
	})

	s.Run("works with errors.Is through chain", func() {
		inner := &Error{Code: CodeParseError, Message: "unknown event type"}
		outer := fmt.Errorf("decode frame: %w", inner)
		s.True(errors.Is(outer, &Error{Code: CodeParseError}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("preserves original domain code when wrapping domain error", func() {
		original := New(CodeTransitionNotAllowed, "success -> created")
		wrapped := Wrap(original, CodeInternal, "apply status")

		var domainErr *Error
		s.Require().True(errors.As(wrapped, &domainErr))
		s.Equal(CodeTransitionNotAllowed, domainErr.Code)
		s.Equal("apply status", domainErr.Message)
	})

	s.Run("uses provided code when wrapping non-domain error", func() {
		original := errors.New("dial tcp: connection refused")
		wrapped := Wrap(original, CodeUpstream, "create authorization")

		s.True(HasCode(wrapped, CodeUpstream))
		s.True(errors.Is(wrapped, original))
	})
}

func (s *DomainErrorsSuite) TestHasCode() {
	s.Run("finds code through error chain", func() {
		wrapped := fmt.Errorf("retry: %w", New(CodeValidation, "destination is required"))
		s.True(HasCode(wrapped, CodeValidation))
	})

	s.Run("returns false for nil error", func() {
		s.False(HasCode(nil, CodeNotFound))
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeUpstream, CodeOf(New(CodeUpstream, "boom")))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
	s.Equal(CodeInternal, CodeOf(nil))
}
