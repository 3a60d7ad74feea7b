package sdk

import (
	"sync"

	"github.com/otpless/loginpage/pkg/types"
)

// resultSlot holds the listener of one flow and fires it at most once.
type resultSlot struct {
	mu       sync.Mutex
	listener Listener
	fired    bool
}

func newResultSlot(listener Listener) *resultSlot {
	return &resultSlot{listener: listener}
}

// take returns the listener the first time it is called and clears the
// slot. Later calls return ok=false.
func (s *resultSlot) take() (Listener, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fired {
		return nil, false
	}
	s.fired = true
	l := s.listener
	s.listener = nil
	return l, true
}

func (s *resultSlot) spent() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// describe summarizes a result for logs without leaking tokens.
func describe(res types.AuthResult) string {
	if res.IsSuccess() {
		return "success"
	}
	return string(res.ErrorType) + "/" + res.ErrorMessage
}
