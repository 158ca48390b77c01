// Package captcha is the boundary to the proof-of-humanity widget. A missing
// or misbehaving widget degrades to "no captcha available".
package captcha

import "sync"

type Widget interface {
	ResponseToken() string
	Reset()
}

// Token returns the widget's current response, or "" when there is no
// widget or it fails.
func Token(w Widget) (token string) {
	if w == nil {
		return ""
	}
	defer func() {
		if recover() != nil {
			token = ""
		}
	}()
	return w.ResponseToken()
}

// Reset clears the widget so the visitor can solve it again. It reports
// whether a reset actually happened.
func Reset(w Widget) (ok bool) {
	if w == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	w.Reset()
	return true
}

// Static hands out a token supplied by the operator, e.g. one pasted from a
// browser or a provider test key. Reset consumes it since tokens are
// single-use.
type Static struct {
	mu     sync.Mutex
	token  string
	resets int
}

var _ Widget = (*Static)(nil)

func NewStatic(token string) *Static {
	return &Static{token: token}
}

func (s *Static) ResponseToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Static) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.resets++
}

// Set replaces the token, as when the visitor solves the challenge again.
func (s *Static) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Static) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
