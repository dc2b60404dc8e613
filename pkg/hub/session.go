package hub

import (
	"crypto/subtle"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Gate is the process-wide operator session. It starts logged out and, once
// the configured operator logs in, stays logged in for the process lifetime.
type Gate struct {
	operator string
	secret   string
	loggedIn atomic.Bool
	limiter  *rate.Limiter
}

// NewGate builds a gate for one operator identity. attemptsPerMinute bounds
// login attempts from that identity; zero or less disables the limit.
func NewGate(operator, secret string, attemptsPerMinute int) *Gate {
	g := &Gate{operator: operator, secret: secret}
	if attemptsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(attemptsPerMinute)), attemptsPerMinute)
	}
	return g
}

// IsOperator reports whether identity is the configured operator, regardless
// of session state.
func (g *Gate) IsOperator(identity string) bool {
	return identity != "" && identity == g.operator
}

// IsAuthorized is true once logged in, and only for the operator identity.
func (g *Gate) IsAuthorized(identity string) bool {
	return g.loggedIn.Load() && g.IsOperator(identity)
}

// LoggedIn reports the session state.
func (g *Gate) LoggedIn() bool {
	return g.loggedIn.Load()
}

// AttemptLogin opens the gate when identity is the operator and secret is an
// exact match. A failed attempt leaves the state unchanged.
func (g *Gate) AttemptLogin(identity, secret string) error {
	if !g.IsOperator(identity) {
		return ErrUnauthorized
	}
	if g.limiter != nil && !g.limiter.Allow() {
		return ErrRateLimited
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(g.secret)) != 1 {
		return ErrUnauthorized
	}
	g.loggedIn.Store(true)
	return nil
}
