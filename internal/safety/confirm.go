package safety

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const defaultTokenTTL = 5 * time.Minute

// pending is an outstanding confirmation.
type pending struct {
	tool      string
	target    string
	createdAt time.Time
}

// ConfirmationTracker issues single-use, time-limited tokens for tools that
// change station state. A token only confirms the tool it was issued for.
type ConfirmationTracker struct {
	guarded map[string]struct{}
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	tokens map[string]pending
}

// ConfirmOption configures a ConfirmationTracker.
type ConfirmOption func(*ConfirmationTracker)

// WithTokenTTL sets how long a token stays valid.
func WithTokenTTL(ttl time.Duration) ConfirmOption {
	return func(ct *ConfirmationTracker) { ct.ttl = ttl }
}

// WithConfirmClock replaces time.Now.
func WithConfirmClock(now func() time.Time) ConfirmOption {
	return func(ct *ConfirmationTracker) { ct.now = now }
}

// NewConfirmationTracker returns a tracker guarding the named tools. A nil or
// empty slice guards nothing.
func NewConfirmationTracker(guardedTools []string, opts ...ConfirmOption) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		guarded: make(map[string]struct{}, len(guardedTools)),
		ttl:     defaultTokenTTL,
		now:     time.Now,
		tokens:  make(map[string]pending),
	}
	for _, tool := range guardedTools {
		ct.guarded[tool] = struct{}{}
	}
	for _, opt := range opts {
		opt(ct)
	}
	return ct
}

// NeedsConfirmation reports whether tool is guarded.
func (ct *ConfirmationTracker) NeedsConfirmation(tool string) bool {
	_, ok := ct.guarded[tool]
	return ok
}

// sweepExpired drops stale tokens. The caller must hold ct.mu.
func (ct *ConfirmationTracker) sweepExpired(now time.Time) {
	for token, p := range ct.tokens {
		if now.Sub(p.createdAt) > ct.ttl {
			delete(ct.tokens, token)
		}
	}
}

// RequestConfirmation creates a token for tool acting on target.
func (ct *ConfirmationTracker) RequestConfirmation(tool, target string) string {
	token := generateToken()
	now := ct.now()

	ct.mu.Lock()
	ct.sweepExpired(now)
	ct.tokens[token] = pending{tool: tool, target: target, createdAt: now}
	ct.mu.Unlock()

	return token
}

// Confirm consumes token and reports whether it was issued for tool and is
// still valid. A token is spent by the first call whatever the outcome.
func (ct *ConfirmationTracker) Confirm(tool, token string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	p, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	return p.tool == tool && ct.now().Sub(p.createdAt) <= ct.ttl
}

// TTL reports how long a freshly issued token stays valid.
func (ct *ConfirmationTracker) TTL() time.Duration { return ct.ttl }

// Pending returns the number of outstanding tokens.
func (ct *ConfirmationTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.tokens)
}

// generateToken returns a random hex token.
func generateToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b[:])
}
