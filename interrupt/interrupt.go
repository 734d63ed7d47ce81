// Package interrupt implements sigkill broadcast and cancellation tokens
// for in-flight AgentExecutions (spec.md §5/§6/§9's "coroutine-based
// cancellation" redesign). Grounded on the Controller/signal-channel idiom
// in runtime/agent/interrupt/controller.go, but stripped of Temporal signal
// channels: this package is a plain goroutine + broadcast-channel model, not
// a workflow-engine signal adapter, so it works the same under either
// engine implementation (see DESIGN.md "Engine (C13)").
package interrupt

import "sync"

// Token is a cancellation signal scoped to one completion_id. Closing the
// Done channel broadcasts to every goroutine selecting on it (tool runs, the planner
// stream, the loop itself); reading from a closed channel never blocks,
// so late subscribers observe cancellation immediately.
type Token struct {
	ch     chan struct{}
	once   sync.Once
	reason string
	mu     sync.Mutex
}

// NewToken constructs an un-signaled Token.
func NewToken() *Token {
	return &Token{ch: make(chan struct{})}
}

// Done returns the channel to select on. It stays open until Sigkill.
func (t *Token) Done() <-chan struct{} {
	return t.ch
}

// Sigkill broadcasts cancellation exactly once; subsequent calls after the
// first are no-ops (idempotent per spec.md §5 point 3: repeated sigkill
// must not panic on double-close).
func (t *Token) Sigkill(reason string) {
	t.mu.Lock()
	if t.reason == "" {
		t.reason = reason
	}
	t.mu.Unlock()
	t.once.Do(func() { close(t.ch) })
}

// Cancelled reports whether Sigkill has fired.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Reason returns the reason passed to the first Sigkill call, or "" if not
// yet cancelled.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Registry maps completion_id to its cancellation Token so an external
// sigkill request (an API call, a dropped SSE connection) can reach the
// in-flight loop goroutine without either side holding a direct reference
// to the other.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*Token
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]*Token)}
}

// Register creates (or returns the existing) Token for completionID. The
// loop calls this once at start; callers requesting cancellation call it
// to obtain the same Token regardless of ordering.
func (r *Registry) Register(completionID string) *Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tok, ok := r.tokens[completionID]; ok {
		return tok
	}
	tok := NewToken()
	r.tokens[completionID] = tok
	return tok
}

// Lookup returns the Token for completionID, if one has been registered.
func (r *Registry) Lookup(completionID string) (*Token, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[completionID]
	return tok, ok
}

// Sigkill cancels the run owning completionID, if registered. Returns
// false if no token is registered (the run already completed, or never
// started).
func (r *Registry) Sigkill(completionID, reason string) bool {
	tok, ok := r.Lookup(completionID)
	if !ok {
		return false
	}
	tok.Sigkill(reason)
	return true
}

// Release forgets completionID once its run has terminated, bounding
// Registry's memory to in-flight runs.
func (r *Registry) Release(completionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, completionID)
}
