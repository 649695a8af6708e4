// Package router implements DirectiveRouter: the name-based handler
// registry and the direct (non-queued) dispatch paths of the directive
// pipeline.
package router

import (
	"sync"

	directive "github.com/aurora-voice/directive-core"
)

// Option configures a Router at construction time.
type Option func(*Router)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l directive.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMetricRecorder sets the optional metrics sink.
func WithMetricRecorder(m directive.MetricRecorder) Option {
	return func(r *Router) { r.metrics = m }
}

// Router maps (namespace, name) keys to the single handler that owns
// them, and exposes the immediate and policy-aware dispatch paths. The
// routing table is protected by a readers-writers lock: Add/Remove take
// the exclusive lock; dispatch takes the shared lock only long enough to
// resolve a handler reference, then releases it before calling into
// handler code.
type Router struct {
	mu       sync.RWMutex
	handlers map[directive.Key]directive.Handler
	policies map[directive.Key]directive.BlockingPolicy
	shutdown bool

	logger  directive.Logger
	metrics directive.MetricRecorder
}

// New constructs an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		handlers: make(map[directive.Key]directive.Handler),
		policies: make(map[directive.Key]directive.BlockingPolicy),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// AddHandler registers every (namespace, name) key in handler's
// Configurations. Registration is all-or-nothing: if any key is already
// claimed by a different handler, no key is registered and AddHandler
// returns false. Re-adding a handler for keys it already owns succeeds
// without effect.
func (r *Router) AddHandler(h directive.Handler) bool {
	if h == nil {
		r.log().Warn("AddHandler called with nil handler")
		return false
	}

	cfg := h.Configurations()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key, owner := range r.handlers {
		if _, claimed := cfg[key]; claimed && owner != h {
			r.log().Warn("AddHandler conflict: key=%s already claimed", key)
			return false
		}
	}

	for key, policy := range cfg {
		r.handlers[key] = h
		r.policies[key] = policy
	}
	return true
}

// RemoveHandler unregisters exactly the keys handler claims. It fails
// (returns false, no partial mutation) if any of those keys is currently
// mapped to a different handler.
func (r *Router) RemoveHandler(h directive.Handler) bool {
	if h == nil {
		return false
	}

	cfg := h.Configurations()

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range cfg {
		if owner, ok := r.handlers[key]; ok && owner != h {
			r.log().Warn("RemoveHandler conflict: key=%s owned by a different handler", key)
			return false
		}
	}

	for key := range cfg {
		delete(r.handlers, key)
		delete(r.policies, key)
	}
	return true
}

// HandleImmediately looks up (namespace, name); if a handler owns the
// key, it invokes HandleImmediately on it and returns true, otherwise
// false. A handler call that panics is treated as refused and returns
// false.
func (r *Router) HandleImmediately(d directive.Directive) bool {
	h, _, ok := r.lookup(d.Key())
	if !ok {
		return false
	}

	r.metric("directive.immediate", d)
	return directive.RecoverHandlerCall(r.logger, d.Key(), d.MessageID, "HandleImmediately", func() {
		h.HandleImmediately(d)
	})
}

// PreHandle resolves the handler owning d's key and invokes its
// PreHandle synchronously. It returns the key's BlockingPolicy and
// whether a handler claimed the key and its PreHandle returned without
// panicking. Callers (the Processor) pass the same key to Handle/Cancel
// later, which resolve the owning handler again.
func (r *Router) PreHandle(d directive.Directive, token *directive.CompletionToken) (directive.BlockingPolicy, bool) {
	h, policy, ok := r.lookup(d.Key())
	if !ok {
		return directive.NonePolicy, false
	}

	if !directive.RecoverHandlerCall(r.logger, d.Key(), d.MessageID, "PreHandle", func() {
		h.PreHandle(d, token)
	}) {
		return directive.NonePolicy, false
	}
	return policy, true
}

// Handle resolves the handler owning key and invokes Handle(messageID)
// on it. It returns false if no handler owns key, or if the handler
// itself returns false (unknown message id or failed preparation).
func (r *Router) Handle(key directive.Key, messageID string) bool {
	h, _, ok := r.lookup(key)
	if !ok {
		return false
	}

	handled := false
	ran := directive.RecoverHandlerCall(r.logger, key, messageID, "Handle", func() {
		handled = h.Handle(messageID)
	})
	return ran && handled
}

// Cancel forwards to the handler's Cancel(messageID) if one is
// registered for key; it is a no-op otherwise.
func (r *Router) Cancel(key directive.Key, messageID string) {
	h, _, ok := r.lookup(key)
	if !ok {
		return
	}

	directive.RecoverHandlerCall(r.logger, key, messageID, "Cancel", func() {
		h.Cancel(messageID)
	})
}

// HandleWithPolicy is the atomic PreHandle-then-Handle convenience
// described by the pipeline's external contract: it resolves the
// handler, runs PreHandle followed by Handle(messageID), and returns
// (true, policy) on success or (false, directive.NonePolicy) if no
// handler claims the key.
func (r *Router) HandleWithPolicy(d directive.Directive, token *directive.CompletionToken) (bool, directive.BlockingPolicy) {
	policy, ok := r.PreHandle(d, token)
	if !ok {
		return false, directive.NonePolicy
	}
	if !r.Handle(d.Key(), d.MessageID) {
		return false, policy
	}
	return true, policy
}

// Shutdown atomically empties the routing table. Subsequent dispatch
// calls return not-handled.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	r.handlers = make(map[directive.Key]directive.Handler)
	r.policies = make(map[directive.Key]directive.BlockingPolicy)
}

func (r *Router) lookup(key directive.Key) (directive.Handler, directive.BlockingPolicy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.shutdown {
		return nil, directive.NonePolicy, false
	}
	h, ok := r.handlers[key]
	if !ok {
		return nil, directive.NonePolicy, false
	}
	return h, r.policies[key], true
}

func (r *Router) metric(name string, d directive.Directive) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordCount(name+"."+d.Name, 1)
}

func (r *Router) log() directive.Logger {
	if r.logger == nil {
		return directive.NewFmtLogger(nil)
	}
	return r.logger
}
