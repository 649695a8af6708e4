// Package processor implements DirectiveProcessor: the dialog-scoped,
// ordered execution stage of the directive pipeline. It owns a single
// handling queue and worker goroutine, and cancels directives whose
// dialog-request id no longer matches the current one.
package processor

import (
	"context"
	"sync"

	directive "github.com/aurora-voice/directive-core"
	"github.com/aurora-voice/directive-core/gate"
	"github.com/aurora-voice/directive-core/router"
)

// Option configures a Processor at construction time.
type Option func(*Processor)

// WithLogger stores l on the Processor. The Processor's own code paths
// do not write log lines.
func WithLogger(l directive.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithMetricRecorder sets the optional metrics sink.
func WithMetricRecorder(m directive.MetricRecorder) Option {
	return func(p *Processor) { p.metrics = m }
}

type entry struct {
	d        directive.Directive
	dialogID string
	policy   directive.BlockingPolicy
	token    *directive.CompletionToken

	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// Processor owns a dialog-scoped handling queue and a single worker
// goroutine that drains it, admitting directives through the
// BlockingPolicyGate before invoking Handle on the Router.
type Processor struct {
	mu sync.Mutex

	router *router.Router
	gate   *gate.Gate

	logger  directive.Logger
	metrics directive.MetricRecorder

	dialogID     string
	enabled      bool
	shuttingDown bool

	queue   []*entry
	tracked map[string]*entry

	wakeCh chan struct{}
	doneCh chan struct{}

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	handling sync.WaitGroup
}

// New constructs a Processor wired to router and gate, and starts its
// worker goroutine immediately.
func New(r *router.Router, g *gate.Gate, opts ...Option) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		router:         r,
		gate:           g,
		enabled:        true,
		tracked:        make(map[string]*entry),
		wakeCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	go p.run()
	return p
}

// CurrentDialogRequestID returns the dialog id entries are currently
// being admitted against.
func (p *Processor) CurrentDialogRequestID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dialogID
}

// SetDialogRequestID atomically replaces the current dialog id. Every
// tracked entry (queued, admitting, or handling) whose dialog id differs
// from s is cancelled: the Router's Cancel is invoked and the entry is
// dropped, before SetDialogRequestID returns.
func (p *Processor) SetDialogRequestID(s string) {
	p.mu.Lock()
	p.dialogID = s
	toCancel := make([]*entry, 0, len(p.tracked))
	for _, e := range p.tracked {
		if e.dialogID != s {
			toCancel = append(toCancel, e)
		}
	}
	p.mu.Unlock()

	for _, e := range toCancel {
		p.cancelEntry(e)
	}
}

// OnDirective attempts to accept d into the Processor. It returns true
// if accepted. A directive with an empty dialog id is accepted under
// the current dialog id at the moment of acceptance; one whose dialog id
// matches the current id is accepted as-is; any other mismatch is
// rejected. On acceptance, PreHandle is invoked synchronously via the
// Router; if no handler claims the key, OnDirective returns false.
func (p *Processor) OnDirective(d directive.Directive) bool {
	p.mu.Lock()
	if p.shuttingDown || !p.enabled {
		p.mu.Unlock()
		return false
	}
	current := p.dialogID
	var effective string
	switch {
	case d.DialogRequestID == "":
		effective = current
	case d.DialogRequestID == current:
		effective = current
	default:
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	token := directive.NewCompletionToken()
	policy, ok := p.router.PreHandle(d, token)
	if !ok {
		return false
	}

	e := &entry{
		d:        d,
		dialogID: effective,
		policy:   policy,
		token:    token,
		cancelCh: make(chan struct{}),
	}

	p.mu.Lock()
	if p.shuttingDown || !p.enabled {
		p.mu.Unlock()
		p.router.Cancel(d.Key(), d.MessageID)
		return false
	}
	p.queue = append(p.queue, e)
	p.tracked[d.MessageID] = e
	p.broadcastLocked()
	p.mu.Unlock()

	p.metric("directive.accepted", d)
	return true
}

// Enable resumes intake.
func (p *Processor) Enable() {
	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
}

// Disable stops intake and forces the current dialog id to empty,
// cancelling every tracked entry that does not already carry an empty
// dialog id.
func (p *Processor) Disable() {
	p.mu.Lock()
	p.enabled = false
	p.mu.Unlock()
	p.SetDialogRequestID("")
}

// QueueDepth reports how many entries are waiting to be dequeued by the
// worker. It is a point-in-time snapshot, useful for telemetry.
func (p *Processor) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown drains and cancels every tracked entry, stops the worker
// goroutine, and joins it. It is idempotent.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		<-p.doneCh
		p.handling.Wait()
		return
	}
	p.shuttingDown = true
	p.enabled = false
	p.queue = nil
	toCancel := make([]*entry, 0, len(p.tracked))
	for _, e := range p.tracked {
		toCancel = append(toCancel, e)
	}
	p.broadcastLocked()
	p.mu.Unlock()

	p.shutdownCancel()
	for _, e := range toCancel {
		p.cancelEntry(e)
	}
	<-p.doneCh
	p.handling.Wait()
}

// run is the handling thread: it waits for a queued entry or a shutdown
// signal, then drives each entry through re-check, admission, and
// handling.
func (p *Processor) run() {
	defer close(p.doneCh)
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shuttingDown {
			wake := p.wakeCh
			p.mu.Unlock()
			<-wake
			p.mu.Lock()
		}
		if len(p.queue) == 0 && p.shuttingDown {
			p.mu.Unlock()
			return
		}
		e := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.process(e)
	}
}

// process admits e through the gate and starts its handler, then hands
// off the wait for completion/cancellation to a separate goroutine so
// the worker can dequeue the next entry immediately. This is what lets
// directives with non-conflicting BlockingPolicies be in the Handling
// state concurrently: the gate governs how many are in flight, not this
// loop.
func (p *Processor) process(e *entry) {
	if e.dialogID != p.CurrentDialogRequestID() {
		p.cancelEntry(e)
		return
	}

	if err := p.gate.WaitUntilAdmitted(p.shutdownCtx, e.cancelCh, e.d.MessageID, e.policy); err != nil {
		p.cancelEntry(e)
		return
	}

	select {
	case <-e.cancelCh:
		// cancelEntry's close(e.cancelCh) can land between the gate's
		// internal cancellation check and the admission it just granted;
		// when that happens e is now held despite having been cancelled.
		// Release it here instead of starting the handler.
		p.cancelEntry(e)
		return
	default:
	}

	if !p.router.Handle(e.d.Key(), e.d.MessageID) {
		p.metric("directive.handle_refused", e.d)
		p.cancelEntry(e)
		return
	}

	p.metric("directive.handling", e.d)
	p.handling.Add(1)
	go p.awaitOutcome(e)
}

// awaitOutcome blocks until e's handler completes or e is cancelled,
// then releases the gate and untracks e. It runs independently of the
// worker loop so one slow handler cannot stall admission of the next
// queued entry.
func (p *Processor) awaitOutcome(e *entry) {
	defer p.handling.Done()
	select {
	case <-e.token.Done():
		p.completeEntry(e)
	case <-e.cancelCh:
		p.cancelEntry(e)
	}
}

// cancelEntry cancels e exactly once, regardless of whether the call
// comes from the worker goroutine or from SetDialogRequestID/Disable/
// Shutdown running on another goroutine. gate.Release is deliberately
// called outside the Once: cancelEntry can fire once before e is ever
// admitted (a no-op release there, since the gate has no record of it
// yet) and once more afterward, when awaitOutcome observes the already
// closed cancelCh — that second call is the one that must actually
// free e's mediums. gate.Release and untrack are both no-ops once
// already applied, so calling them unconditionally on every invocation
// is safe.
func (p *Processor) cancelEntry(e *entry) {
	e.cancelOnce.Do(func() {
		close(e.cancelCh)
		p.router.Cancel(e.d.Key(), e.d.MessageID)
		p.metric("directive.cancelled", e.d)
	})
	p.gate.Release(e.d.MessageID)
	p.untrack(e)
}

func (p *Processor) completeEntry(e *entry) {
	p.gate.Release(e.d.MessageID)
	p.untrack(e)
	p.metric("directive.completed", e.d)
}

func (p *Processor) untrack(e *entry) {
	p.mu.Lock()
	delete(p.tracked, e.d.MessageID)
	if len(p.queue) > 0 {
		filtered := make([]*entry, 0, len(p.queue))
		for _, x := range p.queue {
			if x != e {
				filtered = append(filtered, x)
			}
		}
		p.queue = filtered
	}
	p.mu.Unlock()
}

func (p *Processor) broadcastLocked() {
	close(p.wakeCh)
	p.wakeCh = make(chan struct{})
}

func (p *Processor) metric(name string, d directive.Directive) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordCount(name+"."+d.Name, 1)
}
