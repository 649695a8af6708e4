// Package sequencer implements DirectiveSequencer: the public entry
// point of the directive pipeline. It gates intake, owns the receiving
// goroutine, and chooses between the immediate and processed dispatch
// paths.
package sequencer

import (
	"sync"

	directive "github.com/aurora-voice/directive-core"
	"github.com/aurora-voice/directive-core/gate"
	"github.com/aurora-voice/directive-core/power"
	"github.com/aurora-voice/directive-core/processor"
	"github.com/aurora-voice/directive-core/router"
)

// Dependencies are the collaborators a Sequencer needs from its host.
// ExceptionReporter is required; the rest default to no-ops.
type Dependencies struct {
	ExceptionReporter directive.ExceptionReporter
	PowerResource     directive.PowerResource
}

// Option configures a Sequencer at construction time.
type Option func(*Sequencer)

// WithLogger sets the logger used by the Sequencer, its Router, and its
// Processor.
func WithLogger(l directive.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithMetricRecorder sets the optional metrics sink shared by the
// Sequencer, Router, and Processor.
func WithMetricRecorder(m directive.MetricRecorder) Option {
	return func(s *Sequencer) { s.metrics = m }
}

// WithDispatchEmptyDialogImmediately controls the runtime configuration
// bit corresponding to the build-time DIALOG_REQUEST_ID_IN_ALL_RESPONSE_
// DIRECTIVES option: when true, directives with an empty dialog-request
// id are dispatched via the Router's immediate path instead of being
// queued through the Processor.
func WithDispatchEmptyDialogImmediately(v bool) Option {
	return func(s *Sequencer) { s.dispatchEmptyDialogImmediately = v }
}

// Sequencer is the pipeline's public entry point.
type Sequencer struct {
	mu sync.Mutex

	intake       []directive.Directive
	shuttingDown bool
	enabled      bool

	wakeCh chan struct{}
	doneCh chan struct{}

	router    *router.Router
	processor *processor.Processor
	gate      *gate.Gate

	exceptionReporter directive.ExceptionReporter
	power             directive.PowerResource

	logger  directive.Logger
	metrics directive.MetricRecorder

	dispatchEmptyDialogImmediately bool
}

// New constructs a Sequencer, acquires its power resource, and starts
// the receiving goroutine. It returns ErrMissingExceptionReporter if
// deps.ExceptionReporter is nil.
func New(deps Dependencies, opts ...Option) (*Sequencer, error) {
	if deps.ExceptionReporter == nil {
		return nil, ErrMissingExceptionReporter
	}

	pr := deps.PowerResource
	if pr == nil {
		pr = power.New()
	}

	s := &Sequencer{
		enabled:           true,
		wakeCh:            make(chan struct{}),
		doneCh:            make(chan struct{}),
		exceptionReporter: deps.ExceptionReporter,
		power:             pr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.router = router.New(router.WithLogger(s.logger), router.WithMetricRecorder(s.metrics))
	s.gate = gate.New()
	s.processor = processor.New(s.router, s.gate,
		processor.WithLogger(s.logger),
		processor.WithMetricRecorder(s.metrics),
	)

	s.power.Acquire()
	go s.run()

	return s, nil
}

// NewWithShutdownNotifier constructs a Sequencer exactly like New, then
// registers it as an observer with notifier so an external orchestrator
// can invoke Shutdown during process teardown. The notifier should keep
// only a weak/back-reference to the returned Sequencer.
func NewWithShutdownNotifier(deps Dependencies, notifier directive.ShutdownNotifier, opts ...Option) (*Sequencer, error) {
	if notifier == nil {
		return nil, ErrMissingShutdownNotifier
	}
	s, err := New(deps, opts...)
	if err != nil {
		return nil, err
	}
	notifier.AddObserver(s)
	return s, nil
}

// AddHandler registers handler's routing keys with the Router.
func (s *Sequencer) AddHandler(h directive.Handler) bool {
	return s.router.AddHandler(h)
}

// RemoveHandler unregisters handler's routing keys from the Router.
func (s *Sequencer) RemoveHandler(h directive.Handler) bool {
	return s.router.RemoveHandler(h)
}

// SetDialogRequestID passes through to the Processor.
func (s *Sequencer) SetDialogRequestID(id string) {
	s.processor.SetDialogRequestID(id)
}

// DialogRequestID passes through to the Processor.
func (s *Sequencer) DialogRequestID() string {
	return s.processor.CurrentDialogRequestID()
}

// OnDirective pushes d onto the intake queue and wakes the receiving
// goroutine. It returns false without enqueueing if the Sequencer is
// shutting down, disabled, or d fails basic structural validation.
func (s *Sequencer) OnDirective(d directive.Directive) bool {
	if !isWellFormed(d) {
		s.log().Warn("OnDirective rejected: malformed directive message_id=%s", d.MessageID)
		return false
	}

	s.mu.Lock()
	if s.shuttingDown || !s.enabled {
		s.mu.Unlock()
		s.log().Warn("OnDirective rejected: message_id=%s reason=%s", d.MessageID, s.rejectReasonLocked())
		return false
	}
	s.intake = append(s.intake, d)
	s.broadcastLocked()
	s.mu.Unlock()
	return true
}

// Enable resumes intake.
func (s *Sequencer) Enable() {
	s.mu.Lock()
	s.enabled = true
	s.broadcastLocked()
	s.mu.Unlock()
	s.processor.Enable()
}

// Disable stops intake and, via the Processor, forces the current
// dialog id to empty and cancels every affected directive.
func (s *Sequencer) Disable() {
	s.mu.Lock()
	s.enabled = false
	s.broadcastLocked()
	s.mu.Unlock()
	s.processor.Disable()
}

// Shutdown sets the shutting-down flag, wakes and joins the receiving
// goroutine (which releases the power resource as it exits), then shuts
// down the Processor and Router. It is idempotent.
func (s *Sequencer) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		<-s.doneCh
		return
	}
	s.shuttingDown = true
	s.broadcastLocked()
	s.mu.Unlock()

	<-s.doneCh
	s.processor.Shutdown()
	s.router.Shutdown()
}

// run is the receiving thread.
func (s *Sequencer) run() {
	s.power.AttributeCurrentGoroutine()
	defer func() {
		s.power.UnattributeCurrentGoroutine()
		s.power.Release()
		close(s.doneCh)
	}()

	for {
		s.mu.Lock()
		for len(s.intake) == 0 && !s.shuttingDown {
			wake := s.wakeCh
			s.mu.Unlock()
			<-wake
			s.mu.Lock()
		}
		if len(s.intake) == 0 && s.shuttingDown {
			s.mu.Unlock()
			return
		}
		d := s.intake[0]
		s.intake = s.intake[1:]
		s.mu.Unlock()

		s.receive(d)
	}
}

func (s *Sequencer) receive(d directive.Directive) {
	s.metric("directive.dequeued", d)

	var handled bool
	if d.DialogRequestID == "" && s.dispatchEmptyDialogImmediately {
		handled = s.router.HandleImmediately(d)
	} else {
		handled = s.processor.OnDirective(d)
	}

	if !handled {
		s.log().Info("sendingExceptionEncountered message_id=%s", d.MessageID)
		s.exceptionReporter.SendExceptionEncountered(d.Unparsed, directive.UnsupportedOperation, "Unsupported operation")
	}
}

func (s *Sequencer) broadcastLocked() {
	close(s.wakeCh)
	s.wakeCh = make(chan struct{})
}

func (s *Sequencer) rejectReasonLocked() string {
	if s.shuttingDown {
		return "shutting_down"
	}
	return "disabled"
}

func (s *Sequencer) metric(name string, d directive.Directive) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordCount(name+"."+d.Name, 1)
}

func (s *Sequencer) log() directive.Logger {
	if s.logger == nil {
		return directive.NewFmtLogger(nil)
	}
	return s.logger
}

func isWellFormed(d directive.Directive) bool {
	return d.Namespace != "" && d.Name != "" && d.MessageID != ""
}
