package directive

// ErrorKind enumerates the exception kinds the core reports upstream.
type ErrorKind string

const (
	// UnsupportedOperation marks a directive no handler claims, or one
	// whose handler refused it after PreHandle succeeded.
	UnsupportedOperation ErrorKind = "UNSUPPORTED_OPERATION"
	// UnexpectedInformationReceived marks a directive the core cannot
	// make sense of; unused by this module's own error paths but part
	// of the collaborator contract callers may invoke.
	UnexpectedInformationReceived ErrorKind = "UNEXPECTED_INFORMATION_RECEIVED"
	// InternalError marks a failure internal to the pipeline.
	InternalError ErrorKind = "INTERNAL_ERROR"
)

// ExceptionReporter reports unhandled or malformed directives upstream.
// Delivery is fire-and-forget from the core's viewpoint; the core never
// blocks on it and never retries a failed report itself.
type ExceptionReporter interface {
	SendExceptionEncountered(unparsedDirective string, kind ErrorKind, humanMessage string)
}

// ShutdownNotifier lets a Sequencer register itself to be shut down by an
// external orchestrator during process teardown. The notifier should hold
// only a weak/back-reference to the Sequencer, upgrading it for the
// duration of the Shutdown call; the Sequencer itself owns its Processor
// and Router exclusively.
type ShutdownNotifier interface {
	AddObserver(s ShutdownObserver)
}

// ShutdownObserver is the callback surface a ShutdownNotifier invokes.
type ShutdownObserver interface {
	Shutdown()
}

// PowerResource suppresses low-power sleep while the pipeline's threads
// are active. Acquire/Release bracket the Sequencer's lifetime; Attribute
// and Unattribute bracket the receiving goroutine's run, so the OS can
// blame the correct subsystem for preventing sleep.
type PowerResource interface {
	Acquire()
	Release()
	AttributeCurrentGoroutine()
	UnattributeCurrentGoroutine()
}

// MetricRecorder receives counters about pipeline activity. It is
// optional: every call site tolerates a nil MetricRecorder.
type MetricRecorder interface {
	RecordCount(name string, value int64)
}
