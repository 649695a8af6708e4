package sequencer

import "github.com/goliatone/go-errors"

// ErrMissingExceptionReporter is returned by New when Dependencies omits
// a required ExceptionReporter, mirroring the original implementation's
// refusal to construct without one.
var ErrMissingExceptionReporter = errors.New("sequencer: ExceptionReporter dependency is required", errors.CategoryBadInput).
	WithTextCode("MISSING_EXCEPTION_REPORTER")

// ErrMissingShutdownNotifier is returned by NewWithShutdownNotifier when
// notifier is nil.
var ErrMissingShutdownNotifier = errors.New("sequencer: ShutdownNotifier must not be nil", errors.CategoryBadInput).
	WithTextCode("MISSING_SHUTDOWN_NOTIFIER")
