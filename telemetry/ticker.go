package telemetry

import (
	"sync"

	"github.com/goliatone/go-errors"
	directive "github.com/aurora-voice/directive-core"
	rcron "github.com/robfig/cron/v3"
)

// Ticker runs a Counter snapshot on a cron schedule, logging the
// accumulated counts through the configured Logger and then resetting
// the counter. It is grounded on the same robfig/cron/v3 scheduler
// used elsewhere in this stack for periodic work.
type Ticker struct {
	mu      sync.Mutex
	cron    *rcron.Cron
	counter *Counter
	logger  directive.Logger
	entryID rcron.EntryID
	running bool
}

// Option configures a Ticker at construction time.
type Option func(*Ticker)

// WithLogger sets the logger the Ticker reports samples through.
func WithLogger(l directive.Logger) Option {
	return func(t *Ticker) { t.logger = l }
}

// NewTicker constructs a Ticker that samples counter on expr (a
// standard five-field cron expression, or a descriptor such as
// "@every 1s").
func NewTicker(counter *Counter, expr string, opts ...Option) (*Ticker, error) {
	t := &Ticker{
		cron:    rcron.New(),
		counter: counter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	entryID, err := t.cron.AddFunc(expr, t.sample)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryBadInput, "telemetry: invalid schedule").
			WithTextCode("INVALID_SCHEDULE").
			WithMetadata(map[string]any{"schedule": expr})
	}
	t.entryID = entryID
	return t, nil
}

// Start begins running the schedule. It is idempotent.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true
	t.cron.Start()
}

// Stop halts the schedule and waits for any in-flight sample to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()
	<-t.cron.Stop().Done()
}

func (t *Ticker) sample() {
	snapshot := t.counter.Snapshot()
	if len(snapshot) == 0 {
		return
	}
	for _, name := range SortedNames(snapshot) {
		t.log().Info("metric %s=%d", name, snapshot[name])
	}
	t.counter.Reset()
}

func (t *Ticker) log() directive.Logger {
	if t.logger == nil {
		return directive.NewFmtLogger(nil)
	}
	return t.logger
}
