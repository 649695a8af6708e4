package sequencer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	directive "github.com/aurora-voice/directive-core"
	"github.com/aurora-voice/directive-core/power"
)

type capturingReporter struct {
	mu     sync.Mutex
	events []directive.ErrorKind
}

func (r *capturingReporter) SendExceptionEncountered(unparsedDirective string, kind directive.ErrorKind, humanMessage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *capturingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type passthroughHandler struct {
	key     directive.Key
	handled chan string
	tokens  map[string]*directive.CompletionToken
	mu      sync.Mutex
}

func newPassthroughHandler(key directive.Key) *passthroughHandler {
	return &passthroughHandler{key: key, handled: make(chan string, 16), tokens: make(map[string]*directive.CompletionToken)}
}

func (h *passthroughHandler) Configurations() map[directive.Key]directive.BlockingPolicy {
	return map[directive.Key]directive.BlockingPolicy{h.key: directive.NonePolicy}
}
func (h *passthroughHandler) HandleImmediately(d directive.Directive) {}
func (h *passthroughHandler) PreHandle(d directive.Directive, token *directive.CompletionToken) {
	h.mu.Lock()
	h.tokens[d.MessageID] = token
	h.mu.Unlock()
}
func (h *passthroughHandler) Handle(messageID string) bool {
	h.mu.Lock()
	token := h.tokens[messageID]
	h.mu.Unlock()
	h.handled <- messageID
	token.Complete()
	return true
}
func (h *passthroughHandler) Cancel(messageID string) {}

func TestNewRequiresExceptionReporter(t *testing.T) {
	_, err := New(Dependencies{})
	assert.ErrorIs(t, err, ErrMissingExceptionReporter)
}

func TestOnDirectiveRoutesToRegisteredHandler(t *testing.T) {
	reporter := &capturingReporter{}
	s, err := New(Dependencies{ExceptionReporter: reporter})
	require.NoError(t, err)
	defer s.Shutdown()

	key := directive.Key{Namespace: "Test", Name: "Op"}
	h := newPassthroughHandler(key)
	require.True(t, s.AddHandler(h))

	ok := s.OnDirective(directive.Directive{Namespace: "Test", Name: "Op", MessageID: "m1"})
	require.True(t, ok)

	select {
	case got := <-h.handled:
		assert.Equal(t, "m1", got)
	case <-time.After(time.Second):
		t.Fatal("directive was never handled")
	}
}

func TestOnDirectiveReportsUnsupportedOperation(t *testing.T) {
	reporter := &capturingReporter{}
	s, err := New(Dependencies{ExceptionReporter: reporter})
	require.NoError(t, err)
	defer s.Shutdown()

	require.True(t, s.OnDirective(directive.Directive{Namespace: "Unknown", Name: "Thing", MessageID: "m1"}))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if reporter.count() > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, 1, reporter.count())
}

func TestOnDirectiveRejectsMalformedDirective(t *testing.T) {
	reporter := &capturingReporter{}
	s, err := New(Dependencies{ExceptionReporter: reporter})
	require.NoError(t, err)
	defer s.Shutdown()

	assert.False(t, s.OnDirective(directive.Directive{MessageID: "m1"}))
}

func TestShutdownIsIdempotentAndReleasesPower(t *testing.T) {
	reporter := &capturingReporter{}
	rec := power.NewRecorder()
	s, err := New(Dependencies{ExceptionReporter: reporter, PowerResource: rec})
	require.NoError(t, err)

	s.Shutdown()
	s.Shutdown()

	calls := rec.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, "acquire", calls[0])
	assert.Equal(t, "attribute", calls[1])
	assert.Equal(t, "unattribute", calls[2])
	assert.Equal(t, "release", calls[3])
}

func TestNewWithShutdownNotifierRegistersObserver(t *testing.T) {
	reporter := &capturingReporter{}
	notifier := &fakeNotifier{}
	s, err := NewWithShutdownNotifier(Dependencies{ExceptionReporter: reporter}, notifier)
	require.NoError(t, err)
	defer s.Shutdown()

	require.Len(t, notifier.observers, 1)
	registered, ok := notifier.observers[0].(*Sequencer)
	require.True(t, ok)
	assert.Same(t, s, registered)
}

func TestNewWithShutdownNotifierRejectsNilNotifier(t *testing.T) {
	reporter := &capturingReporter{}
	_, err := NewWithShutdownNotifier(Dependencies{ExceptionReporter: reporter}, nil)
	assert.ErrorIs(t, err, ErrMissingShutdownNotifier)
}

func TestDisableThenEnableResumesIntake(t *testing.T) {
	reporter := &capturingReporter{}
	s, err := New(Dependencies{ExceptionReporter: reporter})
	require.NoError(t, err)
	defer s.Shutdown()

	key := directive.Key{Namespace: "Test", Name: "Op"}
	h := newPassthroughHandler(key)
	require.True(t, s.AddHandler(h))

	s.Disable()
	assert.False(t, s.OnDirective(directive.Directive{Namespace: "Test", Name: "Op", MessageID: "m1"}))

	s.Enable()
	assert.True(t, s.OnDirective(directive.Directive{Namespace: "Test", Name: "Op", MessageID: "m2"}))

	select {
	case got := <-h.handled:
		assert.Equal(t, "m2", got)
	case <-time.After(time.Second):
		t.Fatal("directive was never handled after re-enable")
	}
}

type fakeNotifier struct {
	observers []directive.ShutdownObserver
}

func (f *fakeNotifier) AddObserver(s directive.ShutdownObserver) {
	f.observers = append(f.observers, s)
}
