package main

import (
	"fmt"
	"sync"

	directive "github.com/aurora-voice/directive-core"
)

// echoHandler is a dummy Handler used by directivectl to exercise the
// pipeline without a real capability agent. It claims a fixed set of
// namespaces, completes every directive immediately, and logs what it
// is told.
type echoHandler struct {
	mu      sync.Mutex
	pending map[string]*directive.CompletionToken
}

func newEchoHandler() *echoHandler {
	return &echoHandler{pending: make(map[string]*directive.CompletionToken)}
}

func (h *echoHandler) Configurations() map[directive.Key]directive.BlockingPolicy {
	return map[directive.Key]directive.BlockingPolicy{
		{Namespace: "SpeechSynthesizer", Name: "Speak"}: {
			Mediums:    []directive.Medium{directive.AUDIO},
			IsBlocking: true,
		},
		{Namespace: "TemplateRuntime", Name: "RenderTemplate"}: {
			Mediums:    []directive.Medium{directive.VISUAL},
			IsBlocking: false,
		},
		{Namespace: "System", Name: "Ping"}: directive.NonePolicy,
	}
}

func (h *echoHandler) HandleImmediately(d directive.Directive) {
	fmt.Printf("echo: handled immediately %s.%s/%s\n", d.Namespace, d.Name, d.MessageID)
}

func (h *echoHandler) PreHandle(d directive.Directive, token *directive.CompletionToken) {
	h.mu.Lock()
	h.pending[d.MessageID] = token
	h.mu.Unlock()
}

func (h *echoHandler) Handle(messageID string) bool {
	h.mu.Lock()
	token, ok := h.pending[messageID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	fmt.Printf("echo: handling %s\n", messageID)
	token.Complete()
	return true
}

func (h *echoHandler) Cancel(messageID string) {
	h.mu.Lock()
	delete(h.pending, messageID)
	h.mu.Unlock()
	fmt.Printf("echo: cancelled %s\n", messageID)
}

// loggingExceptionReporter logs exceptions through directive.Logger
// instead of sending them to a cloud service.
type loggingExceptionReporter struct {
	logger directive.Logger
}

func (r *loggingExceptionReporter) SendExceptionEncountered(unparsedDirective string, kind directive.ErrorKind, humanMessage string) {
	r.logger.Warn("exception kind=%s message=%s directive=%s", kind, humanMessage, unparsedDirective)
}
