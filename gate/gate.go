// Package gate implements BlockingPolicyGate: per-medium mutual
// exclusion across concurrently handled directives.
package gate

import (
	"context"
	"errors"
	"sync"

	directive "github.com/aurora-voice/directive-core"
)

// ErrCanceled is returned by WaitUntilAdmitted when the supplied cancel
// channel fires before admission.
var ErrCanceled = errors.New("admission wait canceled")

// Gate tracks in-flight directives and the mediums they currently hold.
// A directive with mediums C is admitted iff, for every m in C, no
// in-flight record holds m while either that record or the candidate is
// blocking. Non-blocking directives may freely share mediums with other
// non-blocking directives.
type Gate struct {
	mu     sync.Mutex
	held   map[string]directive.BlockingPolicy
	waitCh chan struct{}
}

// New constructs an empty Gate.
func New() *Gate {
	return &Gate{
		held:   make(map[string]directive.BlockingPolicy),
		waitCh: make(chan struct{}),
	}
}

// TryAdmit admits messageID immediately if policy does not conflict with
// any currently held policy. On admission it records the held mediums
// and returns true.
func (g *Gate) TryAdmit(messageID string, policy directive.BlockingPolicy) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.admittableLocked(policy) {
		return false
	}
	g.held[messageID] = policy
	return true
}

// Release drops messageID's record and wakes any waiter blocked in
// WaitUntilAdmitted.
func (g *Gate) Release(messageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[messageID]; !ok {
		return
	}
	delete(g.held, messageID)
	g.broadcastLocked()
}

// WaitUntilAdmitted blocks until TryAdmit(messageID, policy) would
// succeed, recording the admission atomically with the check, or until
// ctx is done or cancel fires. cancel models the Processor's
// dialog-change cancellation signal, which is independent of ctx.
func (g *Gate) WaitUntilAdmitted(ctx context.Context, cancel <-chan struct{}, messageID string, policy directive.BlockingPolicy) error {
	for {
		// Check for a cancellation that landed before this iteration's
		// admission check, so a directive cancelled just before it would
		// have been admitted is not granted the mediums anyway.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancel:
			return ErrCanceled
		default:
		}

		g.mu.Lock()
		if g.admittableLocked(policy) {
			g.held[messageID] = policy
			g.mu.Unlock()
			return nil
		}
		wake := g.waitCh
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cancel:
			return ErrCanceled
		case <-wake:
		}
	}
}

// Held reports the policy currently held for messageID, if any.
func (g *Gate) Held(messageID string) (directive.BlockingPolicy, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.held[messageID]
	return p, ok
}

// InFlightCount returns the number of directives currently admitted.
func (g *Gate) InFlightCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

func (g *Gate) admittableLocked(policy directive.BlockingPolicy) bool {
	for _, inFlight := range g.held {
		if policy.Conflicts(inFlight) {
			return false
		}
	}
	return true
}

func (g *Gate) broadcastLocked() {
	close(g.waitCh)
	g.waitCh = make(chan struct{})
}
