package v1

import (
	"sync"
	"time"

	"github.com/duynhne/campus-portal/middleware"
)

// GateView is a snapshot of the shared-secret gate for rendering.
type GateView struct {
	Open   bool   `json:"open"`
	Passed bool   `json:"passed"`
	Error  bool   `json:"error"`
	Input  string `json:"input"`
}

// Gate is the shared-secret campus gate of one visitor. The secret is a plain
// in-memory string: this is a soft entry gate with no relation to the identity
// session, and anyone who can read the page configuration can pass it.
type Gate struct {
	secret      string
	errorWindow time.Duration

	mu     sync.Mutex
	open   bool
	passed bool
	failed bool
	input  string
	timer  *time.Timer
	// gen identifies the armed error timer; callbacks of replaced timers are ignored.
	gen uint64
}

// NewGate creates a closed, not passed gate.
func NewGate(secret string, errorWindow time.Duration) *Gate {
	return &Gate{secret: secret, errorWindow: errorWindow}
}

// Open shows the gate modal.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = true
}

// Close hides the gate modal.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = false
}

// Submit compares input with the secret. On a match the gate is passed, the
// modal closed and the input cleared. On a mismatch the error is shown for the
// error window and the input is kept.
func (g *Gate) Submit(input string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if input == g.secret {
		g.passed = true
		g.open = false
		g.input = ""
		g.clearErrorLocked()
		middleware.RecordGateAttempt("success")
		return true
	}

	g.input = input
	g.failed = true
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(g.errorWindow, func() { g.expire(gen) })
	middleware.RecordGateAttempt("failure")
	return false
}

// Passed reports whether the visitor entered the secret.
func (g *Gate) Passed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.passed
}

// Leave resets the gate to not passed.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.passed = false
	g.open = false
}

// Stop cancels a pending error timer.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearErrorLocked()
}

// View returns a snapshot of the gate.
func (g *Gate) View() GateView {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GateView{Open: g.open, Passed: g.passed, Error: g.failed, Input: g.input}
}

// expire clears the error shown by the timer of generation gen. A stopped
// timer whose callback already fired must not clear a newer error.
func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gen != g.gen {
		return
	}
	g.failed = false
	g.timer = nil
}

func (g *Gate) clearErrorLocked() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.failed = false
}
