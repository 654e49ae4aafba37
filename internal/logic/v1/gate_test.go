package v1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

const gateSecret = "Super Zylo"

func TestGate_MatchPassesAndClearsInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGate(gateSecret, time.Minute)
	g.Open()
	assert.False(t, g.Submit("super zylo"))
	assert.True(t, g.View().Error)

	assert.True(t, g.Submit(gateSecret))
	assert.Equal(t, GateView{Passed: true}, g.View())
	assert.True(t, g.Passed())
}

func TestGate_MismatchKeepsInputAndErrorExpires(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGate(gateSecret, 20*time.Millisecond)
	g.Open()

	assert.False(t, g.Submit("Super Zyl0"))
	view := g.View()
	assert.True(t, view.Open)
	assert.True(t, view.Error)
	assert.Equal(t, "Super Zyl0", view.Input)
	assert.False(t, view.Passed)

	assert.Eventually(t, func() bool { return !g.View().Error }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Super Zyl0", g.View().Input)
}

func TestGate_RepeatedFailureRestartsWindow(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGate(gateSecret, 80*time.Millisecond)
	g.Submit("a")
	time.Sleep(50 * time.Millisecond)
	g.Submit("b")
	time.Sleep(50 * time.Millisecond)
	assert.True(t, g.View().Error)

	g.Stop()
	assert.False(t, g.View().Error)
}

func TestGate_Leave(t *testing.T) {
	g := NewGate(gateSecret, time.Second)
	g.Open()
	g.Submit(gateSecret)

	g.Leave()
	assert.False(t, g.Passed())

	g.Open()
	g.Close()
	assert.False(t, g.View().Open)
}

func TestGate_StaleTimerKeepsNewerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := NewGate(gateSecret, time.Minute)
	g.Submit("x")
	g.mu.Lock()
	first := g.gen
	g.mu.Unlock()

	// The first timer fires while the second submission holds the lock.
	g.Submit("y")
	g.expire(first)

	view := g.View()
	assert.True(t, view.Error)
	assert.Equal(t, "y", view.Input)
	g.Stop()
}

func TestGate_ResubmitAtWindowBoundary(t *testing.T) {
	defer goleak.VerifyNone(t)

	const window = 20 * time.Millisecond
	for i := 0; i < 20; i++ {
		g := NewGate(gateSecret, window)
		g.Submit("x")
		time.Sleep(window)
		g.Submit("y")
		time.Sleep(2 * time.Millisecond)
		assert.True(t, g.View().Error, "run %d", i)
		g.Stop()
	}
}
