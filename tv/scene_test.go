package tv_test

import (
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-authclient/tv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualTimers is a TimerFactory whose timers fire only when the test says
// so, making auto-revert deterministic.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	stopped bool
	d       time.Duration
}

func (m *manualTimers) factory(d time.Duration, fn func()) func() {
	timer := &manualTimer{fn: fn, d: d}
	m.mu.Lock()
	m.timers = append(m.timers, timer)
	m.mu.Unlock()
	return timer.stop
}

func (t *manualTimer) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *manualTimer) fire() {
	t.mu.Lock()
	stopped := t.stopped
	fn := t.fn
	t.mu.Unlock()
	if !stopped {
		fn()
	}
}

func (m *manualTimers) last() *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}

func newTestScene(t *testing.T) (*tv.SceneManager, *manualTimers) {
	t.Helper()
	timers := &manualTimers{}
	sm := tv.NewSceneManager(tv.WithSceneTimerFactory(timers.factory))
	t.Cleanup(sm.Cleanup)
	return sm, timers
}

func TestSceneStartsAmbient(t *testing.T) {
	sm, _ := newTestScene(t)
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}

func TestInteractiveAutoRevertsToAmbient(t *testing.T) {
	sm, timers := newTestScene(t)

	sm.ToInteractive("remote input")
	assert.Equal(t, tv.SceneInteractive, sm.Current())

	timer := timers.last()
	require.NotNil(t, timer)
	assert.Equal(t, tv.DefaultRevertAfter, timer.d)

	timer.fire()
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}

func TestReentrantInteractiveRestartsTimer(t *testing.T) {
	sm, timers := newTestScene(t)

	sm.ToInteractive("first")
	first := timers.last()
	sm.ToInteractive("second")
	second := timers.last()

	require.NotSame(t, first, second, "re-entry must restart, not stack")
	assert.True(t, first.stopped, "superseded timer must be cancelled")

	// The stale timer firing anyway must not revert the scene.
	first.fire()
	assert.Equal(t, tv.SceneInteractive, sm.Current())

	second.fire()
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}

func TestAlertDominatesInteractive(t *testing.T) {
	sm, _ := newTestScene(t)

	sm.ToAlert("doorbell")
	assert.Equal(t, tv.SceneAlert, sm.Current())

	sm.ToInteractive("remote input")
	assert.Equal(t, tv.SceneAlert, sm.Current(), "interactive must not pre-empt an alert")

	sm.ClearAlert("acknowledged")
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}

func TestAlertCancelsPendingRevert(t *testing.T) {
	sm, timers := newTestScene(t)

	sm.ToInteractive("remote input")
	revert := timers.last()
	sm.ToAlert("smoke detector")

	assert.True(t, revert.stopped, "alert must cancel the pending auto-revert")
	revert.fire()
	assert.Equal(t, tv.SceneAlert, sm.Current(), "alert is sticky until cleared")
}

func TestClearAlertWithoutAlertIsNoop(t *testing.T) {
	sm, _ := newTestScene(t)
	sm.ClearAlert("spurious")
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}

func TestQuietHoursIsOrthogonal(t *testing.T) {
	sm, _ := newTestScene(t)

	sm.ToInteractive("remote input")
	sm.SetQuietHours(true)

	assert.True(t, sm.QuietHours())
	assert.Equal(t, tv.SceneInteractive, sm.Current(), "quiet hours is a flag, not a transition")
}

func TestSceneSubscribers(t *testing.T) {
	sm, _ := newTestScene(t)

	var changes []tv.SceneChange
	unsubscribe := sm.Subscribe(func(c tv.SceneChange) {
		changes = append(changes, c)
	})
	defer unsubscribe()

	sm.ToInteractive("remote input")
	sm.ToAlert("doorbell")
	sm.ToInteractive("absorbed")

	require.Len(t, changes, 2)
	assert.Equal(t, tv.SceneAmbient, changes[0].From)
	assert.Equal(t, tv.SceneInteractive, changes[0].To)
	assert.Equal(t, tv.SceneAlert, changes[1].To)
	assert.Equal(t, "doorbell", changes[1].Reason)
}

func TestSceneBusIntegration(t *testing.T) {
	sm, _ := newTestScene(t)
	bus := tv.NewBus()
	sm.AttachBus(bus)

	bus.Publish(tv.Event{Kind: tv.EventAlertIncoming, Reason: "caregiver ping"})
	assert.Equal(t, tv.SceneAlert, sm.Current())

	bus.Publish(tv.Event{Kind: tv.EventInteraction, Reason: "remote"})
	assert.Equal(t, tv.SceneAlert, sm.Current(), "bus interactions respect alert priority")

	bus.Publish(tv.Event{Kind: tv.EventAlertCleared, Reason: "acknowledged"})
	assert.Equal(t, tv.SceneAmbient, sm.Current())
}
