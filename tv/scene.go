package tv

import (
	"sync"
	"time"

	authclient "github.com/goliatone/go-authclient"
	"github.com/google/uuid"
)

// Scene is the coarse UI mode for an ambient display.
type Scene string

const (
	SceneAmbient     Scene = "ambient"
	SceneInteractive Scene = "interactive"
	SceneAlert       Scene = "alert"
)

// DefaultRevertAfter is the interactive inactivity window before the scene
// falls back to ambient.
const DefaultRevertAfter = 8 * time.Second

// SceneChange describes one applied transition.
type SceneChange struct {
	From   Scene
	To     Scene
	Reason string
	At     time.Time
}

// TimerFactory schedules fn after d and returns a stop function. The
// default wraps time.AfterFunc; tests supply manual factories.
type TimerFactory func(d time.Duration, fn func()) (stop func())

// SceneOption customizes SceneManager construction.
type SceneOption func(*SceneManager)

// WithSceneLogger overrides the logger.
func WithSceneLogger(logger authclient.Logger) SceneOption {
	return func(sm *SceneManager) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithSceneClock injects a custom clock (useful for tests).
func WithSceneClock(clock func() time.Time) SceneOption {
	return func(sm *SceneManager) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithSceneTimerFactory injects the scheduler used for the auto-revert
// timer.
func WithSceneTimerFactory(factory TimerFactory) SceneOption {
	return func(sm *SceneManager) {
		if factory != nil {
			sm.newTimer = factory
		}
	}
}

// WithRevertAfter overrides the interactive auto-revert window.
func WithRevertAfter(d time.Duration) SceneOption {
	return func(sm *SceneManager) {
		if d > 0 {
			sm.revertAfter = d
		}
	}
}

// SceneManager is the priority-guarded FSM governing the ambient surface
// mode. Alert dominates interactive: while an alert is showing,
// ToInteractive calls are absorbed as no-ops, and only ClearAlert leaves
// the state.
type SceneManager struct {
	mu          sync.Mutex
	scene       Scene
	quietHours  bool
	transitions map[Scene]map[Scene]struct{}
	revertAfter time.Duration
	stopRevert  func()
	now         func() time.Time
	newTimer    TimerFactory
	logger      authclient.Logger
	subscribers map[string]func(SceneChange)
	detachBus   []func()
}

// NewSceneManager returns a manager starting in SceneAmbient.
func NewSceneManager(opts ...SceneOption) *SceneManager {
	sm := &SceneManager{
		scene: SceneAmbient,
		transitions: map[Scene]map[Scene]struct{}{
			SceneAmbient: {
				SceneInteractive: {},
				SceneAlert:       {},
			},
			SceneInteractive: {
				SceneAmbient:     {},
				SceneInteractive: {},
				SceneAlert:       {},
			},
			SceneAlert: {
				SceneAmbient: {},
			},
		},
		revertAfter: DefaultRevertAfter,
		now:         time.Now,
		logger:      defaultLogger(),
		subscribers: map[string]func(SceneChange){},
	}
	sm.newTimer = func(d time.Duration, fn func()) func() {
		t := time.AfterFunc(d, fn)
		return func() { t.Stop() }
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

// Current returns the active scene.
func (sm *SceneManager) Current() Scene {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.scene
}

// ToInteractive requests the interactive scene and arms the auto-revert
// timer. Re-entrant calls restart the timer instead of stacking a second
// one. Absorbed as a no-op while an alert is showing.
func (sm *SceneManager) ToInteractive(reason string) {
	sm.mu.Lock()

	if sm.scene == SceneAlert {
		sm.mu.Unlock()
		sm.logger.Debug("interactive request absorbed, alert is showing: %s", reason)
		return
	}

	change, applied := sm.applyLocked(SceneInteractive, reason)
	sm.armRevertLocked()
	sm.mu.Unlock()

	if applied {
		sm.notify(change)
	}
}

// ToAlert switches to the alert scene from any state, cancelling a pending
// auto-revert. The scene stays put until ClearAlert.
func (sm *SceneManager) ToAlert(reason string) {
	sm.mu.Lock()
	sm.cancelRevertLocked()
	change, applied := sm.applyLocked(SceneAlert, reason)
	sm.mu.Unlock()

	if applied {
		sm.notify(change)
	}
}

// ClearAlert leaves the alert scene back to ambient. No-op when no alert is
// showing.
func (sm *SceneManager) ClearAlert(reason string) {
	sm.mu.Lock()
	if sm.scene != SceneAlert {
		sm.mu.Unlock()
		return
	}
	change, applied := sm.applyLocked(SceneAmbient, reason)
	sm.mu.Unlock()

	if applied {
		sm.notify(change)
	}
}

// SetQuietHours toggles the orthogonal quiet-hours flag. It is not a scene
// transition; downstream rendering decides what to do with it.
func (sm *SceneManager) SetQuietHours(enabled bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.quietHours = enabled
}

// QuietHours reports the quiet-hours flag.
func (sm *SceneManager) QuietHours() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.quietHours
}

// Subscribe registers fn for every applied transition and returns its
// disposer.
func (sm *SceneManager) Subscribe(fn func(SceneChange)) func() {
	if fn == nil {
		return func() {}
	}

	id := uuid.New().String()
	sm.mu.Lock()
	sm.subscribers[id] = fn
	sm.mu.Unlock()

	return func() {
		sm.mu.Lock()
		delete(sm.subscribers, id)
		sm.mu.Unlock()
	}
}

// AttachBus consumes typed input events: alerts drive ToAlert/ClearAlert,
// interactions drive ToInteractive.
func (sm *SceneManager) AttachBus(bus *Bus) {
	if bus == nil {
		return
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.detachBus = append(sm.detachBus,
		bus.Subscribe(EventAlertIncoming, func(e Event) { sm.ToAlert(e.Reason) }),
		bus.Subscribe(EventAlertCleared, func(e Event) { sm.ClearAlert(e.Reason) }),
		bus.Subscribe(EventInteraction, func(e Event) { sm.ToInteractive(e.Reason) }),
	)
}

// Cleanup stops the revert timer and detaches bus subscriptions. Safe to
// call multiple times.
func (sm *SceneManager) Cleanup() {
	sm.mu.Lock()
	sm.cancelRevertLocked()
	detach := sm.detachBus
	sm.detachBus = nil
	sm.subscribers = map[string]func(SceneChange){}
	sm.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

// applyLocked performs a table-checked transition. Disallowed transitions
// are absorbed, per the priority rule, not raised.
func (sm *SceneManager) applyLocked(target Scene, reason string) (SceneChange, bool) {
	allowed, ok := sm.transitions[sm.scene]
	if !ok {
		return SceneChange{}, false
	}
	if _, exists := allowed[target]; !exists {
		sm.logger.Debug("scene transition %s -> %s absorbed", sm.scene, target)
		return SceneChange{}, false
	}

	change := SceneChange{
		From:   sm.scene,
		To:     target,
		Reason: reason,
		At:     sm.now(),
	}
	sm.scene = target

	// Re-entering interactive restarts the timer but is not a visible
	// transition.
	if change.From == change.To {
		return SceneChange{}, false
	}

	return change, true
}

// armRevertLocked owns the single auto-revert timer: arming always cancels
// the previous instance first.
func (sm *SceneManager) armRevertLocked() {
	sm.cancelRevertLocked()
	sm.stopRevert = sm.newTimer(sm.revertAfter, sm.autoRevert)
}

func (sm *SceneManager) cancelRevertLocked() {
	if sm.stopRevert != nil {
		sm.stopRevert()
		sm.stopRevert = nil
	}
}

func (sm *SceneManager) autoRevert() {
	sm.mu.Lock()
	if sm.scene != SceneInteractive {
		sm.mu.Unlock()
		return
	}
	change, applied := sm.applyLocked(SceneAmbient, "inactivity")
	sm.stopRevert = nil
	sm.mu.Unlock()

	if applied {
		sm.notify(change)
	}
}

func (sm *SceneManager) notify(change SceneChange) {
	sm.mu.Lock()
	listeners := make([]func(SceneChange), 0, len(sm.subscribers))
	for _, fn := range sm.subscribers {
		listeners = append(listeners, fn)
	}
	sm.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}
