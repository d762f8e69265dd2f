package tv

import (
	"sync"
	"time"

	authclient "github.com/goliatone/go-authclient"
	"github.com/google/uuid"
)

// DefaultRotateEvery is the cadence at which the primary widget advances.
const DefaultRotateEvery = 30 * time.Second

// Direction is a manual nudge from remote-control input.
type Direction string

const (
	DirectionPrev Direction = "prev"
	DirectionNext Direction = "next"
)

// WidgetAssignment is the scheduler's output: which widget is primary and
// the footer ticker text, read by the rendering layer.
type WidgetAssignment struct {
	Primary      WidgetID
	FooterTicker string
}

// TickerFactory schedules fn every d and returns a stop function. The
// default wraps time.Ticker; tests supply manual factories.
type TickerFactory func(d time.Duration, fn func()) (stop func())

// SchedulerOption customizes Scheduler construction.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger overrides the logger.
func WithSchedulerLogger(logger authclient.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRotateEvery overrides the rotation cadence.
func WithRotateEvery(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTickerFactory injects the rotation scheduler.
func WithTickerFactory(factory TickerFactory) SchedulerOption {
	return func(s *Scheduler) {
		if factory != nil {
			s.newTicker = factory
		}
	}
}

// Scheduler rotates the primary ambient widget over the registry's enabled
// set. Start and Stop are reference counted: rotation only halts when the
// last active consumer stops.
type Scheduler struct {
	mu          sync.Mutex
	registry    *WidgetRegistry
	assignment  WidgetAssignment
	cursor      int
	interval    time.Duration
	refs        int
	stopTicker  func()
	newTicker   TickerFactory
	logger      authclient.Logger
	subscribers map[string]func(WidgetAssignment)
	detachBus   []func()
}

// NewScheduler returns a scheduler over registry, primed with the first
// eligible widget.
func NewScheduler(registry *WidgetRegistry, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry:    registry,
		interval:    DefaultRotateEvery,
		logger:      defaultLogger(),
		subscribers: map[string]func(WidgetAssignment){},
	}
	s.newTicker = func(d time.Duration, fn func()) func() {
		ticker := time.NewTicker(d)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					fn()
				}
			}
		}()
		return func() {
			ticker.Stop()
			close(done)
		}
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.mu.Lock()
	s.assignment.Primary = s.selectLocked(0, 1)
	s.mu.Unlock()

	return s
}

// Start begins rotation for one consumer. Reference counted and idempotent
// per consumer pair: N Start calls need N Stop calls to halt the ticker.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refs++
	if s.refs > 1 {
		return
	}
	s.startTickerLocked()
}

// Stop releases one consumer. The ticker halts only when the last consumer
// stops; surplus Stop calls are no-ops.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		return
	}
	s.refs--
	if s.refs > 0 {
		return
	}
	s.stopTickerLocked()
}

// Assignment returns the current primary widget and footer ticker.
func (s *Scheduler) Assignment() WidgetAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignment
}

// Nudge advances (or reverses) the rotation immediately and restarts the
// interval from this new point.
func (s *Scheduler) Nudge(dir Direction) {
	step := 1
	if dir == DirectionPrev {
		step = -1
	}

	s.mu.Lock()
	assignment, changed := s.advanceLocked(step)
	if s.refs > 0 {
		s.stopTickerLocked()
		s.startTickerLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(assignment)
	}
}

// SetFooterTicker updates the footer ticker text.
func (s *Scheduler) SetFooterTicker(text string) {
	s.mu.Lock()
	s.assignment.FooterTicker = text
	assignment := s.assignment
	s.mu.Unlock()

	s.notify(assignment)
}

// Subscribe registers fn for assignment changes and returns its disposer.
func (s *Scheduler) Subscribe(fn func(WidgetAssignment)) func() {
	if fn == nil {
		return func() {}
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// AttachBus consumes remote-control events as manual nudges.
func (s *Scheduler) AttachBus(bus *Bus) {
	if bus == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.detachBus = append(s.detachBus,
		bus.Subscribe(EventRemotePrev, func(Event) { s.Nudge(DirectionPrev) }),
		bus.Subscribe(EventRemoteNext, func(Event) { s.Nudge(DirectionNext) }),
	)
}

// Cleanup halts rotation regardless of reference count and detaches bus
// subscriptions. Safe to call multiple times.
func (s *Scheduler) Cleanup() {
	s.mu.Lock()
	s.refs = 0
	s.stopTickerLocked()
	detach := s.detachBus
	s.detachBus = nil
	s.subscribers = map[string]func(WidgetAssignment){}
	s.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
}

func (s *Scheduler) startTickerLocked() {
	s.stopTicker = s.newTicker(s.interval, s.rotate)
}

func (s *Scheduler) stopTickerLocked() {
	if s.stopTicker != nil {
		s.stopTicker()
		s.stopTicker = nil
	}
}

func (s *Scheduler) rotate() {
	s.mu.Lock()
	assignment, changed := s.advanceLocked(1)
	s.mu.Unlock()

	if changed {
		s.notify(assignment)
	}
}

// advanceLocked moves the cursor by step over the enabled set, skipping
// high-motion widgets whose exclusivity would be violated, and falls back
// to the placeholder when nothing is eligible.
func (s *Scheduler) advanceLocked(step int) (WidgetAssignment, bool) {
	previous := s.assignment.Primary
	s.assignment.Primary = s.selectLocked(step, step)
	return s.assignment, s.assignment.Primary != previous
}

// selectLocked resolves the next eligible widget starting step positions
// from the cursor, probing in direction dir. It updates the cursor on a
// hit.
func (s *Scheduler) selectLocked(step, dir int) WidgetID {
	enabled := s.registry.Enabled()
	if len(enabled) == 0 {
		return WidgetPlaceholder
	}
	if dir == 0 {
		dir = 1
	}

	idx := mod(s.cursor+step, len(enabled))
	for probes := 0; probes < len(enabled); probes++ {
		candidate := enabled[idx]
		// A concurrent settings change can leave two enabled high-motion
		// widgets for a beat; skip rather than violate exclusivity.
		if candidate.Motion == MotionHigh && s.registry.highMotionEnabledOther(candidate.ID) {
			s.logger.Warn("skipping %s: high-motion exclusivity conflict", candidate.ID)
			idx = mod(idx+dir, len(enabled))
			continue
		}
		s.cursor = idx
		return candidate.ID
	}

	return WidgetPlaceholder
}

func (s *Scheduler) notify(assignment WidgetAssignment) {
	s.mu.Lock()
	listeners := make([]func(WidgetAssignment), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(assignment)
	}
}

func mod(n, m int) int {
	return ((n % m) + m) % m
}
