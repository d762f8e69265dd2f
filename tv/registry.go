package tv

import (
	"sync"

	authclient "github.com/goliatone/go-authclient"
	goerrors "github.com/goliatone/go-errors"
)

// MotionLevel classifies how visually busy a widget is. MotionHigh widgets
// are exclusive: enabling one parks every other high-motion widget.
type MotionLevel string

const (
	MotionStatic MotionLevel = "static"
	MotionSubtle MotionLevel = "subtle"
	MotionHigh   MotionLevel = "high"
)

// WidgetID identifies a rotatable ambient surface.
type WidgetID string

// WidgetPlaceholder is the fallback assignment when every widget is
// disabled.
const WidgetPlaceholder WidgetID = "placeholder"

// WidgetMeta describes one registry entry.
type WidgetMeta struct {
	ID      WidgetID
	Label   string
	Motion  MotionLevel
	Enabled bool
}

// ErrUnknownWidget is returned when toggling a widget the registry never
// seeded.
var ErrUnknownWidget = goerrors.New("unknown widget", goerrors.CategoryValidation).
	WithTextCode("UNKNOWN_WIDGET").
	WithCode(goerrors.CodeBadRequest)

// unknownWidget attaches the widget id to a copy of the sentinel; writing
// into the shared sentinel's metadata map is not concurrency safe.
func unknownWidget(id WidgetID) error {
	clone := ErrUnknownWidget.Clone()
	if clone == nil {
		return ErrUnknownWidget
	}
	clone.Source = ErrUnknownWidget
	return clone.WithMetadata(map[string]any{"widget": string(id)})
}

// WidgetRegistry holds the seeded widget set. Entries are never destroyed
// during a session; settings only toggle Enabled. The registry, not the
// scheduler, owns the at-most-one-high-motion invariant.
type WidgetRegistry struct {
	mu      sync.RWMutex
	order   []WidgetID
	widgets map[WidgetID]*WidgetMeta
	logger  authclient.Logger
}

// NewWidgetRegistry seeds a registry. Order of seeds is rotation order.
func NewWidgetRegistry(seed []WidgetMeta, logger authclient.Logger) *WidgetRegistry {
	if logger == nil {
		logger = defaultLogger()
	}

	r := &WidgetRegistry{
		widgets: map[WidgetID]*WidgetMeta{},
		logger:  logger,
	}

	var highSeen bool
	for _, meta := range seed {
		if _, exists := r.widgets[meta.ID]; exists {
			continue
		}
		entry := meta
		if entry.Motion == MotionHigh && entry.Enabled {
			if highSeen {
				logger.Warn("widget %s seeded disabled: another high-motion widget is already enabled", entry.ID)
				entry.Enabled = false
			}
			highSeen = highSeen || entry.Enabled
		}
		r.order = append(r.order, entry.ID)
		r.widgets[entry.ID] = &entry
	}

	return r
}

// DefaultWidgets is the stock ambient surface set.
func DefaultWidgets() []WidgetMeta {
	return []WidgetMeta{
		{ID: "photo_frame", Label: "Photo Frame", Motion: MotionSubtle, Enabled: true},
		{ID: "clock", Label: "Clock", Motion: MotionStatic, Enabled: true},
		{ID: "weather", Label: "Weather", Motion: MotionStatic, Enabled: true},
		{ID: "transcript", Label: "Live Transcript", Motion: MotionStatic, Enabled: true},
		{ID: "ambient_video", Label: "Ambient Video", Motion: MotionHigh, Enabled: false},
	}
}

// SetEnabled toggles a widget. Enabling a high-motion widget parks every
// other enabled high-motion widget so the exclusivity invariant holds at
// the registry level, not just at selection time.
func (r *WidgetRegistry) SetEnabled(id WidgetID, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.widgets[id]
	if !ok {
		return unknownWidget(id)
	}

	if enabled && entry.Motion == MotionHigh {
		for otherID, other := range r.widgets {
			if otherID != id && other.Motion == MotionHigh && other.Enabled {
				r.logger.Info("parking high-motion widget %s in favor of %s", otherID, id)
				other.Enabled = false
			}
		}
	}

	entry.Enabled = enabled
	return nil
}

// Enabled returns the enabled widgets in rotation order.
func (r *WidgetRegistry) Enabled() []WidgetMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WidgetMeta, 0, len(r.order))
	for _, id := range r.order {
		if w := r.widgets[id]; w.Enabled {
			out = append(out, *w)
		}
	}
	return out
}

// Get returns a widget by id.
func (r *WidgetRegistry) Get(id WidgetID) (WidgetMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.widgets[id]
	if !ok {
		return WidgetMeta{}, false
	}
	return *w, true
}

// All returns every registry entry in rotation order.
func (r *WidgetRegistry) All() []WidgetMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]WidgetMeta, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.widgets[id])
	}
	return out
}

// highMotionEnabledOther reports whether an enabled high-motion widget
// other than id exists.
func (r *WidgetRegistry) highMotionEnabledOther(id WidgetID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for otherID, other := range r.widgets {
		if otherID != id && other.Motion == MotionHigh && other.Enabled {
			return true
		}
	}
	return false
}

func defaultLogger() authclient.Logger {
	return authclient.DefaultLogger()
}
