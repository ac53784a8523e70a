package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/signal-agent/internal/events"
	"github.com/sweeney/signal-agent/internal/pattern"
)

// entry is the scheduler state for one channel.
// The working queue is template[cursor:]; template itself is never mutated.
type entry struct {
	name      string
	ch        Channel
	template  []bool
	cursor    int
	remaining int
	level     bool // last level successfully written
	failing   bool // last write failed; used to log once per episode
}

func (e *entry) active() bool {
	return e.cursor < len(e.template)
}

func (e *entry) load(p pattern.Program) {
	e.template = p.Ticks
	e.cursor = 0
	e.remaining = p.Remaining
}

func (e *entry) reset() {
	e.template = nil
	e.cursor = 0
	e.remaining = 0
}

// endOfPass refills the working queue or drops the entry to idle.
func (e *entry) endOfPass() {
	switch {
	case e.remaining == pattern.Infinite:
		e.cursor = 0
	case e.remaining > 0:
		e.remaining--
		e.cursor = 0
	default:
		e.reset()
	}
}

func (e *entry) write(on bool) *ChannelWriteFailure {
	if err := e.ch.Set(on); err != nil {
		return &ChannelWriteFailure{Channel: e.name, Level: on, Err: err}
	}
	e.level = on
	return nil
}

// ChannelStatus is a point-in-time view of one channel's schedule.
type ChannelStatus struct {
	Name      string
	Level     bool // last level successfully written
	Active    bool // ticks left in the current pass
	Remaining int  // refills left, pattern.Infinite for forever
	Position  int  // ticks consumed in the current pass
	Length    int  // ticks per pass
	Failing   bool // most recent write failed
}

// Registry maps channel names to their scheduler entries.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	period  time.Duration
	entries map[string]*entry
	order   []*entry

	logger *slog.Logger
	bus    *events.Bus
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for write failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithBus publishes assignment and write failure events to b.
func WithBus(b *events.Bus) Option {
	return func(r *Registry) {
		r.bus = b
	}
}

// NewRegistry creates an empty registry that compiles patterns at period.
func NewRegistry(period time.Duration, opts ...Option) *Registry {
	r := &Registry{
		period:  period,
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Period returns the tick period patterns are compiled against.
func (r *Registry) Period() time.Duration {
	return r.period
}

// Register adds an idle entry for name. Registering a name twice returns
// ErrDuplicateChannel and leaves the existing entry and its pattern alone.
func (r *Registry) Register(name string, ch Channel) error {
	if name == "" {
		return errors.New("engine: empty channel name")
	}
	if ch == nil {
		return fmt.Errorf("engine: nil channel for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateChannel, name)
	}
	e := &entry{name: name, ch: ch}
	r.entries[name] = e
	r.order = append(r.order, e)
	return nil
}

// Channels returns registered names in registration order.
func (r *Registry) Channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.order))
	for i, e := range r.order {
		names[i] = e.name
	}
	return names
}

// Assign compiles d and replaces the channel's pattern in one step.
// An unknown name is reported before the descriptor is looked at. The
// compile happens outside the lock, so a malformed descriptor never
// disturbs the running pattern. A descriptor that compiles to nothing
// stops the channel.
func (r *Registry) Assign(name string, d pattern.Descriptor) error {
	r.mu.Lock()
	_, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return &UnknownChannelError{Channel: name}
	}

	prog, err := pattern.Compile(d, r.period)
	if err != nil {
		return err
	}

	// Entries are never removed, so the lookup above still holds.
	r.mu.Lock()
	e := r.entries[name]
	var failure *ChannelWriteFailure
	if prog.Idle() {
		e.reset()
		failure = r.trackFailure(e, e.write(false))
	} else {
		e.load(prog)
	}
	r.mu.Unlock()

	if prog.Idle() {
		r.stopped(name)
	} else {
		channelAssignments.WithLabelValues(name).Inc()
		events.Publish(r.bus, events.PatternAssigned{Channel: name, Ticks: len(prog.Ticks)})
	}
	return r.report(failure)
}

// Stop drops the channel to idle and writes OFF immediately.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	e, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return &UnknownChannelError{Channel: name}
	}
	e.reset()
	failure := r.trackFailure(e, e.write(false))
	r.mu.Unlock()

	r.stopped(name)
	return r.report(failure)
}

// StopAll stops every registered channel. Write failures are joined.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	names := make([]string, 0, len(r.order))
	var failures []*ChannelWriteFailure
	for _, e := range r.order {
		e.reset()
		if f := r.trackFailure(e, e.write(false)); f != nil {
			failures = append(failures, f)
		}
		names = append(names, e.name)
	}
	r.mu.Unlock()

	for _, name := range names {
		r.stopped(name)
	}
	return r.report(failures...)
}

// stopped counts and publishes a channel going idle.
func (r *Registry) stopped(name string) {
	channelStops.WithLabelValues(name).Inc()
	events.Publish(r.bus, events.PatternAssigned{Channel: name, Idle: true})
}

// Tick advances every entry by one tick and applies the resulting level.
// A failing channel never prevents the others from being written.
func (r *Registry) Tick() error {
	start := time.Now()

	r.mu.Lock()
	var failures []*ChannelWriteFailure
	active := 0
	for _, e := range r.order {
		if f := r.trackFailure(e, r.step(e)); f != nil {
			failures = append(failures, f)
		}
		if e.active() {
			active++
		}
	}
	r.mu.Unlock()

	ticksTotal.Inc()
	activeChannels.Set(float64(active))
	tickDuration.Observe(time.Since(start).Seconds())
	return r.report(failures...)
}

// step pops one level from the working queue, or forces OFF a channel whose
// pattern has run out while it was left ON.
func (r *Registry) step(e *entry) *ChannelWriteFailure {
	if e.active() {
		on := e.template[e.cursor]
		e.cursor++
		if e.cursor == len(e.template) {
			e.endOfPass()
		}
		return e.write(on)
	}
	if e.level {
		return e.write(false)
	}
	return nil
}

// trackFailure logs the first failure of a run and the recovery after it.
// Must be called with r.mu held.
func (r *Registry) trackFailure(e *entry, f *ChannelWriteFailure) *ChannelWriteFailure {
	switch {
	case f != nil && !e.failing:
		e.failing = true
		r.logger.Warn("channel write failed", "channel", e.name, "level", levelString(f.Level), "error", f.Err)
	case f == nil && e.failing:
		e.failing = false
		r.logger.Info("channel write recovered", "channel", e.name)
	}
	return f
}

// report counts and publishes failures, then joins them into one error.
func (r *Registry) report(failures ...*ChannelWriteFailure) error {
	var errs []error
	for _, f := range failures {
		if f == nil {
			continue
		}
		writeFailures.WithLabelValues(f.Channel).Inc()
		events.Publish(r.bus, events.ChannelWriteFailed{Channel: f.Channel, Level: f.Level, Error: f.Err.Error()})
		errs = append(errs, f)
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// Snapshot returns the current schedule of every channel in registration order.
func (r *Registry) Snapshot() []ChannelStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChannelStatus, len(r.order))
	for i, e := range r.order {
		out[i] = ChannelStatus{
			Name:      e.name,
			Level:     e.level,
			Active:    e.active(),
			Remaining: e.remaining,
			Position:  e.cursor,
			Length:    len(e.template),
			Failing:   e.failing,
		}
	}
	return out
}
