// Package command expands commander batches into per-channel engine calls.
//
// A batch maps a channel name or group alias to "off", a macro name, or an
// inline descriptor. Group aliases are expanded first, sirens before LEDs,
// then every remaining key is applied in sorted order. A bad key fails on
// its own; the rest of the batch is still applied.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sweeney/signal-agent/internal/events"
	"github.com/sweeney/signal-agent/internal/pattern"
)

// Group alias keys.
const (
	KeyAllLEDs   = "led_all"
	KeyAllSirens = "sir_all"
)

// OffToken stops a channel or group.
const OffToken = "off"

// Target receives the expanded calls. *engine.Registry satisfies it.
type Target interface {
	Assign(name string, d pattern.Descriptor) error
	Stop(name string) error
}

// Groups lists the channels each alias fans out to.
type Groups struct {
	LEDs   []string
	Sirens []string
}

// Batch is one parsed command payload: key to raw JSON value.
type Batch map[string]json.RawMessage

// ParseBatch decodes a command payload. The payload must be a JSON object.
func ParseBatch(payload []byte) (Batch, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, errors.New("command: payload is not a JSON object")
	}
	var b Batch
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("command: decode payload: %w", err)
	}
	return b, nil
}

// UnknownMacroError reports a string value that is neither "off" nor a
// configured macro.
type UnknownMacroError struct {
	Name string
}

func (e *UnknownMacroError) Error() string {
	return fmt.Sprintf("command: unknown macro %q", e.Name)
}

// KeyError is the failure of a single batch key.
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string {
	return e.Key + ": " + e.Err.Error()
}

func (e KeyError) Unwrap() error {
	return e.Err
}

// Result describes what a batch did. Channels appear in the order they
// were applied.
type Result struct {
	Assigned []string
	Stopped  []string
	Errors   []KeyError
}

// Err joins all key errors, or returns nil when every key succeeded.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// action is a resolved value: either a stop or a descriptor to assign.
type action struct {
	stop bool
	desc pattern.Descriptor
}

// Preprocessor resolves aliases and macros and applies batches to a Target.
type Preprocessor struct {
	target Target
	groups Groups
	macros map[string]pattern.Descriptor
	logger *slog.Logger
	bus    *events.Bus
}

// Option configures a Preprocessor.
type Option func(*Preprocessor)

// WithLogger sets the logger used for per-key failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Preprocessor) {
		p.logger = l
	}
}

// WithBus publishes a CommandApplied event after every batch.
func WithBus(b *events.Bus) Option {
	return func(p *Preprocessor) {
		p.bus = b
	}
}

// New creates a Preprocessor. The macro table is copied and never changes.
func New(target Target, groups Groups, macros map[string]pattern.Descriptor, opts ...Option) *Preprocessor {
	m := make(map[string]pattern.Descriptor, len(macros))
	for name, d := range macros {
		m[name] = d
	}
	p := &Preprocessor{
		target: target,
		groups: groups,
		macros: m,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply expands and applies a batch. It never stops early.
func (p *Preprocessor) Apply(b Batch) Result {
	var res Result
	keys := len(b)

	// Copy so alias removal does not touch the caller's map.
	work := make(Batch, len(b))
	for k, v := range b {
		work[k] = v
	}

	p.expandAlias(work, KeyAllSirens, p.groups.Sirens, &res)
	p.expandAlias(work, KeyAllLEDs, p.groups.LEDs, &res)

	names := make([]string, 0, len(work))
	for k := range work {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		act, err := p.resolve(work[name])
		if err != nil {
			p.fail(&res, name, err)
			continue
		}
		p.apply(&res, name, name, act)
	}

	commandsTotal.Inc()
	if len(res.Errors) > 0 {
		commandKeyErrors.Add(float64(len(res.Errors)))
	}
	events.Publish(p.bus, events.CommandApplied{Keys: keys, Errors: len(res.Errors)})
	return res
}

// expandAlias applies an alias to every member not named explicitly in
// the batch, then removes the alias key whatever its value was.
func (p *Preprocessor) expandAlias(work Batch, alias string, members []string, res *Result) {
	raw, ok := work[alias]
	if !ok {
		return
	}
	delete(work, alias)

	act, err := p.resolve(raw)
	if err != nil {
		p.fail(res, alias, err)
		return
	}
	for _, name := range members {
		// "off" reaches every member; a pattern leaves explicit keys to
		// their own value.
		if _, explicit := work[name]; explicit && !act.stop {
			continue
		}
		p.apply(res, alias, name, act)
	}
}

// resolve turns a raw value into an action without touching the target.
func (p *Preprocessor) resolve(raw json.RawMessage) (action, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if strings.EqualFold(s, OffToken) {
			return action{stop: true}, nil
		}
		d, ok := p.macros[s]
		if !ok {
			return action{}, &UnknownMacroError{Name: s}
		}
		return action{desc: d}, nil
	}

	d, err := pattern.ParseDescriptor(raw)
	if err != nil {
		return action{}, err
	}
	return action{desc: d}, nil
}

func (p *Preprocessor) apply(res *Result, key, name string, act action) {
	var err error
	if act.stop {
		err = p.target.Stop(name)
	} else {
		err = p.target.Assign(name, act.desc)
	}
	if err != nil {
		p.fail(res, keyFor(key, name), err)
		return
	}
	if act.stop {
		res.Stopped = append(res.Stopped, name)
	} else {
		res.Assigned = append(res.Assigned, name)
	}
}

func (p *Preprocessor) fail(res *Result, key string, err error) {
	p.logger.Warn("command key failed", "key", key, "error", err)
	res.Errors = append(res.Errors, KeyError{Key: key, Err: err})
}

// keyFor names a failure after the channel, qualified by the alias that
// produced it.
func keyFor(key, name string) string {
	if key == name {
		return name
	}
	return key + "." + name
}
