// Package circuit guards reads from a single backing device (an open
// OS file handle, typically) against hammering hardware that has gone
// consistently bad: once a run of failures crosses a threshold, the
// breaker rejects further attempts for a cooldown period instead of
// letting every caller retry against the same dying disk.
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State is one of the three states a Breaker cycles through.
type State int

const (
	// StateClosed lets reads through and counts their outcome.
	StateClosed State = iota
	// StateOpen rejects reads outright until the cooldown expires.
	StateOpen
	// StateHalfOpen allows a limited probe of reads to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a Breaker. The zero value is usable: it falls back to
// a one-probe half-open window, a 60s closed-state counting interval,
// a 60s open-state cooldown, and a 50%-failure-rate trip threshold.
type Config struct {
	// MaxRequests caps concurrent probes while half-open.
	MaxRequests uint32

	// Interval is how long the closed state accumulates Counts before
	// resetting them (a rolling failure-rate window).
	Interval time.Duration

	// Timeout is the open-state cooldown before probing half-open.
	Timeout time.Duration

	// ReadyToTrip decides whether accumulated Counts should open the
	// breaker. Evaluated only while closed.
	ReadyToTrip func(counts Counts) bool

	// OnStateChange, if set, is called on every state transition.
	OnStateChange func(name string, from, to State)

	// IsSuccessful classifies a read's error as success or failure.
	IsSuccessful func(err error) bool
}

// Counts tallies the closed-state request history used by ReadyToTrip.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
	LastActivity         time.Time
}

func (c *Counts) onRequest() {
	c.Requests++
	c.LastActivity = time.Now()
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

func (c *Counts) clear() {
	*c = Counts{}
}

var (
	// ErrOpenState is returned while the breaker is open.
	ErrOpenState = errors.New("circuit breaker: device reads suspended")

	// ErrTooManyRequests is returned when a half-open probe slot is
	// already occupied.
	ErrTooManyRequests = errors.New("circuit breaker: too many probe reads in half-open state")
)

// Breaker wraps reads from one named device, tripping open after a
// sustained run of failures and probing recovery in half-open state.
type Breaker struct {
	name   string
	config Config

	mu     sync.Mutex
	state  State
	counts Counts
	expiry time.Time
}

// New names a Breaker for device name, applying Config defaults for
// any zero-valued field.
func New(name string, config Config) *Breaker {
	if config.MaxRequests == 0 {
		config.MaxRequests = 1
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = defaultReadyToTrip
	}
	if config.IsSuccessful == nil {
		config.IsSuccessful = defaultIsSuccessful
	}
	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		expiry: time.Now().Add(config.Interval),
	}
}

func defaultReadyToTrip(counts Counts) bool {
	return counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
}

func defaultIsSuccessful(err error) bool { return err == nil }

// Execute runs read if the breaker is closed or the half-open probe
// slot is free, and records its outcome.
func (b *Breaker) Execute(read func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := read()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, _ := b.currentState(now)
	if state == StateOpen {
		return ErrOpenState
	}
	if state == StateHalfOpen && b.counts.Requests >= b.config.MaxRequests {
		return ErrTooManyRequests
	}
	b.counts.onRequest()
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, _ := b.currentState(now)
	if b.config.IsSuccessful(err) {
		b.counts.onSuccess()
		if state == StateHalfOpen {
			b.setState(StateClosed, now)
		}
		return
	}

	b.counts.onFailure()
	switch state {
	case StateClosed:
		if b.config.ReadyToTrip(b.counts) {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		b.setState(StateOpen, now)
	}
}

// currentState advances the closed-interval rollover and the
// open-to-half-open cooldown before returning the live state.
func (b *Breaker) currentState(now time.Time) (State, time.Time) {
	switch b.state {
	case StateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts.clear()
			b.expiry = now.Add(b.config.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.setState(StateHalfOpen, now)
		}
	}
	return b.state, b.expiry
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state
	b.counts.clear()

	switch state {
	case StateClosed:
		b.expiry = now.Add(b.config.Interval)
	case StateOpen:
		b.expiry = now.Add(b.config.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, prev, state)
	}
}

// GetState returns the breaker's current state, advancing any
// interval/cooldown rollover first.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.currentState(time.Now())
	return state
}

// GetCounts returns a copy of the current closed-interval counts.
func (b *Breaker) GetCounts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Reset forces the breaker back to closed with cleared counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts.clear()
	b.setState(StateClosed, time.Now())
}

// Name returns the device name this breaker was created with.
func (b *Breaker) Name() string { return b.name }
