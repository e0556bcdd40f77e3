// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package breaker

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a call is rejected without being attempted
// because the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the breaker's position in its lifecycle.
type State int

const (
	// Closed passes calls through, counting consecutive failures.
	Closed State = iota
	// Open rejects calls immediately until the cooldown expires.
	Open
	// HalfOpen admits a single trial call to probe recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// StateChange is invoked synchronously on every breaker transition.
// Callbacks must be fast and must not call back into the breaker.
type StateChange func(name string, from, to State)

// Config tunes a breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that
	// trips the breaker open.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before admitting
	// a half-open trial.
	Cooldown time.Duration
	// OnStateChange, when set, observes transitions.
	OnStateChange StateChange
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// now is overridable for tests.
	now func() time.Time
}

// DefaultConfig returns the production tuning: five consecutive
// failures open the breaker for thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a per-dependency circuit breaker. While closed it counts
// consecutive failures; at the threshold it opens and rejects calls for
// the cooldown; then a single half-open trial decides between closing
// and re-opening. Any success while closed resets the failure count.
type Breaker struct {
	name     string
	cfg      Config
	logger   *slog.Logger
	onChange StateChange
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool
}

// New creates a breaker named for the dependency it guards.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		onChange: cfg.OnStateChange,
		now:      now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State reports the current state. An open breaker stays open until a
// call is admitted as the half-open trial; cooldown expiry alone does
// not transition it, so State always agrees with what OnStateChange
// has observed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do runs fn under the breaker's policy. While open it returns ErrOpen
// without calling fn. After the cooldown exactly one caller is admitted
// as the half-open trial; concurrent callers still get ErrOpen until
// the trial resolves.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.transition(HalfOpen)
		b.trialing = true
		return nil
	case HalfOpen:
		if b.trialing {
			return ErrOpen
		}
		b.trialing = true
		return nil
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if err != nil {
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.openedAt = b.now()
				b.transition(Open)
			}
			return
		}
		b.failures = 0
	case HalfOpen:
		b.trialing = false
		if err != nil {
			b.openedAt = b.now()
			b.transition(Open)
			return
		}
		b.failures = 0
		b.transition(Closed)
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.logger.Info("circuit breaker state change",
		"breaker", b.name, "from", from.String(), "to", to.String())
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
