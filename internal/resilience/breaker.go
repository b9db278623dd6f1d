package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	// Closed lets calls through and counts failures.
	Closed State = iota
	// Open refuses calls until the cool-off period elapses.
	Open
	// HalfOpen lets a single probe through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breaker_state",
			Help: "Current breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	breakerOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breaker_open_total",
			Help: "Number of times a breaker tripped open",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(breakerState, breakerOpened)
}

// Breaker trips after a run of consecutive failures and recovers through a
// half-open probe. The worker puts one in front of the PDF renderer so a dead
// render endpoint does not soak up every queue slot in timeouts.
type Breaker struct {
	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	threshold int
	openFor   time.Duration
	target    string
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBreaker returns a breaker that opens after threshold consecutive failures
// and stays open for openFor before probing.
func NewBreaker(target string, threshold int, openFor time.Duration, logger zerolog.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	if target == "" {
		target = "default"
	}
	b := &Breaker{
		threshold: threshold,
		openFor:   openFor,
		target:    target,
		logger:    logger,
		now:       time.Now,
	}
	breakerState.WithLabelValues(target).Set(0)
	return b
}

// Allow reports whether a call may proceed. An open breaker moves to half-open
// once the cool-off period has elapsed and admits that single probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) >= b.openFor {
			b.transitionLocked(HalfOpen)
			return true
		}
		return false
	}
	return true
}

// Report records the outcome of a call.
func (b *Breaker) Report(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		if success {
			b.transitionLocked(Closed)
		} else {
			b.transitionLocked(Open)
		}
		return
	}

	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.transitionLocked(Open)
	}
}

func (b *Breaker) transitionLocked(next State) {
	prev := b.state
	b.state = next
	b.failures = 0
	if next == Open {
		b.openedAt = b.now()
		breakerOpened.WithLabelValues(b.target).Inc()
	}
	breakerState.WithLabelValues(b.target).Set(float64(next))
	b.logger.Info().
		Str("target", b.target).
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("breaker_transition")
}
