// Package resilience classifies collaborator errors as transient or permanent and
// trips a circuit breaker per collaborator kind so a downed collaborator does not
// get hammered through endless per-phase retries.
package resilience

import (
	"strings"
	"time"

	"github.com/sony/gobreaker"

	chronoserrors "github.com/broadcomms/chronosops/internal/errors"
)

// Classification is the outcome of classifying a collaborator error.
type Classification int

const (
	Transient Classification = iota
	Permanent
)

func (c Classification) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// fatalSubstrings mark an error as permanent regardless of breaker state,
// grounded on the per-operation-type error-pattern classification idiom
// (invalid target / permission denied are never worth retrying).
var fatalSubstrings = []string{
	"permission denied",
	"not found",
	"invalid target",
	"unauthorized",
	"forbidden",
}

// Classifier wraps one gobreaker.CircuitBreaker per collaborator kind (ai,
// cluster, db). Once a kind's breaker trips to open, every call through it
// classifies as Permanent until the breaker resets, protecting the investigation
// loop from retrying a collaborator that is definitively down.
type Classifier struct {
	breakers map[string]*gobreaker.CircuitBreaker
}

// Config controls how many consecutive failures trip a collaborator's breaker
// and how long it stays open before allowing a trial request.
type Config struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultConfig returns conservative breaker settings.
func DefaultConfig() Config {
	return Config{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// NewClassifier builds a Classifier with a breaker for each of the supplied
// collaborator kinds ("ai", "cluster", "db", ...).
func NewClassifier(kinds []string, cfg Config) *Classifier {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(kinds))
	for _, kind := range kinds {
		k := kind
		breakers[k] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    k,
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
		})
	}
	return &Classifier{breakers: breakers}
}

// Classify records the outcome of a collaborator call of the given kind and
// returns whether the error (if any) should be treated as transient or permanent.
// A nil err records a success and returns Transient (the zero value is never
// consulted by callers when err is nil).
func (c *Classifier) Classify(kind string, err error) Classification {
	breaker, ok := c.breakers[kind]
	if !ok {
		return classifyText(err)
	}

	_, callErr := breaker.Execute(func() (interface{}, error) {
		return nil, err
	})

	if callErr == nil {
		return Transient
	}
	if callErr == gobreaker.ErrOpenState || callErr == gobreaker.ErrTooManyRequests {
		return Permanent
	}
	return classifyText(err)
}

func classifyText(err error) Classification {
	if err == nil {
		return Transient
	}
	msg := strings.ToLower(err.Error())
	for _, s := range fatalSubstrings {
		if strings.Contains(msg, s) {
			return Permanent
		}
	}
	if chronoserrors.IsRetryable(err) {
		return Transient
	}
	return Transient
}

// State returns the current state of the named collaborator's breaker, or the
// empty string if no breaker is registered for that kind.
func (c *Classifier) State(kind string) string {
	breaker, ok := c.breakers[kind]
	if !ok {
		return ""
	}
	return breaker.State().String()
}
