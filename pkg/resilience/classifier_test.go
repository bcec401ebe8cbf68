package resilience

import (
	"fmt"
	"testing"
	"time"
)

func TestClassify_ErrorText(t *testing.T) {
	c := NewClassifier(nil, DefaultConfig())

	tests := []struct {
		name     string
		err      error
		expected Classification
	}{
		{"nil error", nil, Transient},
		{"timeout", fmt.Errorf("request timeout"), Transient},
		{"connection refused", fmt.Errorf("dial tcp: connection refused"), Transient},
		{"permission denied", fmt.Errorf("permission denied"), Permanent},
		{"not found", fmt.Errorf("deployment not found"), Permanent},
		{"unauthorized", fmt.Errorf("401 unauthorized"), Permanent},
		{"forbidden", fmt.Errorf("403 Forbidden"), Permanent},
		{"unknown text defaults transient", fmt.Errorf("something odd happened"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify("unregistered", tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassify_BreakerTripsToPermanent(t *testing.T) {
	cfg := Config{ConsecutiveFailures: 3, OpenTimeout: time.Minute}
	c := NewClassifier([]string{"ai"}, cfg)

	transientErr := fmt.Errorf("request timeout")

	// The first failures stay transient while the breaker is closed.
	for i := 0; i < 3; i++ {
		if got := c.Classify("ai", transientErr); got != Transient {
			t.Fatalf("Classify #%d = %s, want transient while breaker closed", i+1, got)
		}
	}

	// Breaker is now open: even a transient-looking error classifies permanent.
	if got := c.Classify("ai", transientErr); got != Permanent {
		t.Errorf("Classify after breaker trip = %s, want permanent", got)
	}
	if state := c.State("ai"); state != "open" {
		t.Errorf("State(ai) = %q, want open", state)
	}
}

func TestClassify_SuccessKeepsBreakerClosed(t *testing.T) {
	c := NewClassifier([]string{"db"}, Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 10; i++ {
		if got := c.Classify("db", nil); got != Transient {
			t.Fatalf("Classify(nil) = %s, want transient", got)
		}
	}
	if state := c.State("db"); state != "closed" {
		t.Errorf("State(db) = %q, want closed", state)
	}
}

func TestClassify_FailuresInterleavedWithSuccess(t *testing.T) {
	c := NewClassifier([]string{"cluster"}, Config{ConsecutiveFailures: 3, OpenTimeout: time.Minute})

	// Successes reset the consecutive-failure count, so alternating calls
	// never trip the breaker.
	for i := 0; i < 10; i++ {
		c.Classify("cluster", fmt.Errorf("connection reset"))
		c.Classify("cluster", nil)
	}
	if state := c.State("cluster"); state != "closed" {
		t.Errorf("State(cluster) = %q, want closed", state)
	}
}

func TestState_UnknownKind(t *testing.T) {
	c := NewClassifier([]string{"ai"}, DefaultConfig())
	if state := c.State("nope"); state != "" {
		t.Errorf("State(nope) = %q, want empty", state)
	}
}
