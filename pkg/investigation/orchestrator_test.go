package investigation_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/ooda"
)

func TestInvestigation(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "InvestigationOrchestrator Suite")
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

type stubEvidence struct{}

func (stubEvidence) Collect(ctx context.Context, incident *contracts.Incident) ([]contracts.Evidence, error) {
	return []contracts.Evidence{{ID: "e1", IncidentID: incident.ID, Source: "logs", Summary: "OOMKilled"}}, nil
}

type stubPatterns struct{}

func (stubPatterns) FindMatching(input investigation.PatternMatchInput, opts investigation.PatternMatchOptions) ([]investigation.PatternMatch, error) {
	return []investigation.PatternMatch{{
		Pattern: contracts.LearnedPattern{Name: "memory leak"},
		Score:   0.8,
	}}, nil
}

type stubHypotheses struct{ confidence float64 }

func (s stubHypotheses) Generate(ctx context.Context, incident *contracts.Incident, evidence []contracts.Evidence, matches []investigation.PatternMatch) ([]contracts.Hypothesis, error) {
	return []contracts.Hypothesis{{
		ID: "h1", IncidentID: incident.ID, RootCause: "mem leak", Confidence: s.confidence,
	}}, nil
}

type stubExecutor struct{ fail bool }

func (s stubExecutor) Execute(ctx context.Context, action contracts.Action) (contracts.ActionResult, error) {
	return contracts.ActionResult{Success: !s.fail, Mode: "simulated"}, nil
}
func (stubExecutor) CheckAvailability(ctx context.Context) (contracts.AvailabilityResult, error) {
	return contracts.AvailabilityResult{Modes: []string{"restart"}}, nil
}
func (stubExecutor) CheckCooldown(ctx context.Context, action contracts.Action) (contracts.CooldownResult, error) {
	return contracts.CooldownResult{Allowed: true}, nil
}

type stubVerifier struct{ success bool }

func (s stubVerifier) Verify(ctx context.Context, action contracts.Action, wait time.Duration) (contracts.VerificationResult, error) {
	return contracts.VerificationResult{Success: s.success, Confidence: 0.9}, nil
}

type codeFixExecutor struct{}

func (codeFixExecutor) Execute(ctx context.Context, action contracts.Action) (contracts.ActionResult, error) {
	return contracts.ActionResult{Success: true, Mode: "live"}, nil
}
func (codeFixExecutor) CheckAvailability(ctx context.Context) (contracts.AvailabilityResult, error) {
	return contracts.AvailabilityResult{Modes: []string{"code_fix"}}, nil
}
func (codeFixExecutor) CheckCooldown(ctx context.Context, action contracts.Action) (contracts.CooldownResult, error) {
	return contracts.CooldownResult{Allowed: true}, nil
}

type stubCodeFixEnqueuer struct{ enqueued int }

func (s *stubCodeFixEnqueuer) EnqueueCodeFix(ctx context.Context, incident *contracts.Incident, hypothesis contracts.Hypothesis) (contracts.ActionResult, error) {
	s.enqueued++
	return contracts.ActionResult{Success: true, Mode: "async"}, nil
}

var _ = Describe("Orchestrator happy path", func() {
	It("drives IDLE through DONE with one resolved event", func() {
		incident := &contracts.Incident{ID: "i1", Severity: contracts.SeverityHigh, Namespace: "demo-app"}

		sm := ooda.New(ooda.DefaultConfig(), testLogger())

		var states []contracts.OODAState
		sm.Subscribe(func(e ooda.Event) {
			if e.Kind == "state:entered" {
				states = append(states, e.To)
			}
		})

		var resolvedCount int
		cfg := investigation.DefaultConfig()
		cfg.VerificationWait = 10 * time.Millisecond
		orch := investigation.New(cfg, investigation.Collaborators{
			Evidence:   stubEvidence{},
			Patterns:   stubPatterns{},
			Hypotheses: stubHypotheses{confidence: 0.82},
			Executor:   stubExecutor{},
			Verifier:   stubVerifier{success: true},
		}, sm, testLogger())
		orch.Subscribe(func(e investigation.Event) {
			if e.Kind == "investigation:completed" {
				resolvedCount++
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(orch.Start(ctx, incident)).To(Succeed())

		Expect(states).To(Equal([]contracts.OODAState{
			contracts.StateObserving,
			contracts.StateOrienting,
			contracts.StateDeciding,
			contracts.StateActing,
			contracts.StateVerifying,
			contracts.StateDone,
		}))
		Expect(resolvedCount).To(Equal(1))
		Expect(incident.IsInvestigating).To(BeFalse())
	})
})

var _ = Describe("Orchestrator code_fix escalation", func() {
	It("enqueues a code fix asynchronously instead of calling Executor.Execute", func() {
		incident := &contracts.Incident{ID: "i3", Severity: contracts.SeverityHigh, Namespace: "demo-app"}
		sm := ooda.New(ooda.DefaultConfig(), testLogger())

		cfg := investigation.DefaultConfig()
		cfg.VerificationWait = 10 * time.Millisecond
		enqueuer := &stubCodeFixEnqueuer{}
		orch := investigation.New(cfg, investigation.Collaborators{
			Evidence:   stubEvidence{},
			Patterns:   stubPatterns{},
			Hypotheses: stubHypotheses{confidence: 0.9},
			Executor:   codeFixExecutor{},
			Verifier:   stubVerifier{success: true},
			CodeFixes:  enqueuer,
		}, sm, testLogger())

		var asyncActions int
		orch.Subscribe(func(e investigation.Event) {
			if e.Kind == "action:executed" && e.Details["mode"] == "async" {
				asyncActions++
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(orch.Start(ctx, incident)).To(Succeed())

		Expect(enqueuer.enqueued).To(Equal(1))
		Expect(asyncActions).To(Equal(1))
		Expect(sm.Current()).To(Equal(contracts.StateDone))
	})
})

type emptyPatterns struct{}

func (emptyPatterns) FindMatching(input investigation.PatternMatchInput, opts investigation.PatternMatchOptions) ([]investigation.PatternMatch, error) {
	return nil, nil
}

var _ = Describe("Orchestrator ORIENTING need_more_data budget", func() {
	It("fails after exhausting the ORIENTING retry budget when no patterns ever match", func() {
		incident := &contracts.Incident{ID: "i4", Severity: contracts.SeverityMedium, Namespace: "demo-app"}
		sm := ooda.New(ooda.DefaultConfig(), testLogger())
		orch := investigation.New(investigation.DefaultConfig(), investigation.Collaborators{
			Evidence:   stubEvidence{},
			Patterns:   emptyPatterns{},
			Hypotheses: stubHypotheses{confidence: 0.9},
			Executor:   stubExecutor{},
			Verifier:   stubVerifier{success: true},
		}, sm, testLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(orch.Start(ctx, incident)).To(Succeed())

		Expect(sm.Current()).To(Equal(contracts.StateFailed))
		Expect(sm.FailureReason()).To(ContainSubstring("max_retries_exceeded"))
		Expect(sm.PhaseRetries()[contracts.StateOrienting]).To(Equal(ooda.DefaultMaxRetries()[contracts.StateOrienting]))
	})
})

var _ = Describe("Orchestrator DECIDING gate", func() {
	It("fails with no_viable_hypothesis below confidenceThreshold", func() {
		incident := &contracts.Incident{ID: "i2", Namespace: "demo-app"}
		sm := ooda.New(ooda.DefaultConfig(), testLogger())
		orch := investigation.New(investigation.DefaultConfig(), investigation.Collaborators{
			Evidence:   stubEvidence{},
			Patterns:   stubPatterns{},
			Hypotheses: stubHypotheses{confidence: 0.4},
			Executor:   stubExecutor{},
			Verifier:   stubVerifier{success: true},
		}, sm, testLogger())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(orch.Start(ctx, incident)).To(Succeed())
		Expect(sm.Current()).To(Equal(contracts.StateFailed))
		Expect(sm.FailureReason()).To(Equal("no_viable_hypothesis"))
	})
})
