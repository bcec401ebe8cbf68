package ooda_test

import (
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/ooda"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

var _ = Describe("StateMachine", func() {
	var (
		cfg ooda.Config
		sm  *ooda.StateMachine
	)

	BeforeEach(func() {
		cfg = ooda.DefaultConfig()
	})

	Describe("transition table", func() {
		It("accepts every documented transition and changes state", func() {
			sm = ooda.New(cfg, testLogger())
			Expect(sm.Start("i1")).To(Succeed())
			Expect(sm.Current()).To(Equal(contracts.StateObserving))

			Expect(sm.Transition(contracts.StateOrienting, "")).To(Succeed())
			Expect(sm.Transition(contracts.StateDeciding, "")).To(Succeed())
			Expect(sm.Transition(contracts.StateActing, "")).To(Succeed())
			Expect(sm.Transition(contracts.StateVerifying, "")).To(Succeed())
			Expect(sm.Transition(contracts.StateDone, "")).To(Succeed())
			Expect(sm.Current()).To(Equal(contracts.StateDone))
		})

		It("rejects a pair not in the static table and leaves state unchanged", func() {
			sm = ooda.New(cfg, testLogger())
			Expect(sm.Start("i1")).To(Succeed())
			before := sm.Current()

			err := sm.Transition(contracts.StateDone, "")
			Expect(err).To(HaveOccurred())
			Expect(sm.Current()).To(Equal(before))
		})
	})

	Describe("CanRetryPhase", func() {
		It("permits up to maxRetries(phase) retries and then denies", func() {
			sm = ooda.New(cfg, testLogger())
			for i := 0; i < cfg.MaxRetries[contracts.StateObserving]; i++ {
				Expect(sm.CanRetryPhase(contracts.StateObserving)).To(BeTrue())
			}
			Expect(sm.CanRetryPhase(contracts.StateObserving)).To(BeFalse())
		})
	})

	Describe("RetryTarget", func() {
		It("self-retries OBSERVING/ORIENTING/DECIDING", func() {
			Expect(ooda.RetryTarget(contracts.StateObserving)).To(Equal(contracts.StateObserving))
			Expect(ooda.RetryTarget(contracts.StateOrienting)).To(Equal(contracts.StateOrienting))
			Expect(ooda.RetryTarget(contracts.StateDeciding)).To(Equal(contracts.StateDeciding))
		})

		It("restarts ACTING/VERIFYING from OBSERVING", func() {
			Expect(ooda.RetryTarget(contracts.StateActing)).To(Equal(contracts.StateObserving))
			Expect(ooda.RetryTarget(contracts.StateVerifying)).To(Equal(contracts.StateObserving))
		})
	})

	Describe("phase timeout recovery", func() {
		It("retries three times then fails with a reason naming the retry count", func() {
			cfg.PhaseTimeouts.Observing = 20 * time.Millisecond
			cfg.MaxRetries[contracts.StateObserving] = 3
			sm = ooda.New(cfg, testLogger())

			var mu sync.Mutex
			var failed bool
			done := make(chan struct{})
			sm.Subscribe(func(e ooda.Event) {
				if e.Kind == "incident:failed" {
					mu.Lock()
					failed = true
					mu.Unlock()
					close(done)
				}
			})

			Expect(sm.Start("i1")).To(Succeed())

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				Fail("timed out waiting for incident:failed")
			}

			mu.Lock()
			defer mu.Unlock()
			Expect(failed).To(BeTrue())
			Expect(sm.Current()).To(Equal(contracts.StateFailed))
			Expect(sm.FailureReason()).To(ContainSubstring("after 3 retries"))
			Expect(strings.Contains(sm.FailureReason(), "OBSERVING")).To(BeTrue())
		})
	})

	Describe("timer race guard", func() {
		It("ignores a stale timer once the phase has already moved on", func() {
			cfg.PhaseTimeouts.Observing = 30 * time.Millisecond
			sm = ooda.New(cfg, testLogger())
			Expect(sm.Start("i1")).To(Succeed())

			// Transition away before the armed timer fires.
			Expect(sm.Transition(contracts.StateOrienting, "")).To(Succeed())
			time.Sleep(100 * time.Millisecond)

			Expect(sm.Current()).To(Equal(contracts.StateOrienting))
		})
	})

	Describe("Resume", func() {
		It("restores mid-flight state without clearing retries", func() {
			sm = ooda.New(cfg, testLogger())
			retries := map[contracts.OODAState]int{contracts.StateObserving: 2}
			Expect(sm.Resume("i1", contracts.StateOrienting, retries)).To(Succeed())

			Expect(sm.Current()).To(Equal(contracts.StateOrienting))
			Expect(sm.PhaseRetries()[contracts.StateObserving]).To(Equal(2))
		})
	})
})
