package investigation_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/timeline"
)

var _ = Describe("RecoveryScanner", func() {
	var (
		ctx     context.Context
		repos   timeline.Repositories
		scanner *investigation.RecoveryScanner
	)

	BeforeEach(func() {
		ctx = context.Background()
		repos = timeline.NewStore().Repositories()
		scanner = investigation.NewRecoveryScanner(repos.Incidents, repos.DevelopmentCycles, time.Minute, testLogger())
	})

	stamp := func(age time.Duration) *time.Time {
		t := time.Now().Add(-age)
		return &t
	}

	It("returns orphaned mid-flight investigations as resume candidates", func() {
		Expect(repos.Incidents.Create(ctx, &contracts.Incident{
			ID:                     "i1",
			State:                  contracts.StateActing,
			IsInvestigating:        true,
			InvestigationHeartbeat: stamp(5 * time.Minute),
			PhaseRetries:           map[contracts.OODAState]int{contracts.StateObserving: 2},
		})).To(Succeed())

		report, err := scanner.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.ResumableIncidents).To(HaveLen(1))
		Expect(report.ResumableIncidents[0].ID).To(Equal("i1"))
		Expect(report.ResumableIncidents[0].PhaseRetries).To(HaveKeyWithValue(contracts.StateObserving, 2),
			"resume candidates keep their retry counters")
	})

	It("ignores investigations with a fresh heartbeat", func() {
		Expect(repos.Incidents.Create(ctx, &contracts.Incident{
			ID:                     "i2",
			State:                  contracts.StateObserving,
			IsInvestigating:        true,
			InvestigationHeartbeat: stamp(10 * time.Second),
		})).To(Succeed())

		report, err := scanner.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.ResumableIncidents).To(BeEmpty())
		Expect(report.ClearedIncidents).To(BeZero())
	})

	It("clears orphaned investigations already in a terminal state", func() {
		Expect(repos.Incidents.Create(ctx, &contracts.Incident{
			ID:                     "i3",
			State:                  contracts.StateDone,
			IsInvestigating:        true,
			InvestigationHeartbeat: stamp(5 * time.Minute),
		})).To(Succeed())

		report, err := scanner.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.ResumableIncidents).To(BeEmpty())
		Expect(report.ClearedIncidents).To(Equal(1))

		stored, err := repos.Incidents.GetByID(ctx, "i3")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.IsInvestigating).To(BeFalse())
	})

	It("reports interrupted development cycles", func() {
		Expect(repos.DevelopmentCycles.Create(ctx, &contracts.DevelopmentCycle{
			ID:    "c1",
			Phase: contracts.DevelopmentCyclePhase("BUILDING"),
		})).To(Succeed())
		done := time.Now()
		Expect(repos.DevelopmentCycles.Create(ctx, &contracts.DevelopmentCycle{
			ID:          "c2",
			Phase:       contracts.CycleCompleted,
			CompletedAt: &done,
		})).To(Succeed())

		report, err := scanner.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.InterruptedCycles).To(HaveLen(1))
		Expect(report.InterruptedCycles[0].ID).To(Equal("c1"))
	})

	It("scans incidents alone when no cycle repository is wired", func() {
		scanner = investigation.NewRecoveryScanner(repos.Incidents, nil, time.Minute, testLogger())

		report, err := scanner.Scan(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.InterruptedCycles).To(BeEmpty())
	})
})
