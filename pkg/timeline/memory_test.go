package timeline_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/timeline"
)

var _ = Describe("Store as IncidentRepository", func() {
	It("creates, fetches, updates, lists, and deletes incidents", func() {
		s := timeline.NewStore()
		repo := s.IncidentRepository()
		ctx := context.Background()

		inc := &contracts.Incident{Namespace: "prod", Status: contracts.IncidentActive, Severity: contracts.SeverityHigh}
		Expect(repo.Create(ctx, inc)).To(Succeed())
		Expect(inc.ID).NotTo(BeEmpty())

		fetched, err := repo.GetByID(ctx, inc.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetched.Namespace).To(Equal("prod"))

		fetched.Status = contracts.IncidentResolved
		Expect(repo.Update(ctx, fetched)).To(Succeed())

		list, err := repo.List(ctx, timeline.Filter{"namespace": "prod"}, 10, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].Status).To(Equal(contracts.IncidentResolved))

		Expect(repo.Delete(ctx, inc.ID)).To(Succeed())
		_, err = repo.GetByID(ctx, inc.ID)
		Expect(err).To(HaveOccurred())
	})

	It("finds interrupted investigations by stale heartbeat", func() {
		s := timeline.NewStore()
		repo := s.IncidentRepository()
		ctx := context.Background()

		stale := time.Now().Add(-time.Hour)
		fresh := time.Now()
		stuck := &contracts.Incident{IsInvestigating: true, InvestigationHeartbeat: &stale}
		healthy := &contracts.Incident{IsInvestigating: true, InvestigationHeartbeat: &fresh}
		Expect(repo.Create(ctx, stuck)).To(Succeed())
		Expect(repo.Create(ctx, healthy)).To(Succeed())

		interrupted, err := repo.GetInterruptedInvestigations(ctx, 5*time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(interrupted).To(HaveLen(1))
		Expect(interrupted[0].ID).To(Equal(stuck.ID))
	})
})

var _ = Describe("Store as PatternRepository", func() {
	It("tracks match and application counts with a running success rate", func() {
		s := timeline.NewStore()
		repo := s.PatternRepository()
		ctx := context.Background()

		p := &contracts.LearnedPattern{
			Name: "pod-crashloop", Description: "restart on crashloop",
			TriggerConditions: []string{"crashloop"}, RecommendedActions: []string{"restart"},
			Confidence: 0.8,
		}
		Expect(repo.Create(ctx, p)).To(Succeed())

		Expect(repo.RecordMatch(ctx, p.ID)).To(Succeed())
		Expect(repo.RecordApplication(ctx, p.ID, true)).To(Succeed())
		Expect(repo.RecordApplication(ctx, p.ID, false)).To(Succeed())

		got, err := repo.GetByID(ctx, p.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.TimesMatched).To(Equal(1))
		Expect(got.TimesApplied).To(Equal(2))
		Expect(*got.SuccessRate).To(BeNumerically("~", 0.5, 0.001))
	})
})

var _ = Describe("Store as EditLockRepository", func() {
	It("expires active locks past their expiry and is idempotent after convergence", func() {
		s := timeline.NewStore()
		repo := s.EditLockRepository()
		ctx := context.Background()

		lock := &contracts.EditLock{
			DevelopmentCycleID: "cycle-1",
			Status:             contracts.LockActive,
			ExpiresAt:          time.Now().Add(-time.Minute),
		}
		Expect(repo.Create(ctx, lock)).To(Succeed())

		count, err := repo.ExpireStale(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))

		count, err = repo.ExpireStale(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(0))

		got, err := repo.GetByID(ctx, lock.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(contracts.LockExpired))
	})
})

var _ = Describe("Store as DevelopmentCycleRepository", func() {
	It("reports cycles interrupted mid-flight", func() {
		s := timeline.NewStore()
		repo := s.DevelopmentCycleRepository()
		ctx := context.Background()

		running := &contracts.DevelopmentCycle{Phase: "BUILDING"}
		done := &contracts.DevelopmentCycle{Phase: contracts.CycleCompleted}
		Expect(repo.Create(ctx, running)).To(Succeed())
		Expect(repo.Create(ctx, done)).To(Succeed())

		interrupted, err := repo.GetInterrupted(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(interrupted).To(HaveLen(1))
		Expect(interrupted[0].ID).To(Equal(running.ID))
	})
})

var _ = Describe("Store as TimelineEventRepository", func() {
	It("is append-only and filterable by incident", func() {
		s := timeline.NewStore()
		repo := s.TimelineEventRepository()
		ctx := context.Background()

		Expect(repo.Create(ctx, &timeline.Event{IncidentID: "inc-1", Kind: "phase:changed"})).To(Succeed())
		Expect(repo.Create(ctx, &timeline.Event{IncidentID: "inc-2", Kind: "phase:changed"})).To(Succeed())

		events, err := repo.List(ctx, timeline.Filter{"incidentId": "inc-1"}, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].IncidentID).To(Equal("inc-1"))
	})
})
