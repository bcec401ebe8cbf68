package timeline_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/pkg/build"
	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/investigation"
	"github.com/broadcomms/chronosops/pkg/ooda"
	"github.com/broadcomms/chronosops/pkg/timeline"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

var _ = Describe("Builder", func() {
	It("persists OODA, investigation, and build events once flushed", func() {
		store := timeline.NewStore()
		repo := store.TimelineEventRepository()
		b := timeline.NewBuilder(repo, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		b.Start(ctx)

		ib := b.ForIncident("inc-1")
		ib.HandleOODAEvent(ooda.Event{Kind: "state:changed", From: contracts.StateObserving, To: contracts.StateOrienting})
		b.HandleInvestigationEvent(investigation.Event{Kind: "investigation:started", IncidentID: "inc-1"})
		b.HandleBuildEvent("cycle-1", build.Event{Kind: "stageChange", Stage: contracts.StageBuilding, AppName: "demo"})

		cancel()
		b.Close()

		events, err := repo.List(context.Background(), timeline.Filter{"incidentId": "inc-1"}, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))

		cycleEvents, err := repo.List(context.Background(), timeline.Filter{"developmentCycleId": "cycle-1"}, 0, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(cycleEvents).To(HaveLen(1))
		Expect(cycleEvents[0].Kind).To(Equal("build:stageChange"))
	})

	It("flushes on a timer even without reaching the batch size", func() {
		store := timeline.NewStore()
		repo := store.TimelineEventRepository()
		b := timeline.NewBuilder(repo, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		b.Start(ctx)

		b.HandleInvestigationEvent(investigation.Event{Kind: "phase:changed", IncidentID: "inc-2"})

		Eventually(func() int {
			events, _ := repo.List(context.Background(), timeline.Filter{"incidentId": "inc-2"}, 0, 0)
			return len(events)
		}, 3*time.Second, 50*time.Millisecond).Should(Equal(1))
	})
})
