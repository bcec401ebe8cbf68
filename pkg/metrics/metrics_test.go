package metrics_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/pkg/metrics"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Metrics Suite")
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

var _ = Describe("Recorder", func() {
	It("is safe to call on a nil receiver", func() {
		var r *metrics.Recorder
		Expect(func() {
			r.PhaseTransition("observing", "orienting")
			r.PhaseDuration("acting", time.Millisecond)
			r.InvestigationOutcome("resolved")
			r.RollbackDecision("critical", true)
			r.EditLockAcquisition("granted")
			r.BuildStageDuration("building", time.Millisecond)
			r.BuildOutcome("success")
			r.PatternMatch("diagnostic")
		}).NotTo(Panic())
	})

})

var _ = Describe("Server", func() {
	It("serves registered collectors on /metrics and OK on /health", func() {
		r := metrics.NewRecorder()
		r.BuildOutcome("success")

		server := metrics.NewServer("9881", testLogger())
		server.StartAsync()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(server.Stop(ctx)).To(Succeed())
		}()

		Eventually(func() error {
			resp, err := http.Get("http://localhost:9881/health")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return nil
		}, 2*time.Second, 20*time.Millisecond).Should(Succeed())

		resp, err := http.Get("http://localhost:9881/metrics")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring("build_outcomes_total"))
	})
})
