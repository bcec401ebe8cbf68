package patterns_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/broadcomms/chronosops/pkg/contracts"
	"github.com/broadcomms/chronosops/pkg/patterns"
)

type stubExtractor struct {
	result contracts.ExtractResult
	err    error
}

func (s stubExtractor) ExtractPatterns(ctx context.Context, in contracts.IncidentContext) (contracts.ExtractResult, error) {
	return s.result, s.err
}

func (s stubExtractor) ReconstructIncident(ctx context.Context, raw contracts.RawIncidentData) (contracts.Reconstruction, error) {
	return contracts.Reconstruction{}, nil
}

var _ = Describe("Learner.LearnFromResolution", func() {
	incident := &contracts.Incident{ID: "i1", Namespace: "prod"}

	It("ingests every proposal the extractor returns", func() {
		extractor := stubExtractor{result: contracts.ExtractResult{Patterns: []contracts.ProposedPattern{
			{
				Type:               contracts.PatternResolution,
				Name:               "memory leak restart",
				Description:        "restarting the pod clears the leak",
				TriggerConditions:  []contracts.TriggerCondition{{Signal: "heap", Threshold: "90pct", Source: "metrics"}},
				RecommendedActions: []contracts.RecommendedAction{{Action: "restart", When: "heap > 90%"}},
				Confidence:         0.8,
			},
		}}}
		kb := patterns.New()
		l := patterns.NewLearner(kb, extractor)

		learned, err := l.LearnFromResolution(context.Background(), patterns.IncidentForLearning{
			Incident:   incident,
			Hypothesis: contracts.Hypothesis{RootCause: "memory leak", Confidence: 0.8},
			Action:     contracts.Action{Type: "restart"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(learned).To(HaveLen(1))
		Expect(learned[0].SourceIncidentID).To(Equal("i1"))
		Expect(learned[0].TriggerConditions).To(ContainElement("heap 90pct metrics"))
	})

	It("skips a proposal that fails ingest validation without erroring the batch", func() {
		extractor := stubExtractor{result: contracts.ExtractResult{Patterns: []contracts.ProposedPattern{
			{Name: "", Description: "missing a name"},
		}}}
		kb := patterns.New()
		l := patterns.NewLearner(kb, extractor)

		learned, err := l.LearnFromResolution(context.Background(), patterns.IncidentForLearning{Incident: incident})
		Expect(err).NotTo(HaveOccurred())
		Expect(learned).To(BeEmpty())
	})

	It("propagates an extractor error", func() {
		extractor := stubExtractor{err: context.DeadlineExceeded}
		kb := patterns.New()
		l := patterns.NewLearner(kb, extractor)

		_, err := l.LearnFromResolution(context.Background(), patterns.IncidentForLearning{Incident: incident})
		Expect(err).To(HaveOccurred())
	})
})
