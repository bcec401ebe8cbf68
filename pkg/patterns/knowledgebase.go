// Package patterns implements the PatternKnowledgeBase and PatternLearner: a
// deduplicated store of learned (trigger -> action) rules, scored matching
// against new incidents, and running-mean tracking of applied patterns'
// success rate.
package patterns

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/broadcomms/chronosops/pkg/contracts"
)

// MatchInput describes the incident signal a match is scored against. Its
// fields mirror contracts.IncidentContext so an orchestrator can build one
// directly from the evidence it has collected.
type MatchInput struct {
	ErrorMessages   []string
	Logs            []string
	Events          []contracts.EventObservation
	MetricAnomalies []contracts.MetricAnomaly
	AffectedService string
	Symptoms        []string
}

// MatchOptions bounds and filters a FindMatching call.
type MatchOptions struct {
	MinScore   float64
	MaxResults int
	Types      []contracts.PatternType
}

// Match is one scored candidate pattern.
type Match struct {
	Pattern           contracts.LearnedPattern
	Score             float64
	MatchedConditions []string
	Explanation       string
}

// KnowledgeBase stores learned patterns, deduplicates on ingest, and serves
// scored matches against new incident signals.
type KnowledgeBase struct {
	mu       sync.RWMutex
	patterns map[string]*contracts.LearnedPattern
	order    []string // insertion order, for deterministic iteration
}

// New constructs an empty KnowledgeBase.
func New() *KnowledgeBase {
	return &KnowledgeBase{patterns: map[string]*contracts.LearnedPattern{}}
}

// Ingest validates and stores a pattern. A pattern whose name matches an
// existing one ignoring case, or whose trigger-condition set has Jaccard
// similarity above 0.7 with an existing pattern, is a duplicate and is
// skipped: the existing pattern is returned unchanged and no second entry
// is created.
func (kb *KnowledgeBase) Ingest(p contracts.LearnedPattern) (*contracts.LearnedPattern, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, id := range kb.order {
		existing := kb.patterns[id]
		if strings.EqualFold(existing.Name, p.Name) || jaccard(existing.TriggerConditions, p.TriggerConditions) > 0.7 {
			return existing, true, nil
		}
	}

	stored := p
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.IsActive = true
	kb.patterns[stored.ID] = &stored
	kb.order = append(kb.order, stored.ID)
	return &stored, false, nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := toSet(a)
	setB := toSet(b)
	intersection := 0
	for k := range setA {
		if setB[k] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(strings.TrimSpace(item))] = true
	}
	return set
}

// tokenize splits free text on whitespace into lowercase tokens longer than
// three characters; a hyphenated term like "high-memory" stays one token.
// The length cutoff has a known blind spot for short acronyms like "OOM".
func tokenize(text string) []string {
	var tokens []string
	for _, f := range strings.Fields(strings.ToLower(text)) {
		if len(f) > 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// searchText builds the lowercase, whitespace-joined haystack a pattern's
// trigger conditions and exceptions are scored against: error messages, logs,
// event type/reason/message, metric anomaly metric/deviation, affected
// service, and symptoms, in that order.
func searchText(input MatchInput) string {
	var parts []string
	parts = append(parts, input.ErrorMessages...)
	parts = append(parts, input.Logs...)
	for _, e := range input.Events {
		parts = append(parts, e.Type, e.Reason, e.Message)
	}
	for _, m := range input.MetricAnomalies {
		parts = append(parts, m.Metric, strconv.FormatFloat(m.Deviation, 'f', -1, 64))
	}
	parts = append(parts, input.AffectedService)
	parts = append(parts, input.Symptoms...)
	return strings.ToLower(strings.Join(parts, " "))
}

// score implements the deterministic keyword-scoring algorithm: for each
// trigger condition, the fraction of its own tokens (length > 3) that appear
// as substrings of text contributes (k/n)*(1/|conditions|) to the score. The
// result is then scaled by the pattern's own confidence and halved for every
// exception phrase also found in text, so a pattern that claims high
// confidence but whose stated exception is present is demoted rather than
// excluded outright.
func score(p *contracts.LearnedPattern, text string) (float64, []string) {
	if len(p.TriggerConditions) == 0 {
		return 0, nil
	}

	var total float64
	var matched []string
	weight := 1.0 / float64(len(p.TriggerConditions))
	for _, cond := range p.TriggerConditions {
		tokens := tokenize(cond)
		if len(tokens) == 0 {
			continue
		}
		k := 0
		for _, t := range tokens {
			if strings.Contains(text, t) {
				k++
			}
		}
		if k > 0 {
			matched = append(matched, cond)
		}
		total += (float64(k) / float64(len(tokens))) * weight
	}

	total *= 0.5 + 0.5*p.Confidence

	for _, exception := range p.Exceptions {
		if strings.Contains(text, strings.ToLower(exception)) {
			total *= 0.5
		}
	}

	if total < 0 {
		total = 0
	}
	if total > 1 {
		total = 1
	}
	return total, matched
}

func typeAllowed(t contracts.PatternType, allowed []contracts.PatternType) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}

// FindMatching scores every active pattern against input and returns the
// matches clearing opts.MinScore, sorted by score descending and then by
// pattern name for a deterministic tie-break, capped at opts.MaxResults.
func (kb *KnowledgeBase) FindMatching(input MatchInput, opts MatchOptions) ([]Match, error) {
	text := searchText(input)

	kb.mu.Lock()
	defer kb.mu.Unlock()

	var matches []Match
	for _, id := range kb.order {
		p := kb.patterns[id]
		if !p.IsActive || !typeAllowed(p.Type, opts.Types) {
			continue
		}
		s, matchedConditions := score(p, text)
		if s < opts.MinScore {
			continue
		}
		p.TimesMatched++
		matches = append(matches, Match{
			Pattern:           *p,
			Score:             s,
			MatchedConditions: matchedConditions,
			Explanation:       explain(p, matchedConditions),
		})
	}

	// Descending by score, then ascending by name for a stable tie-break.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Pattern.Name < matches[j].Pattern.Name
	})

	if opts.MaxResults > 0 && len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

func explain(p *contracts.LearnedPattern, matched []string) string {
	if len(matched) == 0 {
		return "no trigger conditions matched"
	}
	return p.Name + " matched on: " + strings.Join(matched, ", ")
}

// GetRecommendations wraps FindMatching restricted to diagnostic and
// resolution patterns, with a fixed minScore of 0.4 and at most 5 results,
// returning the scored matches themselves (not just one winner)
// so a caller can weigh multiple recommendations.
func (kb *KnowledgeBase) GetRecommendations(input MatchInput) ([]Match, error) {
	return kb.FindMatching(input, MatchOptions{
		MinScore:   0.4,
		MaxResults: 5,
		Types:      []contracts.PatternType{contracts.PatternDiagnostic, contracts.PatternResolution},
	})
}

// RecordPatternApplication updates a pattern's running-mean success rate
// after it has been applied to a new incident.
func (kb *KnowledgeBase) RecordPatternApplication(patternID string, succeeded bool) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	p, ok := kb.patterns[patternID]
	if !ok {
		return errUnknownPattern(patternID)
	}

	p.TimesApplied++
	var outcome float64
	if succeeded {
		outcome = 1
	}
	if p.SuccessRate == nil {
		rate := outcome
		p.SuccessRate = &rate
		return nil
	}
	n := float64(p.TimesApplied)
	newRate := *p.SuccessRate + (outcome-*p.SuccessRate)/n
	p.SuccessRate = &newRate
	return nil
}

// RecordMatch increments a pattern's match counter, independent of whether it
// was ultimately applied.
func (kb *KnowledgeBase) RecordMatch(patternID string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	p, ok := kb.patterns[patternID]
	if !ok {
		return errUnknownPattern(patternID)
	}
	p.TimesMatched++
	return nil
}

// Get returns a stored pattern by ID.
func (kb *KnowledgeBase) Get(patternID string) (*contracts.LearnedPattern, bool) {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	p, ok := kb.patterns[patternID]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Deactivate flips IsActive off without removing the pattern's history.
func (kb *KnowledgeBase) Deactivate(patternID string) error {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	p, ok := kb.patterns[patternID]
	if !ok {
		return errUnknownPattern(patternID)
	}
	p.IsActive = false
	return nil
}

type unknownPatternError string

func (e unknownPatternError) Error() string { return "unknown pattern: " + string(e) }

func errUnknownPattern(id string) error { return unknownPatternError(id) }
