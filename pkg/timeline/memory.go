package timeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/broadcomms/chronosops/pkg/contracts"
)

// Store is an in-memory implementation of every repository contract in this
// package: one RWMutex guards every map, so writes are serialized and reads
// run concurrently. It is the default wiring for tests and single-process
// deployments that don't need Postgres; through its view accessors
// (IncidentRepository(), PatternRepository(), ..., or Repositories()) one
// Store backs IncidentRepository, PatternRepository, EvidenceRepository,
// HypothesisRepository, ActionRepository, EditLockRepository,
// DevelopmentCycleRepository, PostmortemRepository, and
// TimelineEventRepository all at once.
type Store struct {
	mu sync.RWMutex

	incidents         map[string]*contracts.Incident
	patterns          map[string]*contracts.LearnedPattern
	evidence          map[string]*contracts.Evidence
	hypotheses        map[string]*contracts.Hypothesis
	actions           map[string]*contracts.Action
	editLocks         map[string]*contracts.EditLock
	developmentCycles map[string]*contracts.DevelopmentCycle
	postmortems       map[string]*Postmortem
	events            map[string]*Event
	eventOrder        []string
}

// NewStore constructs an empty in-memory Store.
func NewStore() *Store {
	return &Store{
		incidents:         map[string]*contracts.Incident{},
		patterns:          map[string]*contracts.LearnedPattern{},
		evidence:          map[string]*contracts.Evidence{},
		hypotheses:        map[string]*contracts.Hypothesis{},
		actions:           map[string]*contracts.Action{},
		editLocks:         map[string]*contracts.EditLock{},
		developmentCycles: map[string]*contracts.DevelopmentCycle{},
		postmortems:       map[string]*Postmortem{},
		events:            map[string]*Event{},
	}
}

func paginate(n, limit, offset int) (start, end int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end = n
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return offset, end
}

var errNotFound = notFoundError("not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

// --- Incidents ---

func (s *Store) Create(ctx context.Context, incident *contracts.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	cp := *incident
	s.incidents[incident.ID] = &cp
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*contracts.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *inc
	return &cp, nil
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.incidents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var matched []contracts.Incident
	for _, id := range ids {
		inc := s.incidents[id]
		if ns, ok := filter["namespace"]; ok && inc.Namespace != ns {
			continue
		}
		if st, ok := filter["status"]; ok && string(inc.Status) != st {
			continue
		}
		matched = append(matched, *inc)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) Update(ctx context.Context, incident *contracts.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[incident.ID]; !ok {
		return errNotFound
	}
	cp := *incident
	s.incidents[incident.ID] = &cp
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.incidents, id)
	return nil
}

// GetInterruptedInvestigations implements IncidentRepository's crash-recovery
// scan: an incident marked isInvestigating whose heartbeat is older than
// staleThreshold is a restart candidate.
func (s *Store) GetInterruptedInvestigations(ctx context.Context, staleThreshold time.Duration) ([]contracts.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var out []contracts.Incident
	for _, inc := range s.incidents {
		if inc.Orphaned(now, staleThreshold) {
			out = append(out, *inc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Patterns ---

// CreatePattern persists a learned pattern. Named distinctly from Create
// (incidents) because Go does not allow two methods with the same name on
// the same receiver, even though both interfaces name it Create.
func (s *Store) CreatePattern(ctx context.Context, pattern *contracts.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pattern.ID == "" {
		pattern.ID = uuid.NewString()
	}
	cp := *pattern
	s.patterns[pattern.ID] = &cp
	return nil
}

func (s *Store) GetPatternByID(ctx context.Context, id string) (*contracts.LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPatterns(ctx context.Context, filter Filter, limit, offset int) ([]contracts.LearnedPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.LearnedPattern
	for _, id := range ids {
		p := s.patterns[id]
		if t, ok := filter["type"]; ok && string(p.Type) != t {
			continue
		}
		matched = append(matched, *p)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdatePattern(ctx context.Context, pattern *contracts.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[pattern.ID]; !ok {
		return errNotFound
	}
	cp := *pattern
	s.patterns[pattern.ID] = &cp
	return nil
}

func (s *Store) DeletePattern(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patterns, id)
	return nil
}

func (s *Store) RecordMatch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[id]
	if !ok {
		return errNotFound
	}
	p.TimesMatched++
	return nil
}

func (s *Store) RecordApplication(ctx context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patterns[id]
	if !ok {
		return errNotFound
	}
	p.TimesApplied++
	var outcome float64
	if success {
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

// --- Evidence ---

func (s *Store) CreateEvidence(ctx context.Context, e *contracts.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	cp := *e
	s.evidence[e.ID] = &cp
	return nil
}

func (s *Store) GetEvidenceByID(ctx context.Context, id string) (*contracts.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evidence[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListEvidence(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Evidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.evidence {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.Evidence
	for _, id := range ids {
		e := s.evidence[id]
		if incID, ok := filter["incidentId"]; ok && e.IncidentID != incID {
			continue
		}
		matched = append(matched, *e)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdateEvidence(ctx context.Context, e *contracts.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evidence[e.ID]; !ok {
		return errNotFound
	}
	cp := *e
	s.evidence[e.ID] = &cp
	return nil
}

func (s *Store) DeleteEvidence(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.evidence, id)
	return nil
}

// --- Hypotheses ---

func (s *Store) CreateHypothesis(ctx context.Context, h *contracts.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	cp := *h
	s.hypotheses[h.ID] = &cp
	return nil
}

func (s *Store) GetHypothesisByID(ctx context.Context, id string) (*contracts.Hypothesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hypotheses[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *h
	return &cp, nil
}

func (s *Store) ListHypotheses(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Hypothesis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.hypotheses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.Hypothesis
	for _, id := range ids {
		h := s.hypotheses[id]
		if incID, ok := filter["incidentId"]; ok && h.IncidentID != incID {
			continue
		}
		matched = append(matched, *h)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdateHypothesis(ctx context.Context, h *contracts.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hypotheses[h.ID]; !ok {
		return errNotFound
	}
	cp := *h
	s.hypotheses[h.ID] = &cp
	return nil
}

func (s *Store) DeleteHypothesis(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hypotheses, id)
	return nil
}

// --- Actions ---

func (s *Store) CreateAction(ctx context.Context, a *contracts.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	s.actions[a.ID] = &cp
	return nil
}

func (s *Store) GetActionByID(ctx context.Context, id string) (*contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListActions(ctx context.Context, filter Filter, limit, offset int) ([]contracts.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.actions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.Action
	for _, id := range ids {
		a := s.actions[id]
		if incID, ok := filter["incidentId"]; ok && a.IncidentID != incID {
			continue
		}
		matched = append(matched, *a)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdateAction(ctx context.Context, a *contracts.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.actions[a.ID]; !ok {
		return errNotFound
	}
	cp := *a
	s.actions[a.ID] = &cp
	return nil
}

func (s *Store) DeleteAction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.actions, id)
	return nil
}

// --- Edit locks ---

func (s *Store) CreateEditLock(ctx context.Context, l *contracts.EditLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	cp := *l
	s.editLocks[l.ID] = &cp
	return nil
}

func (s *Store) GetEditLockByID(ctx context.Context, id string) (*contracts.EditLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.editLocks[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *Store) ListEditLocks(ctx context.Context, filter Filter, limit, offset int) ([]contracts.EditLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.editLocks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.EditLock
	for _, id := range ids {
		l := s.editLocks[id]
		if cid, ok := filter["developmentCycleId"]; ok && l.DevelopmentCycleID != cid {
			continue
		}
		if st, ok := filter["status"]; ok && string(l.Status) != st {
			continue
		}
		matched = append(matched, *l)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdateEditLock(ctx context.Context, l *contracts.EditLock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.editLocks[l.ID]; !ok {
		return errNotFound
	}
	cp := *l
	s.editLocks[l.ID] = &cp
	return nil
}

func (s *Store) DeleteEditLock(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.editLocks, id)
	return nil
}

// ExpireStaleLocks implements EditLockRepository.ExpireStale: transitions
// every active-but-past-expiry lock to Expired, returning the count
// transitioned. A second call immediately after convergence returns 0.
func (s *Store) ExpireStaleLocks(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, l := range s.editLocks {
		if l.Status == contracts.LockActive && !l.ExpiresAt.After(now) {
			l.Status = contracts.LockExpired
			count++
		}
	}
	return count, nil
}

// --- Development cycles ---

func (s *Store) CreateDevelopmentCycle(ctx context.Context, c *contracts.DevelopmentCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cp := *c
	s.developmentCycles[c.ID] = &cp
	return nil
}

func (s *Store) GetDevelopmentCycleByID(ctx context.Context, id string) (*contracts.DevelopmentCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.developmentCycles[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListDevelopmentCycles(ctx context.Context, filter Filter, limit, offset int) ([]contracts.DevelopmentCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.developmentCycles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []contracts.DevelopmentCycle
	for _, id := range ids {
		c := s.developmentCycles[id]
		if st, ok := filter["phase"]; ok && string(c.Phase) != st {
			continue
		}
		matched = append(matched, *c)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdateDevelopmentCycle(ctx context.Context, c *contracts.DevelopmentCycle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.developmentCycles[c.ID]; !ok {
		return errNotFound
	}
	cp := *c
	s.developmentCycles[c.ID] = &cp
	return nil
}

func (s *Store) DeleteDevelopmentCycle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.developmentCycles, id)
	return nil
}

// GetInterrupted implements DevelopmentCycleRepository's crash-recovery scan:
// a cycle with no CompletedAt whose phase is not IDLE/COMPLETED/FAILED died
// mid-flight.
func (s *Store) GetInterrupted(ctx context.Context) ([]contracts.DevelopmentCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []contracts.DevelopmentCycle
	for _, c := range s.developmentCycles {
		if c.Interrupted() {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Postmortems ---

func (s *Store) CreatePostmortem(ctx context.Context, p *Postmortem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	cp := *p
	s.postmortems[p.ID] = &cp
	return nil
}

func (s *Store) GetPostmortemByID(ctx context.Context, id string) (*Postmortem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postmortems[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListPostmortems(ctx context.Context, filter Filter, limit, offset int) ([]Postmortem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.postmortems {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var matched []Postmortem
	for _, id := range ids {
		p := s.postmortems[id]
		if incID, ok := filter["incidentId"]; ok && p.IncidentID != incID {
			continue
		}
		matched = append(matched, *p)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

func (s *Store) UpdatePostmortem(ctx context.Context, p *Postmortem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.postmortems[p.ID]; !ok {
		return errNotFound
	}
	cp := *p
	s.postmortems[p.ID] = &cp
	return nil
}

func (s *Store) DeletePostmortem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.postmortems, id)
	return nil
}

// --- Timeline events ---

func (s *Store) CreateEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	cp := *e
	s.events[e.ID] = &cp
	s.eventOrder = append(s.eventOrder, e.ID)
	return nil
}

func (s *Store) GetEventByID(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, errNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) ListEvents(ctx context.Context, filter Filter, limit, offset int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Event
	for _, id := range s.eventOrder {
		e := s.events[id]
		if incID, ok := filter["incidentId"]; ok && e.IncidentID != incID {
			continue
		}
		if cycID, ok := filter["developmentCycleId"]; ok && e.DevelopmentCycleID != cycID {
			continue
		}
		matched = append(matched, *e)
	}
	start, end := paginate(len(matched), limit, offset)
	return matched[start:end], nil
}

// IncidentRepository returns a view of Store as an IncidentRepository.
func (s *Store) IncidentRepository() IncidentRepository { return (*incidentView)(s) }

// PatternRepository returns a view of Store as a PatternRepository.
func (s *Store) PatternRepository() PatternRepository { return (*patternView)(s) }

// EvidenceRepository returns a view of Store as an EvidenceRepository.
func (s *Store) EvidenceRepository() EvidenceRepository { return (*evidenceView)(s) }

// HypothesisRepository returns a view of Store as a HypothesisRepository.
func (s *Store) HypothesisRepository() HypothesisRepository { return (*hypothesisView)(s) }

// ActionRepository returns a view of Store as an ActionRepository.
func (s *Store) ActionRepository() ActionRepository { return (*actionView)(s) }

// EditLockRepository returns a view of Store as an EditLockRepository.
func (s *Store) EditLockRepository() EditLockRepository { return (*editLockView)(s) }

// DevelopmentCycleRepository returns a view of Store as a DevelopmentCycleRepository.
func (s *Store) DevelopmentCycleRepository() DevelopmentCycleRepository { return (*cycleView)(s) }

// PostmortemRepository returns a view of Store as a PostmortemRepository.
func (s *Store) PostmortemRepository() PostmortemRepository { return (*postmortemView)(s) }

// TimelineEventRepository returns a view of Store as a TimelineEventRepository.
func (s *Store) TimelineEventRepository() TimelineEventRepository { return (*eventView)(s) }

// Repositories bundles every view of this single in-memory Store, satisfying
// the full Repositories struct with one backing map set.
func (s *Store) Repositories() Repositories {
	return Repositories{
		Incidents:         s.IncidentRepository(),
		Patterns:          s.PatternRepository(),
		Evidence:          s.EvidenceRepository(),
		Hypotheses:        s.HypothesisRepository(),
		Actions:           s.ActionRepository(),
		EditLocks:         s.EditLockRepository(),
		DevelopmentCycles: s.DevelopmentCycleRepository(),
		Postmortems:       s.PostmortemRepository(),
		TimelineEvents:    s.TimelineEventRepository(),
	}
}

// The view types below adapt Store's disambiguated method names (CreatePattern,
// ListEvidence, ...) back onto each repository interface's shared Create/List/
// Update/Delete method names, so a single Store can satisfy all nine
// interfaces simultaneously without name collisions.

type incidentView Store

func (v *incidentView) Create(ctx context.Context, i *contracts.Incident) error { return (*Store)(v).Create(ctx, i) }
func (v *incidentView) GetByID(ctx context.Context, id string) (*contracts.Incident, error) {
	return (*Store)(v).GetByID(ctx, id)
}
func (v *incidentView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.Incident, error) {
	return (*Store)(v).List(ctx, f, limit, offset)
}
func (v *incidentView) Update(ctx context.Context, i *contracts.Incident) error { return (*Store)(v).Update(ctx, i) }
func (v *incidentView) Delete(ctx context.Context, id string) error            { return (*Store)(v).Delete(ctx, id) }
func (v *incidentView) GetInterruptedInvestigations(ctx context.Context, staleThreshold time.Duration) ([]contracts.Incident, error) {
	return (*Store)(v).GetInterruptedInvestigations(ctx, staleThreshold)
}

type patternView Store

func (v *patternView) Create(ctx context.Context, p *contracts.LearnedPattern) error {
	return (*Store)(v).CreatePattern(ctx, p)
}
func (v *patternView) GetByID(ctx context.Context, id string) (*contracts.LearnedPattern, error) {
	return (*Store)(v).GetPatternByID(ctx, id)
}
func (v *patternView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.LearnedPattern, error) {
	return (*Store)(v).ListPatterns(ctx, f, limit, offset)
}
func (v *patternView) Update(ctx context.Context, p *contracts.LearnedPattern) error {
	return (*Store)(v).UpdatePattern(ctx, p)
}
func (v *patternView) Delete(ctx context.Context, id string) error { return (*Store)(v).DeletePattern(ctx, id) }
func (v *patternView) RecordMatch(ctx context.Context, id string) error {
	return (*Store)(v).RecordMatch(ctx, id)
}
func (v *patternView) RecordApplication(ctx context.Context, id string, success bool) error {
	return (*Store)(v).RecordApplication(ctx, id, success)
}

type evidenceView Store

func (v *evidenceView) Create(ctx context.Context, e *contracts.Evidence) error {
	return (*Store)(v).CreateEvidence(ctx, e)
}
func (v *evidenceView) GetByID(ctx context.Context, id string) (*contracts.Evidence, error) {
	return (*Store)(v).GetEvidenceByID(ctx, id)
}
func (v *evidenceView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.Evidence, error) {
	return (*Store)(v).ListEvidence(ctx, f, limit, offset)
}
func (v *evidenceView) Update(ctx context.Context, e *contracts.Evidence) error {
	return (*Store)(v).UpdateEvidence(ctx, e)
}
func (v *evidenceView) Delete(ctx context.Context, id string) error { return (*Store)(v).DeleteEvidence(ctx, id) }

type hypothesisView Store

func (v *hypothesisView) Create(ctx context.Context, h *contracts.Hypothesis) error {
	return (*Store)(v).CreateHypothesis(ctx, h)
}
func (v *hypothesisView) GetByID(ctx context.Context, id string) (*contracts.Hypothesis, error) {
	return (*Store)(v).GetHypothesisByID(ctx, id)
}
func (v *hypothesisView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.Hypothesis, error) {
	return (*Store)(v).ListHypotheses(ctx, f, limit, offset)
}
func (v *hypothesisView) Update(ctx context.Context, h *contracts.Hypothesis) error {
	return (*Store)(v).UpdateHypothesis(ctx, h)
}
func (v *hypothesisView) Delete(ctx context.Context, id string) error {
	return (*Store)(v).DeleteHypothesis(ctx, id)
}

type actionView Store

func (v *actionView) Create(ctx context.Context, a *contracts.Action) error {
	return (*Store)(v).CreateAction(ctx, a)
}
func (v *actionView) GetByID(ctx context.Context, id string) (*contracts.Action, error) {
	return (*Store)(v).GetActionByID(ctx, id)
}
func (v *actionView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.Action, error) {
	return (*Store)(v).ListActions(ctx, f, limit, offset)
}
func (v *actionView) Update(ctx context.Context, a *contracts.Action) error {
	return (*Store)(v).UpdateAction(ctx, a)
}
func (v *actionView) Delete(ctx context.Context, id string) error { return (*Store)(v).DeleteAction(ctx, id) }

type editLockView Store

func (v *editLockView) Create(ctx context.Context, l *contracts.EditLock) error {
	return (*Store)(v).CreateEditLock(ctx, l)
}
func (v *editLockView) GetByID(ctx context.Context, id string) (*contracts.EditLock, error) {
	return (*Store)(v).GetEditLockByID(ctx, id)
}
func (v *editLockView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.EditLock, error) {
	return (*Store)(v).ListEditLocks(ctx, f, limit, offset)
}
func (v *editLockView) Update(ctx context.Context, l *contracts.EditLock) error {
	return (*Store)(v).UpdateEditLock(ctx, l)
}
func (v *editLockView) Delete(ctx context.Context, id string) error { return (*Store)(v).DeleteEditLock(ctx, id) }
func (v *editLockView) ExpireStale(ctx context.Context) (int, error) {
	return (*Store)(v).ExpireStaleLocks(ctx)
}

type cycleView Store

func (v *cycleView) Create(ctx context.Context, c *contracts.DevelopmentCycle) error {
	return (*Store)(v).CreateDevelopmentCycle(ctx, c)
}
func (v *cycleView) GetByID(ctx context.Context, id string) (*contracts.DevelopmentCycle, error) {
	return (*Store)(v).GetDevelopmentCycleByID(ctx, id)
}
func (v *cycleView) List(ctx context.Context, f Filter, limit, offset int) ([]contracts.DevelopmentCycle, error) {
	return (*Store)(v).ListDevelopmentCycles(ctx, f, limit, offset)
}
func (v *cycleView) Update(ctx context.Context, c *contracts.DevelopmentCycle) error {
	return (*Store)(v).UpdateDevelopmentCycle(ctx, c)
}
func (v *cycleView) Delete(ctx context.Context, id string) error {
	return (*Store)(v).DeleteDevelopmentCycle(ctx, id)
}
func (v *cycleView) GetInterrupted(ctx context.Context) ([]contracts.DevelopmentCycle, error) {
	return (*Store)(v).GetInterrupted(ctx)
}

type postmortemView Store

func (v *postmortemView) Create(ctx context.Context, p *Postmortem) error {
	return (*Store)(v).CreatePostmortem(ctx, p)
}
func (v *postmortemView) GetByID(ctx context.Context, id string) (*Postmortem, error) {
	return (*Store)(v).GetPostmortemByID(ctx, id)
}
func (v *postmortemView) List(ctx context.Context, f Filter, limit, offset int) ([]Postmortem, error) {
	return (*Store)(v).ListPostmortems(ctx, f, limit, offset)
}
func (v *postmortemView) Update(ctx context.Context, p *Postmortem) error {
	return (*Store)(v).UpdatePostmortem(ctx, p)
}
func (v *postmortemView) Delete(ctx context.Context, id string) error {
	return (*Store)(v).DeletePostmortem(ctx, id)
}

type eventView Store

func (v *eventView) Create(ctx context.Context, e *Event) error { return (*Store)(v).CreateEvent(ctx, e) }
func (v *eventView) GetByID(ctx context.Context, id string) (*Event, error) {
	return (*Store)(v).GetEventByID(ctx, id)
}
func (v *eventView) List(ctx context.Context, f Filter, limit, offset int) ([]Event, error) {
	return (*Store)(v).ListEvents(ctx, f, limit, offset)
}
