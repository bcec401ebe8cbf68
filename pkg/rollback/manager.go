// Package rollback implements the RollbackManager: it scores verification
// outcomes, gates rollback decisions by policy (protected namespaces/deployments,
// cooldown, per-incident cap, cascade protection), and tracks the RollbackRequest
// lifecycle.
package rollback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/sirupsen/logrus"

	"github.com/broadcomms/chronosops/internal/logging"
	"github.com/broadcomms/chronosops/pkg/contracts"
)

// Urgency classifies how quickly a rollback should happen.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Decision is the outcome of evaluating a verification result for rollback.
type Decision struct {
	ShouldRollback bool
	Urgency        Urgency
	Confidence     float64
	Reasoning      string
}

// RequestStatus is the lifecycle status of a RollbackRequest.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestExecuted  RequestStatus = "executed"
	RequestSucceeded RequestStatus = "succeeded"
	RequestFailed    RequestStatus = "failed"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Terminal() bool {
	return s == RequestSucceeded || s == RequestFailed || s == RequestCancelled
}

// Request is one rollback attempt tracked through its lifecycle.
type Request struct {
	ID         string
	IncidentID string
	Status     RequestStatus
	Decision   Decision
	Snapshot   map[string]interface{}
	CreatedAt  time.Time
}

// Policy gates rollback decisions independent of urgency scoring.
type Policy struct {
	RequireApproval      bool
	ProtectedNamespaces   []string
	ProtectedDeployments  []string
}

// Config bundles the manager's tunables.
type Config struct {
	Policy                  Policy
	MaxRollbacksPerIncident int
	RollbackCooldown        time.Duration
	EnableCascadeProtection bool
	EscalationThreshold     int
}

// DefaultConfig returns reasonable defaults for production use.
func DefaultConfig() Config {
	return Config{
		MaxRollbacksPerIncident: 5,
		RollbackCooldown:        60 * time.Second,
		EnableCascadeProtection: true,
		EscalationThreshold:     5,
	}
}

// Snapshotter lazily captures cluster state for a rollback's audit trail. A nil
// Snapshotter is valid: the manager proceeds with Snapshot == nil.
type Snapshotter = contracts.ClusterSnapshotter

type incidentState struct {
	rollbackCount    int
	lastRollbackAt   time.Time
	cascadeTriggered bool
}

// Manager evaluates and gates rollback decisions for any number of incidents.
type Manager struct {
	cfg        Config
	snapshotter Snapshotter
	logger     *logrus.Logger
	policyQuery *rego.PreparedEvalQuery

	mu    sync.Mutex
	state map[string]*incidentState
	requests map[string]*Request
}

// New constructs a Manager. ctx is used only to prepare the OPA policy module
// used for the protected-namespace/deployment gate.
func New(ctx context.Context, cfg Config, snapshotter Snapshotter, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	query, err := preparePolicyQuery(ctx)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:         cfg,
		snapshotter: snapshotter,
		logger:      logger,
		policyQuery: query,
		state:       map[string]*incidentState{},
		requests:    map[string]*Request{},
	}, nil
}

// rollbackPolicyModule is evaluated via OPA to decide whether a namespace or
// deployment is protected from automatic rollback.
const rollbackPolicyModule = `
package chronosops.rollback

import rego.v1

default protected = false

protected if {
	input.namespace == input.protected_namespaces[_]
}

protected if {
	input.deployment == input.protected_deployments[_]
}
`

func preparePolicyQuery(ctx context.Context) (*rego.PreparedEvalQuery, error) {
	query, err := rego.New(
		rego.Query("data.chronosops.rollback.protected"),
		rego.Module("rollback.rego", rollbackPolicyModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rollback policy: %w", err)
	}
	return &query, nil
}

func (m *Manager) isProtected(ctx context.Context, namespace, deployment string) bool {
	results, err := m.policyQuery.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"namespace":             namespace,
		"deployment":            deployment,
		"protected_namespaces":  m.cfg.Policy.ProtectedNamespaces,
		"protected_deployments": m.cfg.Policy.ProtectedDeployments,
	}))
	if err != nil || len(results) == 0 {
		// fail closed: if policy evaluation breaks, require manual approval
		// rather than silently allowing an automatic rollback.
		return true
	}
	protected, _ := results[0].Expressions[0].Value.(bool)
	return protected
}

func (m *Manager) stateFor(incidentID string) *incidentState {
	s, ok := m.state[incidentID]
	if !ok {
		s = &incidentState{}
		m.state[incidentID] = s
	}
	return s
}

// Decide implements the rollback-gating algorithm against the just-executed action and
// its verification result.
func (m *Manager) Decide(ctx context.Context, incidentID string, action contracts.ActionResult, verification contracts.VerificationResult) (Decision, error) {
	if verification.Success {
		return Decision{ShouldRollback: false, Reasoning: "verification succeeded"}, nil
	}

	m.mu.Lock()
	st := m.stateFor(incidentID)

	if st.rollbackCount >= m.cfg.MaxRollbacksPerIncident {
		m.mu.Unlock()
		return Decision{ShouldRollback: false, Reasoning: "rollback limit reached for incident"}, nil
	}

	if !st.lastRollbackAt.IsZero() && time.Since(st.lastRollbackAt) < m.cfg.RollbackCooldown {
		m.mu.Unlock()
		return Decision{ShouldRollback: false, Reasoning: "rollback cooldown still active"}, nil
	}
	m.mu.Unlock()

	urgency, confidence := scoreUrgency(verification)
	decision := Decision{ShouldRollback: true, Urgency: urgency, Confidence: confidence,
		Reasoning: "verification failed, urgency " + string(urgency)}

	m.mu.Lock()
	if m.cfg.EnableCascadeProtection && st.rollbackCount >= m.cfg.EscalationThreshold {
		st.cascadeTriggered = true
	}
	m.mu.Unlock()

	m.logger.WithFields(logging.NewFields().Component("rollback").Operation("decide").
		Custom("incident_id", incidentID).Custom("urgency", string(urgency)).ToLogrus()).
		Info("decisionMade")

	return decision, nil
}

// scoreUrgency derives urgency and confidence from the unhealthy-pod ratio and
// the verifier's own confidence in the failure signal.
func scoreUrgency(v contracts.VerificationResult) (Urgency, float64) {
	hc := v.HealthCheck
	if hc == nil {
		return UrgencyMedium, 1 - v.Confidence
	}
	if hc.TotalPods == 0 || (hc.TotalPods > 0 && hc.ReadyPods == 0 && !hc.Healthy) {
		return UrgencyCritical, 1
	}
	unhealthyRatio := float64(hc.TotalPods-hc.ReadyPods) / float64(hc.TotalPods)
	switch {
	case unhealthyRatio >= 0.75:
		return UrgencyCritical, unhealthyRatio
	case unhealthyRatio >= 0.5:
		return UrgencyHigh, unhealthyRatio
	case unhealthyRatio >= 0.25:
		return UrgencyMedium, unhealthyRatio
	default:
		return UrgencyLow, unhealthyRatio
	}
}

// RequestRollback creates a RollbackRequest for incidentID. If the namespace or
// deployment is protected, policy.requireApproval is set, or cascade protection
// has tripped, the request is created in "pending" rather than proceeding
// automatically.
func (m *Manager) RequestRollback(ctx context.Context, incidentID, namespace, deployment string, decision Decision) (*Request, error) {
	m.mu.Lock()
	st := m.stateFor(incidentID)
	cascadeTripped := st.cascadeTriggered
	m.mu.Unlock()

	req := &Request{
		ID:         incidentID + "-" + time.Now().UTC().Format("20060102150405.000000000"),
		IncidentID: incidentID,
		Status:     RequestApproved,
		Decision:   decision,
		CreatedAt:  time.Now().UTC(),
	}

	if m.cfg.Policy.RequireApproval || m.isProtected(ctx, namespace, deployment) || cascadeTripped {
		req.Status = RequestPending
	}

	if m.snapshotter != nil {
		snap, err := m.snapshotter.Snapshot(ctx, namespace, deployment)
		if err == nil {
			req.Snapshot = snap
		}
	}

	m.mu.Lock()
	m.requests[req.ID] = req
	if req.Status != RequestPending {
		st.rollbackCount++
		st.lastRollbackAt = time.Now()
	}
	m.mu.Unlock()

	return req, nil
}

// Approve transitions a pending request to approved.
func (m *Manager) Approve(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("unknown rollback request %s", requestID)
	}
	if req.Status != RequestPending {
		return fmt.Errorf("cannot approve request in status %s", req.Status)
	}
	req.Status = RequestApproved
	st := m.stateFor(req.IncidentID)
	st.rollbackCount++
	st.lastRollbackAt = time.Now()
	return nil
}

// Cancel transitions a pending request to cancelled. Allowed only from pending.
func (m *Manager) Cancel(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("unknown rollback request %s", requestID)
	}
	if req.Status != RequestPending {
		return fmt.Errorf("cannot cancel request in status %s", req.Status)
	}
	req.Status = RequestCancelled
	return nil
}

// MarkExecuting transitions an approved request to executed, once the caller
// has actually started running the compensating action against the cluster.
// Required before Complete: the documented lifecycle is
// pending -> approved -> executed -> {succeeded,failed}.
func (m *Manager) MarkExecuting(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("unknown rollback request %s", requestID)
	}
	if req.Status != RequestApproved {
		return fmt.Errorf("cannot mark executing a request in status %s", req.Status)
	}
	req.Status = RequestExecuted
	return nil
}

// Complete marks an executed request's terminal outcome. Requires the
// request to already be in the executed state.
func (m *Manager) Complete(requestID string, succeeded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return fmt.Errorf("unknown rollback request %s", requestID)
	}
	if req.Status.Terminal() {
		return fmt.Errorf("request %s already terminal (%s)", requestID, req.Status)
	}
	if req.Status != RequestExecuted {
		return fmt.Errorf("cannot complete request in status %s, expected %s", req.Status, RequestExecuted)
	}
	if succeeded {
		req.Status = RequestSucceeded
	} else {
		req.Status = RequestFailed
	}
	return nil
}

// Get returns a rollback request by id.
func (m *Manager) Get(requestID string) (*Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	return req, ok
}

// ResetCascade clears the cascade-protection circuit for an incident, allowing
// automatic rollbacks to resume.
func (m *Manager) ResetCascade(incidentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.state[incidentID]; ok {
		st.cascadeTriggered = false
	}
}
