package errors

import "fmt"

// TransientCollaboratorError wraps a collaborator failure that should be retried
// through the owning state machine's per-phase retry budget.
type TransientCollaboratorError struct {
	*OperationError
}

func NewTransientCollaboratorError(operation, component string, cause error) *TransientCollaboratorError {
	return &TransientCollaboratorError{&OperationError{Operation: operation, Component: component, Cause: cause}}
}

// PermanentCollaboratorError wraps a collaborator failure that is fatal to the
// current phase (invalid target, permission denied, circuit open).
type PermanentCollaboratorError struct {
	*OperationError
}

func NewPermanentCollaboratorError(operation, component string, cause error) *PermanentCollaboratorError {
	return &PermanentCollaboratorError{&OperationError{Operation: operation, Component: component, Cause: cause}}
}

// InvalidTransitionError is a programmer error: the requested state transition is
// not in the static transition table. Never swallowed; does not change state.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// PolicyDeniedError reports a rollback or action refused by a named policy.
type PolicyDeniedError struct {
	Policy string
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("denied by policy %q: %s", e.Policy, e.Reason)
}

// LockConflictError reports a denied edit-lock acquisition, carrying the existing
// lock's id so the caller can surface it.
type LockConflictError struct {
	ExistingLockID string
	LockedBy       string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("lock %s already held by %s", e.ExistingLockID, e.LockedBy)
}

// BudgetExceededError reports that a named bounded resource (retry budget, action
// cap, verification cap, rollback cap) has been exhausted.
type BudgetExceededError struct {
	Budget string
	Limit  int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("%s budget exceeded: limit %d", e.Budget, e.Limit)
}
