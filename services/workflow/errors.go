package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNodeNotFound  = errors.New("workflow: node not found")
	ErrEdgeNotFound  = errors.New("workflow: edge not found")
	ErrGroupNotFound = errors.New("workflow: group not found")
	ErrNodeExists    = errors.New("workflow: node id already in use")
	ErrNodeBusy      = errors.New("workflow: node is executing, mutation deferred")
	ErrRunInProgress = errors.New("workflow: a run is already in progress")
)

// ValidationError rejects a malformed connection attempt or an unrunnable
// graph synchronously, before anything enters the scheduler.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// CycleError is returned by the planner when the data-dependency edges do
// not form a DAG. Nodes lists the members of the cyclic residue.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return "cycle detected through nodes: " + strings.Join(e.Nodes, ", ")
}

// ProviderError records an external call failure on the node that made it;
// independent branches of the run continue.
type ProviderError struct {
	NodeID string
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call for node %s failed: %v", e.NodeID, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// BlockedError explains why a node was skipped rather than executed:
// an ancestor errored, or a required input can never materialize this run.
type BlockedError struct {
	NodeID string
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("node %s blocked: %s", e.NodeID, e.Reason)
}
