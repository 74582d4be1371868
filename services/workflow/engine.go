package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxInFlight = 4
	defaultCallTimeout = 3 * time.Minute
)

// Node outcomes reported in a RunResult. Skipped covers nodes whose
// dependencies never resolved: an ancestor errored, or a required input was
// permanently absent (e.g. a locked group that has never run).
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Engine drives workflow runs: it drains ready batches from the plan, fans
// node execution out to bounded concurrent workers, and applies every
// status/output mutation itself from the completion channel. Executors never
// write to the store.
type Engine struct {
	registry Registry
	history  *History

	// MaxInFlight bounds concurrent provider calls within a run.
	MaxInFlight int
	// CallTimeout bounds a single provider call; a timed-out call is
	// treated identically to a provider error.
	CallTimeout time.Duration

	mu        sync.Mutex
	running   bool
	cancelled atomic.Bool
}

// NewEngine creates an Engine with the given executor registry and history
// sink.
func NewEngine(registry Registry, history *History) *Engine {
	return &Engine{
		registry:    registry,
		history:     history,
		MaxInFlight: defaultMaxInFlight,
		CallTimeout: defaultCallTimeout,
	}
}

// NodeResult is the per-node outcome of a run.
type NodeResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RunResult is the summary returned after a run or a regenerate.
type RunResult struct {
	RunID         string                `json:"runId"`
	Status        string                `json:"status"`
	StartTime     string                `json:"startTime"`
	EndTime       string                `json:"endTime"`
	TotalDuration int64                 `json:"totalDuration"`
	Warnings      []string              `json:"warnings,omitempty"`
	Nodes         map[string]NodeResult `json:"nodes"`
	Succeeded     int                   `json:"succeeded"`
	Errored       int                   `json:"errored"`
	Skipped       int                   `json:"skipped"`
}

// nodeDone travels from an executing worker back to the run loop.
type nodeDone struct {
	id   string
	in   ResolvedInputs
	out  execOutput
	err  error
	prev Status
}

// Cancel flags the current run as cancelled. In-flight provider calls are
// not forcibly aborted; their completions are discarded and no further
// batches are submitted.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrRunInProgress
	}
	e.running = true
	e.cancelled.Store(false)
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Run executes the whole graph. Validation failures (cyclic dependencies,
// unsatisfiable text inputs) are returned as errors before any node reaches
// loading; after that, per-node failures degrade the run instead of
// aborting it.
func (e *Engine) Run(ctx context.Context, store *GraphStore) (*RunResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	plan, warnings, err := preflight(store)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &RunResult{
		RunID:    uuid.NewString(),
		Warnings: warnings,
		Nodes:    make(map[string]NodeResult),
	}
	slog.Info("Run started", "runId", res.RunID, "nodes", len(plan.Runnable()), "batches", len(plan.Batches))

	done := make(map[string]bool)     // succeeded this run
	terminal := make(map[string]bool) // succeeded, errored or skipped
	halted := make(map[string]bool)   // errored or skipped; poisons dependents
	pending := make(map[string]bool)
	resultCh := make(chan nodeDone)
	inflight := 0

	skip := func(id, reason string) {
		terminal[id] = true
		halted[id] = true
		res.Nodes[id] = NodeResult{
			Status: OutcomeSkipped,
			Error:  (&BlockedError{NodeID: id, Reason: reason}).Error(),
		}
		slog.Debug("Node skipped", "runId", res.RunID, "nodeId", id, "reason", reason)
	}

	for {
		if ctx.Err() != nil {
			e.cancelled.Store(true)
		}

		// Advance: cascade skips and submit every ready node, up to the
		// in-flight bound. Skipping may unblock further skips, so loop to
		// a fixpoint.
		for !e.cancelled.Load() {
			progressed := false
			for _, id := range plan.Runnable() {
				if terminal[id] || pending[id] {
					continue
				}

				ready := true
				for _, dep := range plan.Deps(id) {
					if halted[dep] {
						skip(id, "upstream failed: "+dep)
						progressed = true
						ready = false
						break
					}
					if !plan.PreSatisfied(dep) && !done[dep] {
						ready = false
						break
					}
				}
				if !ready || inflight >= e.MaxInFlight {
					continue
				}

				node, err := store.Node(id)
				if err != nil {
					skip(id, "node vanished mid-run")
					progressed = true
					continue
				}
				in := resolveInputs(store, id)
				if reason, missing := missingInput(node, in); missing {
					// All dependencies are final, so the input can never
					// materialize during this run.
					skip(id, reason)
					progressed = true
					continue
				}

				e.submit(ctx, store, node, in, resultCh)
				pending[id] = true
				inflight++
				progressed = true
			}
			if !progressed {
				break
			}
		}

		if inflight == 0 {
			break
		}

		recv := <-resultCh
		inflight--
		delete(pending, recv.id)
		store.markBusy(recv.id, false)

		node, err := store.Node(recv.id)
		if err != nil {
			continue
		}
		run := node.Data.(runnable)

		if e.cancelled.Load() {
			// Discard the completion: the node keeps its last known state
			// rather than staying in loading.
			run.state().Status = recv.prev
			continue
		}

		if recv.err != nil {
			// Prior successful output is preserved; only the status and
			// message change, so a later regenerate does not blank a good
			// result.
			run.state().Status = StatusError
			run.state().Error = recv.err.Error()
			terminal[recv.id] = true
			halted[recv.id] = true
			res.Nodes[recv.id] = NodeResult{Status: OutcomeError, Error: recv.err.Error()}
			slog.Warn("Node failed", "runId", res.RunID, "nodeId", recv.id, "error", recv.err)
			continue
		}

		run.absorb(recv.out)
		run.state().Status = StatusSuccess
		run.state().Error = ""
		done[recv.id] = true
		terminal[recv.id] = true
		res.Nodes[recv.id] = NodeResult{Status: OutcomeSuccess}
		e.record(node, recv.in, recv.out)
	}

	for _, nr := range res.Nodes {
		switch nr.Status {
		case OutcomeSuccess:
			res.Succeeded++
		case OutcomeError:
			res.Errored++
		case OutcomeSkipped:
			res.Skipped++
		}
	}

	end := time.Now()
	res.StartTime = start.UTC().Format(time.RFC3339)
	res.EndTime = end.UTC().Format(time.RFC3339)
	res.TotalDuration = end.Sub(start).Milliseconds()
	switch {
	case e.cancelled.Load():
		res.Status = "cancelled"
	case res.Errored > 0 || res.Skipped > 0:
		res.Status = "degraded"
	default:
		res.Status = "completed"
	}
	slog.Info("Run finished", "runId", res.RunID, "status", res.Status,
		"succeeded", res.Succeeded, "errored", res.Errored, "skipped", res.Skipped)
	return res, nil
}

// submit transitions the node to loading and launches its executor. The
// loading status is observable immediately, before the provider call
// returns.
func (e *Engine) submit(ctx context.Context, store *GraphStore, node *Node, in ResolvedInputs, resultCh chan<- nodeDone) {
	run := node.Data.(runnable)
	prev := run.state().Status
	run.state().Status = StatusLoading
	store.markBusy(node.ID, true)

	exec := e.registry[node.Type]
	snapshot := *node
	go func() {
		var out execOutput
		var err error
		if exec == nil {
			err = fmt.Errorf("no executor registered for node type %q", snapshot.Type)
		} else {
			cctx, cancel := context.WithTimeout(ctx, e.CallTimeout)
			defer cancel()
			out, err = exec.Execute(cctx, snapshot, in)
		}
		resultCh <- nodeDone{id: snapshot.ID, in: in, out: out, err: err, prev: prev}
	}()
}

// record appends successful image generations to the process-wide history.
func (e *Engine) record(node *Node, in ResolvedInputs, out execOutput) {
	if e.history == nil || node.Type != TypeNanoBanana {
		return
	}
	entry := HistoryEntry{Image: out.image, Timestamp: time.Now().UTC()}
	if in.Text != nil {
		entry.Prompt = *in.Text
	}
	if data, ok := node.Data.(*GenerateData); ok && data.Model != "" {
		entry.Model = data.Model
	} else {
		entry.Model = defaultImageModel
	}
	e.history.Append(entry)
}

// missingInput reports whether a ready node still lacks a required input,
// and why. Because readiness implies every dependency is final, a missing
// input at this point is permanent for the run.
func missingInput(node *Node, in ResolvedInputs) (string, bool) {
	switch node.Type {
	case TypeNanoBanana, TypeLLMGenerate:
		if in.Text == nil {
			return "missing upstream text input", true
		}
	case TypeAnnotation:
		if baked, _ := node.Data.OutputImage(); baked == "" && len(in.Images) == 0 {
			return "missing upstream image input", true
		}
	case TypeOutput:
		if len(in.Images) == 0 {
			return "missing upstream image input", true
		}
	}
	return "", false
}

// Regenerate re-runs exactly one node using its already-resolved upstream
// inputs. Direct dependencies must hold valid output; nothing upstream is
// re-executed and sibling statuses are untouched.
func (e *Engine) Regenerate(ctx context.Context, store *GraphStore, nodeID string) (*RunResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	node, err := store.Node(nodeID)
	if err != nil {
		return nil, err
	}
	if !node.Type.Executable() {
		return nil, validationf("node %s (%s) is a data source and cannot be regenerated", nodeID, node.Type)
	}
	if store.Locked(nodeID) {
		return nil, validationf("node %s belongs to a locked group", nodeID)
	}

	// Every incoming image edge must contribute, and the active text edge
	// must carry a value: regenerate never cascades upstream.
	for _, edge := range store.incoming(nodeID) {
		if edge.TargetHandle != HandleImage {
			continue
		}
		src, err := store.Node(edge.Source)
		if err != nil {
			return nil, err
		}
		if img, _ := src.Data.OutputImage(); img == "" {
			return nil, validationf("missing upstream input: node %s has not produced an image", edge.Source)
		}
	}
	in := resolveInputs(store, nodeID)
	if reason, missing := missingInput(node, in); missing {
		return nil, validationf("missing upstream input: %s", reason)
	}

	start := time.Now()
	res := &RunResult{RunID: uuid.NewString(), Nodes: make(map[string]NodeResult)}
	slog.Info("Regenerate started", "runId", res.RunID, "nodeId", nodeID)

	run := node.Data.(runnable)
	prev := run.state().Status
	run.state().Status = StatusLoading
	store.markBusy(nodeID, true)

	exec := e.registry[node.Type]
	var out execOutput
	if exec == nil {
		err = fmt.Errorf("no executor registered for node type %q", node.Type)
	} else {
		cctx, cancel := context.WithTimeout(ctx, e.CallTimeout)
		out, err = exec.Execute(cctx, *node, in)
		cancel()
	}
	store.markBusy(nodeID, false)

	switch {
	case e.cancelled.Load():
		run.state().Status = prev
		res.Status = "cancelled"
	case err != nil:
		run.state().Status = StatusError
		run.state().Error = err.Error()
		res.Nodes[nodeID] = NodeResult{Status: OutcomeError, Error: err.Error()}
		res.Errored = 1
		res.Status = "degraded"
	default:
		run.absorb(out)
		run.state().Status = StatusSuccess
		run.state().Error = ""
		res.Nodes[nodeID] = NodeResult{Status: OutcomeSuccess}
		res.Succeeded = 1
		res.Status = "completed"
		e.record(node, in, out)
	}

	end := time.Now()
	res.StartTime = start.UTC().Format(time.RFC3339)
	res.EndTime = end.UTC().Format(time.RFC3339)
	res.TotalDuration = end.Sub(start).Milliseconds()
	return res, nil
}
