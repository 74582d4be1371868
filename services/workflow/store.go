package workflow

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GraphStore owns the canonical node/edge/group collections for one canvas.
// It enforces the structural invariants (unique ids, no self-loops, edges
// reference live nodes, type-homogeneous handles) and is the only shared
// mutable state in the engine. During a run it is mutated exclusively by the
// run controller; direct edits that would pull structure out from under an
// in-flight node are rejected with ErrNodeBusy.
type GraphStore struct {
	mu      sync.RWMutex
	nodes   map[string]*Node
	order   []string
	edges   []*Edge
	groups  map[string]*Group
	edgeSeq int64
	busy    map[string]struct{}
}

// NewGraphStore returns an empty store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodes:  make(map[string]*Node),
		groups: make(map[string]*Group),
		busy:   make(map[string]struct{}),
	}
}

// NewGraphStoreFromWorkflow loads a persisted snapshot. Edge sequence
// numbers from the snapshot are preserved so fan-in order survives reload.
func NewGraphStoreFromWorkflow(wf *Workflow) (*GraphStore, error) {
	s := NewGraphStore()
	for i := range wf.Nodes {
		n := wf.Nodes[i]
		if err := s.AddNode(&n); err != nil {
			return nil, err
		}
	}
	for i := range wf.Edges {
		e := wf.Edges[i]
		if err := s.restoreEdge(&e); err != nil {
			return nil, err
		}
	}
	for i := range wf.Groups {
		g := wf.Groups[i]
		if err := s.AddGroup(&g); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddNode inserts a node. The id must be unique and the payload must match
// the declared type.
func (s *GraphStore) AddNode(n *Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		return validationf("node id must not be empty")
	}
	if _, ok := s.nodes[n.ID]; ok {
		return fmt.Errorf("%w: %s", ErrNodeExists, n.ID)
	}
	if n.Data == nil {
		payload, err := newPayload(n.Type)
		if err != nil {
			return err
		}
		n.Data = payload
	}
	// A zero-value payload enters the state machine at idle, never "".
	if run, ok := n.Data.(runnable); ok && run.state().Status == "" {
		run.state().Status = StatusIdle
	}
	s.nodes[n.ID] = n
	s.order = append(s.order, n.ID)
	return nil
}

// Node returns the node with the given id.
func (s *GraphStore) Node(id string) (*Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	return n, nil
}

// Nodes returns all nodes in insertion order.
func (s *GraphStore) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}

// DeleteNode removes a node, cascades removal of incident edges, and clears
// its group membership. Deleting a node that is currently executing, or one
// whose removal would cascade into a loading node's incoming edges, is
// rejected; the caller should retry once the call resolves.
func (s *GraphStore) DeleteNode(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if _, loading := s.busy[id]; loading {
		return fmt.Errorf("%w: %s", ErrNodeBusy, id)
	}
	for _, e := range s.edges {
		if e.Source != id && e.Target != id {
			continue
		}
		if _, loading := s.busy[e.Target]; loading {
			return fmt.Errorf("%w: %s", ErrNodeBusy, e.Target)
		}
	}

	delete(s.nodes, id)
	for i, nid := range s.order {
		if nid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	kept := s.edges[:0]
	for _, e := range s.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	s.edges = kept

	for _, g := range s.groups {
		for i, m := range g.Members {
			if m == id {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Connect validates and inserts a new edge between two handles, returning
// the created edge. Validation covers handle-type mismatch, self-loops,
// capability mismatch, and cycles (the graph must stay a DAG).
func (s *GraphStore) Connect(source string, sourceHandle Handle, target string, targetHandle Handle) (*Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, loading := s.busy[target]; loading {
		return nil, fmt.Errorf("%w: %s", ErrNodeBusy, target)
	}
	if err := s.canConnectLocked(source, sourceHandle, target, targetHandle); err != nil {
		return nil, err
	}

	s.edgeSeq++
	e := &Edge{
		ID:           uuid.NewString(),
		Source:       source,
		SourceHandle: sourceHandle,
		Target:       target,
		TargetHandle: targetHandle,
		Seq:          s.edgeSeq,
	}
	s.edges = append(s.edges, e)
	return e, nil
}

// restoreEdge re-inserts a snapshot edge keeping its original sequence.
func (s *GraphStore) restoreEdge(e *Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.nodes[e.Source]
	if !ok {
		return fmt.Errorf("%w: edge %s source %s", ErrNodeNotFound, e.ID, e.Source)
	}
	dst, ok := s.nodes[e.Target]
	if !ok {
		return fmt.Errorf("%w: edge %s target %s", ErrNodeNotFound, e.ID, e.Target)
	}
	if e.Source == e.Target {
		return validationf("edge %s is a self-loop", e.ID)
	}
	if e.SourceHandle != e.TargetHandle {
		return validationf("edge %s connects %s to %s", e.ID, e.SourceHandle, e.TargetHandle)
	}
	if err := handleCompatible(src, dst, e.SourceHandle, e.TargetHandle); err != nil {
		return err
	}
	cp := *e
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Seq == 0 {
		s.edgeSeq++
		cp.Seq = s.edgeSeq
	} else if cp.Seq > s.edgeSeq {
		s.edgeSeq = cp.Seq
	}
	s.edges = append(s.edges, &cp)
	return nil
}

// Edges returns all edges in creation order.
func (s *GraphStore) Edges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// DeleteEdge removes an edge by id.
func (s *GraphStore) DeleteEdge(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.edges {
		if e.ID == id {
			if _, loading := s.busy[e.Target]; loading {
				return fmt.Errorf("%w: %s", ErrNodeBusy, e.Target)
			}
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
}

// AddGroup registers a group. Members must exist and belong to at most one
// group; groups do not nest.
func (s *GraphStore) AddGroup(g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if _, ok := s.groups[g.ID]; ok {
		return validationf("group id %s already in use", g.ID)
	}
	for _, m := range g.Members {
		n, ok := s.nodes[m]
		if !ok {
			return fmt.Errorf("%w: group member %s", ErrNodeNotFound, m)
		}
		if n.GroupID != "" && n.GroupID != g.ID {
			return validationf("node %s already belongs to group %s", m, n.GroupID)
		}
	}
	for _, m := range g.Members {
		s.nodes[m].GroupID = g.ID
	}
	s.groups[g.ID] = g
	return nil
}

// SetGroupLocked toggles a group's locked flag.
func (s *GraphStore) SetGroupLocked(id string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	g.Locked = locked
	return nil
}

// Locked reports whether the node belongs to a locked group.
func (s *GraphStore) Locked(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lockedLocked(nodeID)
}

func (s *GraphStore) lockedLocked(nodeID string) bool {
	n, ok := s.nodes[nodeID]
	if !ok || n.GroupID == "" {
		return false
	}
	g, ok := s.groups[n.GroupID]
	return ok && g.Locked
}

// Snapshot produces a serializable copy of the graph for persistence.
func (s *GraphStore) Snapshot() *Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf := &Workflow{}
	for _, id := range s.order {
		wf.Nodes = append(wf.Nodes, *s.nodes[id])
	}
	for _, e := range s.edges {
		wf.Edges = append(wf.Edges, *e)
	}
	for _, g := range s.groups {
		wf.Groups = append(wf.Groups, *g)
	}
	return wf
}

// markBusy guards a node's structure while its provider call is in flight.
func (s *GraphStore) markBusy(id string, busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if busy {
		s.busy[id] = struct{}{}
	} else {
		delete(s.busy, id)
	}
}

// incoming returns the edges targeting nodeID, in creation order.
func (s *GraphStore) incoming(nodeID string) []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var in []*Edge
	for _, e := range s.edges {
		if e.Target == nodeID {
			in = append(in, e)
		}
	}
	return in
}
