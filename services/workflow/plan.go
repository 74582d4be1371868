package workflow

// ExecutionPlan is the derived schedule for one run: the data-dependency
// relation restricted to nodes that will actually execute, plus the set of
// nodes whose output is considered available before the first batch
// (sources, already-produced values, locked-group members). Plans are
// computed fresh at run start and hold no references back into the store.
type ExecutionPlan struct {
	// deps maps each runnable node to its data dependencies.
	deps map[string][]string
	// order lists runnable nodes in store insertion order, for
	// deterministic batch composition.
	order []string
	// preSatisfied holds nodes that never run but still satisfy their
	// dependents: pure sources and locked-group members.
	preSatisfied map[string]bool
	// Batches is the layered execution order: each batch is mutually
	// independent and may run concurrently.
	Batches [][]string
}

// Plan computes the execution order for the graph, or reports a CycleError
// naming the residual nodes when no valid order exists. Only image/text
// data edges gate execution; locked-group members are excluded from every
// batch and treated as immediately satisfied.
func Plan(s *GraphStore) (*ExecutionPlan, error) {
	nodes := s.Nodes()
	edges := s.Edges()

	// Cycle check runs over the full node set, locked or not: a snapshot
	// edited outside Connect's guard may carry a cycle.
	indegree := make(map[string]int, len(nodes))
	adj := make(map[string][]string)
	for _, n := range nodes {
		indegree[n.ID] = 0
	}
	for _, e := range edges {
		indegree[e.Target]++
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	var queue []string
	for _, n := range nodes {
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range adj[id] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed < len(nodes) {
		var residue []string
		for _, n := range nodes {
			if indegree[n.ID] > 0 {
				residue = append(residue, n.ID)
			}
		}
		return nil, &CycleError{Nodes: residue}
	}

	p := &ExecutionPlan{
		deps:         make(map[string][]string),
		preSatisfied: make(map[string]bool),
	}
	for _, n := range nodes {
		if !n.Type.Executable() || s.Locked(n.ID) {
			p.preSatisfied[n.ID] = true
			continue
		}
		p.order = append(p.order, n.ID)
		p.deps[n.ID] = nil
	}
	for _, e := range edges {
		if _, runnable := p.deps[e.Target]; runnable {
			p.deps[e.Target] = append(p.deps[e.Target], e.Source)
		}
	}

	// Layer the runnable nodes for the static view of the schedule. The
	// run loop recomputes readiness dynamically from the same relation.
	done := make(map[string]bool)
	for len(done) < len(p.order) {
		batch := p.NextBatch(done)
		if len(batch) == 0 {
			break
		}
		p.Batches = append(p.Batches, batch)
		for _, id := range batch {
			done[id] = true
		}
	}
	return p, nil
}

// NextBatch returns the runnable nodes not yet in done whose every
// dependency is either pre-satisfied or in done. An empty batch with
// nodes remaining means the residue is blocked.
func (p *ExecutionPlan) NextBatch(done map[string]bool) []string {
	var batch []string
	for _, id := range p.order {
		if done[id] {
			continue
		}
		ready := true
		for _, dep := range p.deps[id] {
			if !p.preSatisfied[dep] && !done[dep] {
				ready = false
				break
			}
		}
		if ready {
			batch = append(batch, id)
		}
	}
	return batch
}

// Deps returns the data dependencies of a runnable node.
func (p *ExecutionPlan) Deps(id string) []string { return p.deps[id] }

// Runnable returns all nodes the plan will execute, in insertion order.
func (p *ExecutionPlan) Runnable() []string { return p.order }

// PreSatisfied reports whether a node's output is considered available
// without executing it this run.
func (p *ExecutionPlan) PreSatisfied(id string) bool { return p.preSatisfied[id] }
