package workflow

// accepts reports whether nodes of this type take inputs on the given
// handle. Pure sources accept nothing; annotation and output consume images
// only; the generation types also take a text prompt.
func (t NodeType) accepts(h Handle) bool {
	switch t {
	case TypeAnnotation, TypeOutput:
		return h == HandleImage
	case TypeNanoBanana, TypeLLMGenerate:
		return h == HandleImage || h == HandleText
	default:
		return false
	}
}

// CanConnect decides whether a proposed edge between two handles is legal.
// It has no side effects, so the UI can call it to drive connection
// affordances before attempting the actual insertion.
func (s *GraphStore) CanConnect(source string, sourceHandle Handle, target string, targetHandle Handle) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canConnectLocked(source, sourceHandle, target, targetHandle)
}

func (s *GraphStore) canConnectLocked(source string, sourceHandle Handle, target string, targetHandle Handle) error {
	if sourceHandle != targetHandle {
		return validationf("cannot connect %s output to %s input", sourceHandle, targetHandle)
	}
	if source == target {
		return validationf("node %s cannot connect to itself", source)
	}

	src, ok := s.nodes[source]
	if !ok {
		return validationf("source node %s does not exist", source)
	}
	dst, ok := s.nodes[target]
	if !ok {
		return validationf("target node %s does not exist", target)
	}

	if err := handleCompatible(src, dst, sourceHandle, targetHandle); err != nil {
		return err
	}

	if s.reachableLocked(target, source) {
		return validationf("connecting %s to %s would create a cycle", source, target)
	}
	return nil
}

// handleCompatible verifies the source produces the handle's type and the
// target accepts it. Shared by live connection checks and snapshot restore,
// so an edge that could never be drawn cannot be loaded either.
func handleCompatible(src, dst *Node, sourceHandle, targetHandle Handle) error {
	switch sourceHandle {
	case HandleImage:
		if _, produces := src.Data.OutputImage(); !produces {
			return validationf("node type %s does not produce images", src.Type)
		}
	case HandleText:
		if _, produces := src.Data.OutputText(); !produces {
			return validationf("node type %s does not produce text", src.Type)
		}
	default:
		return validationf("unknown handle %q", sourceHandle)
	}

	if !dst.Type.accepts(targetHandle) {
		return validationf("node type %s does not accept %s input", dst.Type, targetHandle)
	}
	return nil
}

// reachableLocked reports whether to is reachable from from over the current
// edge set. Used to keep the graph a DAG ahead of insertion.
func (s *GraphStore) reachableLocked(from, to string) bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		for _, e := range s.edges {
			if e.Source == cur && !seen[e.Target] {
				seen[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}
	return false
}

// preflight validates the graph ahead of a full run: the data-dependency
// edges must form a DAG, and every unlocked generation node must have a text
// input that can materialize during this run. A missing output node is only
// worth a warning; the run simply produces no terminal artifact.
func preflight(s *GraphStore) (plan *ExecutionPlan, warnings []string, err error) {
	plan, err = Plan(s)
	if err != nil {
		return nil, nil, err
	}

	for _, n := range s.Nodes() {
		switch n.Type {
		case TypeNanoBanana, TypeLLMGenerate:
			if s.Locked(n.ID) {
				continue
			}
			if err := textSatisfiable(s, n); err != nil {
				return nil, nil, err
			}
		}
	}

	hasOutput := false
	for _, n := range s.Nodes() {
		if n.Type == TypeOutput {
			hasOutput = true
			break
		}
	}
	if !hasOutput {
		warnings = append(warnings, "workflow has no output node")
	}
	return plan, warnings, nil
}

// textSatisfiable checks that a generation node's text input either already
// holds a value or comes from a node that will execute during this run.
func textSatisfiable(s *GraphStore, n *Node) error {
	var active *Edge
	for _, e := range s.incoming(n.ID) {
		if e.TargetHandle != HandleText {
			continue
		}
		if active == nil || e.Seq > active.Seq {
			active = e
		}
	}
	if active == nil {
		return validationf("node %s has no text input connected", n.ID)
	}

	src, err := s.Node(active.Source)
	if err != nil {
		return err
	}
	text, _ := src.Data.OutputText()
	if text != "" {
		return nil
	}
	// Empty now is fine if the source itself runs this turn and can still
	// produce; a static prompt or a locked member never will.
	if src.Type.Executable() && !s.Locked(src.ID) {
		return nil
	}
	return validationf("node %s is missing its text input: %s has no text to offer", n.ID, src.ID)
}
