package workflow

import "context"

// NodeExecutor is the per-type strategy invoked for a node once its inputs
// have been resolved. Executors receive a copy of the node and must not
// touch shared state; the run controller applies the returned output under
// its single-writer discipline.
type NodeExecutor interface {
	Execute(ctx context.Context, node Node, in ResolvedInputs) (execOutput, error)
}

// Registry maps node types to their executor implementation. Pure sources
// (imageInput, prompt) have no entry: they never run.
type Registry map[NodeType]NodeExecutor

// NewRegistry creates a registry populated with all built-in executor types.
func NewRegistry(images ImageProvider, texts TextProvider) Registry {
	return Registry{
		TypeAnnotation:  &AnnotationExecutor{},
		TypeNanoBanana:  &GenerateExecutor{provider: images},
		TypeLLMGenerate: &LLMExecutor{provider: texts},
		TypeOutput:      &OutputExecutor{},
	}
}
