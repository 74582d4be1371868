package workflow

import (
	"context"
	"fmt"
)

// AnnotationExecutor handles annotation nodes. The drawing layer lives in
// the UI; by the time the engine sees the node its baked image is already in
// the payload, so execution is a pass-through. A node that was never drawn
// on falls back to its first input image.
type AnnotationExecutor struct{}

func (e *AnnotationExecutor) Execute(_ context.Context, node Node, in ResolvedInputs) (execOutput, error) {
	if img, _ := node.Data.OutputImage(); img != "" {
		return execOutput{image: img}, nil
	}
	if len(in.Images) > 0 {
		return execOutput{image: in.Images[0]}, nil
	}
	return execOutput{}, fmt.Errorf("annotation node %s has no image to annotate", node.ID)
}

// GenerateExecutor handles nanoBanana nodes: it sends the resolved prompt
// and reference images to the image provider and returns the generated
// image. Images are optional; prompt-only generation is allowed.
type GenerateExecutor struct {
	provider ImageProvider
}

func (e *GenerateExecutor) Execute(ctx context.Context, node Node, in ResolvedInputs) (execOutput, error) {
	if in.Text == nil {
		return execOutput{}, fmt.Errorf("generation node %s is missing its prompt", node.ID)
	}

	cfg := ModelConfig{}
	if data, ok := node.Data.(*GenerateData); ok {
		cfg.Model = data.Model
	}

	img, err := e.provider.GenerateImage(ctx, in.Images, *in.Text, cfg)
	if err != nil {
		return execOutput{}, &ProviderError{NodeID: node.ID, Err: err}
	}
	return execOutput{image: img}, nil
}

// LLMExecutor handles llmGenerate nodes: it sends the resolved prompt and
// any attached images to the text provider.
type LLMExecutor struct {
	provider TextProvider
}

func (e *LLMExecutor) Execute(ctx context.Context, node Node, in ResolvedInputs) (execOutput, error) {
	if in.Text == nil {
		return execOutput{}, fmt.Errorf("llm node %s is missing its prompt", node.ID)
	}

	cfg := ModelConfig{}
	if data, ok := node.Data.(*LLMData); ok {
		cfg.Model = data.Model
	}

	text, err := e.provider.GenerateText(ctx, *in.Text, in.Images, cfg)
	if err != nil {
		return execOutput{}, &ProviderError{NodeID: node.ID, Err: err}
	}
	return execOutput{text: text}, nil
}

// OutputExecutor handles terminal output nodes: it receives the first
// resolved input image so the canvas can render the run's artifact.
type OutputExecutor struct{}

func (e *OutputExecutor) Execute(_ context.Context, node Node, in ResolvedInputs) (execOutput, error) {
	if len(in.Images) == 0 {
		return execOutput{}, fmt.Errorf("output node %s received no image", node.ID)
	}
	return execOutput{image: in.Images[0]}, nil
}
