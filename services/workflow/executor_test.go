package workflow

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubImageProvider implements ImageProvider for testing.
type stubImageProvider struct {
	image  string
	err    error
	calls  atomic.Int32
	onCall func()
}

func (p *stubImageProvider) GenerateImage(_ context.Context, _ []string, _ string, _ ModelConfig) (string, error) {
	p.calls.Add(1)
	if p.onCall != nil {
		p.onCall()
	}
	if p.err != nil {
		return "", p.err
	}
	return p.image, nil
}

// stubTextProvider implements TextProvider for testing.
type stubTextProvider struct {
	text  string
	err   error
	calls atomic.Int32
}

func (p *stubTextProvider) GenerateText(_ context.Context, _ string, _ []string, _ ModelConfig) (string, error) {
	p.calls.Add(1)
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func strPtr(s string) *string { return &s }

func TestAnnotationExecutor_PassesThroughBakedImage(t *testing.T) {
	exec := &AnnotationExecutor{}
	node := Node{ID: "annotation-1", Type: TypeAnnotation, Data: &AnnotationData{OutImage: "data:baked"}}

	out, err := exec.Execute(context.Background(), node, ResolvedInputs{Images: []string{"data:source"}})

	require.NoError(t, err)
	assert.Equal(t, "data:baked", out.image)
}

func TestAnnotationExecutor_FallsBackToInput(t *testing.T) {
	exec := &AnnotationExecutor{}
	node := Node{ID: "annotation-1", Type: TypeAnnotation, Data: &AnnotationData{}}

	out, err := exec.Execute(context.Background(), node, ResolvedInputs{Images: []string{"data:source"}})

	require.NoError(t, err)
	assert.Equal(t, "data:source", out.image)
}

func TestAnnotationExecutor_NoImage(t *testing.T) {
	exec := &AnnotationExecutor{}
	node := Node{ID: "annotation-1", Type: TypeAnnotation, Data: &AnnotationData{}}

	_, err := exec.Execute(context.Background(), node, ResolvedInputs{})
	assert.Error(t, err)
}

func TestGenerateExecutor_Success(t *testing.T) {
	provider := &stubImageProvider{image: "data:image/png;base64,generated"}
	exec := &GenerateExecutor{provider: provider}
	node := Node{ID: "nanoBanana-1", Type: TypeNanoBanana, Data: &GenerateData{Model: "test-model"}}

	out, err := exec.Execute(context.Background(), node, ResolvedInputs{
		Images: []string{"data:image/png;base64,ref"},
		Text:   strPtr("add hat"),
	})

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,generated", out.image)
	assert.Equal(t, int32(1), provider.calls.Load())
}

func TestGenerateExecutor_MissingPrompt(t *testing.T) {
	provider := &stubImageProvider{image: "data:whatever"}
	exec := &GenerateExecutor{provider: provider}
	node := Node{ID: "nanoBanana-1", Type: TypeNanoBanana, Data: &GenerateData{}}

	_, err := exec.Execute(context.Background(), node, ResolvedInputs{})

	assert.Error(t, err)
	assert.Equal(t, int32(0), provider.calls.Load())
}

func TestGenerateExecutor_ProviderError(t *testing.T) {
	provider := &stubImageProvider{err: fmt.Errorf("rate limited")}
	exec := &GenerateExecutor{provider: provider}
	node := Node{ID: "nanoBanana-1", Type: TypeNanoBanana, Data: &GenerateData{}}

	_, err := exec.Execute(context.Background(), node, ResolvedInputs{Text: strPtr("add hat")})

	require.Error(t, err)
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "nanoBanana-1", perr.NodeID)
}

func TestLLMExecutor_Success(t *testing.T) {
	provider := &stubTextProvider{text: "a dramatic caption"}
	exec := &LLMExecutor{provider: provider}
	node := Node{ID: "llm-1", Type: TypeLLMGenerate, Data: &LLMData{}}

	out, err := exec.Execute(context.Background(), node, ResolvedInputs{Text: strPtr("describe this")})

	require.NoError(t, err)
	assert.Equal(t, "a dramatic caption", out.text)
}

func TestOutputExecutor(t *testing.T) {
	exec := &OutputExecutor{}
	node := Node{ID: "output-1", Type: TypeOutput, Data: &OutputData{}}

	out, err := exec.Execute(context.Background(), node, ResolvedInputs{Images: []string{"data:first", "data:second"}})
	require.NoError(t, err)
	assert.Equal(t, "data:first", out.image)

	_, err = exec.Execute(context.Background(), node, ResolvedInputs{})
	assert.Error(t, err)
}
