package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hatGraph builds the canonical scenario:
// imageInput-1 --image--> nanoBanana-1 <--text-- prompt-1,
// nanoBanana-1 --image--> output-1.
func hatGraph(t *testing.T) *GraphStore {
	t.Helper()
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "imageInput-1", Type: TypeImageInput, Data: &ImageInputData{Image: "data:image/png;base64,src"}}))
	require.NoError(t, s.AddNode(&Node{ID: "prompt-1", Type: TypePrompt, Data: &PromptData{Prompt: "add hat"}}))
	require.NoError(t, s.AddNode(&Node{ID: "nanoBanana-1", Type: TypeNanoBanana, Data: &GenerateData{}}))
	require.NoError(t, s.AddNode(&Node{ID: "output-1", Type: TypeOutput, Data: &OutputData{}}))

	_, err := s.Connect("imageInput-1", HandleImage, "nanoBanana-1", HandleImage)
	require.NoError(t, err)
	_, err = s.Connect("prompt-1", HandleText, "nanoBanana-1", HandleText)
	require.NoError(t, err)
	_, err = s.Connect("nanoBanana-1", HandleImage, "output-1", HandleImage)
	require.NoError(t, err)
	return s
}

func TestPlan_BatchesRespectDependencies(t *testing.T) {
	s := hatGraph(t)

	plan, err := Plan(s)
	require.NoError(t, err)

	require.Equal(t, [][]string{{"nanoBanana-1"}, {"output-1"}}, plan.Batches)
	assert.True(t, plan.PreSatisfied("imageInput-1"))
	assert.True(t, plan.PreSatisfied("prompt-1"))
}

func TestPlan_IndependentNodesShareABatch(t *testing.T) {
	s := hatGraph(t)
	require.NoError(t, s.AddNode(&Node{ID: "imageInput-2", Type: TypeImageInput, Data: &ImageInputData{Image: "data:other"}}))
	require.NoError(t, s.AddNode(&Node{ID: "annotation-1", Type: TypeAnnotation, Data: &AnnotationData{}}))
	_, err := s.Connect("imageInput-2", HandleImage, "annotation-1", HandleImage)
	require.NoError(t, err)

	plan, err := Plan(s)
	require.NoError(t, err)

	require.Len(t, plan.Batches, 2)
	assert.ElementsMatch(t, []string{"nanoBanana-1", "annotation-1"}, plan.Batches[0])
	assert.Equal(t, []string{"output-1"}, plan.Batches[1])
}

func TestPlan_CycleError(t *testing.T) {
	// Connect refuses cycles, so smuggle one in through a snapshot.
	wf := &Workflow{
		Nodes: []Node{
			{ID: "a", Type: TypeAnnotation, Data: &AnnotationData{}},
			{ID: "b", Type: TypeAnnotation, Data: &AnnotationData{}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "a", SourceHandle: HandleImage, Target: "b", TargetHandle: HandleImage, Seq: 1},
			{ID: "e2", Source: "b", SourceHandle: HandleImage, Target: "a", TargetHandle: HandleImage, Seq: 2},
		},
	}
	s, err := NewGraphStoreFromWorkflow(wf)
	require.NoError(t, err)

	_, err = Plan(s)
	require.Error(t, err)
	var cerr *CycleError
	require.ErrorAs(t, err, &cerr)
	assert.ElementsMatch(t, []string{"a", "b"}, cerr.Nodes)
}

func TestPlan_LockedGroupExcludedAndSatisfied(t *testing.T) {
	s := hatGraph(t)
	require.NoError(t, s.AddGroup(&Group{ID: "g1", Members: []string{"prompt-1", "nanoBanana-1"}, Locked: true}))

	plan, err := Plan(s)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"output-1"}}, plan.Batches)
	assert.True(t, plan.PreSatisfied("nanoBanana-1"))
	assert.NotContains(t, plan.Runnable(), "nanoBanana-1")
}

func TestPlan_UnlockedGroupStillRuns(t *testing.T) {
	s := hatGraph(t)
	require.NoError(t, s.AddGroup(&Group{ID: "g1", Members: []string{"nanoBanana-1"}, Locked: false}))

	plan, err := Plan(s)
	require.NoError(t, err)
	assert.Contains(t, plan.Runnable(), "nanoBanana-1")
}

func TestPlan_NextBatchAdvances(t *testing.T) {
	s := hatGraph(t)
	plan, err := Plan(s)
	require.NoError(t, err)

	first := plan.NextBatch(map[string]bool{})
	assert.Equal(t, []string{"nanoBanana-1"}, first)

	second := plan.NextBatch(map[string]bool{"nanoBanana-1": true})
	assert.Equal(t, []string{"output-1"}, second)
}
