package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphStore_AddNode_DuplicateID(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "a", Type: TypePrompt, Data: &PromptData{}}))

	err := s.AddNode(&Node{ID: "a", Type: TypePrompt, Data: &PromptData{}})
	assert.ErrorIs(t, err, ErrNodeExists)
}

func TestGraphStore_AddNode_InitializesStatus(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{}}))
	require.NoError(t, s.AddNode(&Node{ID: "out", Type: TypeOutput, Data: &OutputData{}}))

	gen, err := s.Node("gen")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, gen.Data.(runnable).state().Status)

	out, err := s.Node("out")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, out.Data.(runnable).state().Status)

	// The snapshot contract never carries an empty status.
	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"status":""`)
	assert.Contains(t, string(raw), `"status":"idle"`)
}

func TestGraphStore_AddNode_KeepsRestoredStatus(t *testing.T) {
	s := NewGraphStore()
	data := &GenerateData{OutImage: "data:x", execState: execState{Status: StatusSuccess}}
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: data}))

	assert.Equal(t, StatusSuccess, data.Status)
}

func TestGraphStore_DeleteNode_Cascades(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "img", Type: TypeImageInput, Data: &ImageInputData{Image: "data:x"}}))
	require.NoError(t, s.AddNode(&Node{ID: "ann", Type: TypeAnnotation, Data: &AnnotationData{}}))
	require.NoError(t, s.AddNode(&Node{ID: "out", Type: TypeOutput, Data: &OutputData{}}))
	_, err := s.Connect("img", HandleImage, "ann", HandleImage)
	require.NoError(t, err)
	_, err = s.Connect("ann", HandleImage, "out", HandleImage)
	require.NoError(t, err)
	require.NoError(t, s.AddGroup(&Group{ID: "g1", Members: []string{"ann", "out"}}))

	require.NoError(t, s.DeleteNode("ann"))

	_, err = s.Node("ann")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	assert.Empty(t, s.Edges(), "incident edges should be removed")

	wf := s.Snapshot()
	require.Len(t, wf.Groups, 1)
	assert.Equal(t, []string{"out"}, wf.Groups[0].Members)
}

func TestGraphStore_DeleteNode_BusyGuard(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{}}))

	s.markBusy("gen", true)
	assert.ErrorIs(t, s.DeleteNode("gen"), ErrNodeBusy)

	s.markBusy("gen", false)
	assert.NoError(t, s.DeleteNode("gen"))
}

func TestGraphStore_DeleteNode_BusyDependentGuard(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "img", Type: TypeImageInput, Data: &ImageInputData{Image: "data:x"}}))
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{}}))
	_, err := s.Connect("img", HandleImage, "gen", HandleImage)
	require.NoError(t, err)

	// Removing an upstream neighbor would cascade into the loading node's
	// incoming edges.
	s.markBusy("gen", true)
	assert.ErrorIs(t, s.DeleteNode("img"), ErrNodeBusy)

	s.markBusy("gen", false)
	assert.NoError(t, s.DeleteNode("img"))
	assert.Empty(t, s.Edges())
}

func TestGraphStore_Connect_BusyTargetGuard(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "img", Type: TypeImageInput, Data: &ImageInputData{}}))
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{}}))

	s.markBusy("gen", true)
	_, err := s.Connect("img", HandleImage, "gen", HandleImage)
	assert.ErrorIs(t, err, ErrNodeBusy)
}

func TestGraphStore_Snapshot_RoundTrip(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "img", Type: TypeImageInput, Position: Position{X: 10, Y: 20}, Data: &ImageInputData{Label: "Photo", Image: "data:img"}}))
	require.NoError(t, s.AddNode(&Node{ID: "p", Type: TypePrompt, Data: &PromptData{Prompt: "add hat"}}))
	require.NoError(t, s.AddNode(&Node{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{Model: "m1", OutImage: "data:gen", execState: execState{Status: StatusSuccess}}}))
	_, err := s.Connect("img", HandleImage, "gen", HandleImage)
	require.NoError(t, err)
	_, err = s.Connect("p", HandleText, "gen", HandleText)
	require.NoError(t, err)
	require.NoError(t, s.AddGroup(&Group{ID: "g1", Members: []string{"gen"}, Locked: true}))

	raw, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)

	var wf Workflow
	require.NoError(t, json.Unmarshal(raw, &wf))

	restored, err := NewGraphStoreFromWorkflow(&wf)
	require.NoError(t, err)

	gen, err := restored.Node("gen")
	require.NoError(t, err)
	data, ok := gen.Data.(*GenerateData)
	require.True(t, ok, "payload type should survive the round trip")
	assert.Equal(t, "m1", data.Model)
	assert.Equal(t, "data:gen", data.OutImage)
	assert.Equal(t, StatusSuccess, data.Status)
	assert.Equal(t, "g1", gen.GroupID)
	assert.True(t, restored.Locked("gen"))

	edges := restored.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, int64(1), edges[0].Seq)
	assert.Equal(t, int64(2), edges[1].Seq)
}

func TestGraphStore_Restore_RejectsDanglingEdge(t *testing.T) {
	wf := &Workflow{
		Nodes: []Node{{ID: "img", Type: TypeImageInput, Data: &ImageInputData{}}},
		Edges: []Edge{{ID: "e1", Source: "img", SourceHandle: HandleImage, Target: "ghost", TargetHandle: HandleImage}},
	}
	_, err := NewGraphStoreFromWorkflow(wf)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestGraphStore_Restore_RejectsIncompatibleEdge(t *testing.T) {
	// A prompt never produces an image; such an edge cannot be drawn, so it
	// cannot be loaded from a snapshot either.
	wf := &Workflow{
		Nodes: []Node{
			{ID: "p", Type: TypePrompt, Data: &PromptData{Prompt: "hi"}},
			{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "p", SourceHandle: HandleImage, Target: "gen", TargetHandle: HandleImage, Seq: 1},
		},
	}
	_, err := NewGraphStoreFromWorkflow(wf)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestGraphStore_AddGroup_NoNesting(t *testing.T) {
	s := NewGraphStore()
	require.NoError(t, s.AddNode(&Node{ID: "a", Type: TypeAnnotation, Data: &AnnotationData{}}))
	require.NoError(t, s.AddGroup(&Group{ID: "g1", Members: []string{"a"}}))

	err := s.AddGroup(&Group{ID: "g2", Members: []string{"a"}})
	assert.Error(t, err, "a node belongs to at most one group")
}
