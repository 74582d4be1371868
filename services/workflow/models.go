package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType identifies the fixed set of node kinds a workflow may contain.
type NodeType string

const (
	TypeImageInput  NodeType = "imageInput"
	TypePrompt      NodeType = "prompt"
	TypeAnnotation  NodeType = "annotation"
	TypeNanoBanana  NodeType = "nanoBanana"
	TypeLLMGenerate NodeType = "llmGenerate"
	TypeOutput      NodeType = "output"
)

// Executable reports whether nodes of this type run through an executor
// during a workflow run. Pure data sources (image inputs, prompts) are
// always treated as already-resolved and never enter the run state machine.
func (t NodeType) Executable() bool {
	switch t {
	case TypeAnnotation, TypeNanoBanana, TypeLLMGenerate, TypeOutput:
		return true
	default:
		return false
	}
}

// Handle is a typed connection point on a node.
type Handle string

const (
	HandleImage Handle = "image"
	HandleText  Handle = "text"
)

// Status is the per-node execution state machine: idle → loading → success|error.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Workflow is the serializable snapshot of a graph: the only externally
// visible contract. It must round-trip losslessly through save/load.
type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Nodes     []Node    `json:"nodes"`
	Edges     []Edge    `json:"edges"`
	Groups    []Group   `json:"groups,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Node represents a single node on the canvas.
type Node struct {
	ID       string      `json:"id"`
	Type     NodeType    `json:"type"`
	Position Position    `json:"position"`
	GroupID  string      `json:"groupId,omitempty"`
	Data     NodePayload `json:"data"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge represents a directed, type-homogeneous connection between two
// handles. Seq is the store-assigned creation sequence; fan-in ordering and
// last-connected-wins text resolution both derive from it.
type Edge struct {
	ID           string   `json:"id"`
	Source       string   `json:"source"`
	SourceHandle Handle   `json:"sourceHandle"`
	Target       string   `json:"target"`
	TargetHandle Handle   `json:"targetHandle"`
	Seq          int64    `json:"seq"`
	Data         EdgeData `json:"data"`
}

// EdgeData carries presentation hints owned by the canvas, not the engine.
type EdgeData struct {
	OffsetX  float64 `json:"offsetX,omitempty"`
	OffsetY  float64 `json:"offsetY,omitempty"`
	HasPause bool    `json:"hasPause,omitempty"`
}

// Group is a user-designated node cluster. Locked groups are excluded from
// execution; their members contribute last-known output to dependents.
type Group struct {
	ID      string   `json:"id"`
	Members []string `json:"members"`
	Locked  bool     `json:"locked"`
}

// NodePayload is the tagged union of per-type node data. Output-field
// extraction goes through the two capability methods rather than
// string-keyed lookup: the bool reports whether the node type produces that
// output at all, the string is the current value (empty until produced).
type NodePayload interface {
	OutputImage() (string, bool)
	OutputText() (string, bool)
}

// runnable is implemented by payloads of executable node types. The run
// controller is the only caller; executors never touch shared state.
type runnable interface {
	NodePayload
	state() *execState
	absorb(out execOutput)
}

// execState is embedded in every executable payload.
type execState struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *execState) state() *execState { return s }

// execOutput is what an executor hands back to the run controller.
type execOutput struct {
	image string
	text  string
}

// ImageInputData is the payload for user-supplied source images.
type ImageInputData struct {
	Label string `json:"label,omitempty"`
	Image string `json:"image,omitempty"`
}

func (d *ImageInputData) OutputImage() (string, bool) { return d.Image, true }
func (d *ImageInputData) OutputText() (string, bool)  { return "", false }

// PromptData is the payload for user-written text prompts.
type PromptData struct {
	Prompt string `json:"prompt,omitempty"`
}

func (d *PromptData) OutputImage() (string, bool) { return "", false }
func (d *PromptData) OutputText() (string, bool)  { return d.Prompt, true }

// AnnotationData is the payload for annotation nodes. OutImage holds the
// baked result of the UI drawing layer; running the node passes it through,
// falling back to the first input image when nothing was drawn yet.
type AnnotationData struct {
	execState
	OutImage string `json:"outputImage,omitempty"`
}

func (d *AnnotationData) OutputImage() (string, bool) { return d.OutImage, true }
func (d *AnnotationData) OutputText() (string, bool)  { return "", false }
func (d *AnnotationData) absorb(out execOutput)       { d.OutImage = out.image }

// GenerateData is the payload for nanoBanana image-generation nodes.
type GenerateData struct {
	execState
	Model    string `json:"model,omitempty"`
	OutImage string `json:"outputImage,omitempty"`
}

func (d *GenerateData) OutputImage() (string, bool) { return d.OutImage, true }
func (d *GenerateData) OutputText() (string, bool)  { return "", false }
func (d *GenerateData) absorb(out execOutput)       { d.OutImage = out.image }

// LLMData is the payload for text-generation nodes.
type LLMData struct {
	execState
	Model   string `json:"model,omitempty"`
	OutText string `json:"outputText,omitempty"`
}

func (d *LLMData) OutputImage() (string, bool) { return "", false }
func (d *LLMData) OutputText() (string, bool)  { return d.OutText, true }
func (d *LLMData) absorb(out execOutput)       { d.OutText = out.text }

// OutputData is the payload for terminal output nodes; Image is the artifact
// the canvas renders at the end of a run.
type OutputData struct {
	execState
	Image string `json:"image,omitempty"`
}

func (d *OutputData) OutputImage() (string, bool) { return d.Image, true }
func (d *OutputData) OutputText() (string, bool)  { return "", false }
func (d *OutputData) absorb(out execOutput)       { d.Image = out.image }

func newPayload(t NodeType) (NodePayload, error) {
	switch t {
	case TypeImageInput:
		return &ImageInputData{}, nil
	case TypePrompt:
		return &PromptData{}, nil
	case TypeAnnotation:
		return &AnnotationData{execState: execState{Status: StatusIdle}}, nil
	case TypeNanoBanana:
		return &GenerateData{execState: execState{Status: StatusIdle}}, nil
	case TypeLLMGenerate:
		return &LLMData{execState: execState{Status: StatusIdle}}, nil
	case TypeOutput:
		return &OutputData{execState: execState{Status: StatusIdle}}, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}
}

// UnmarshalJSON dispatches the data field to the concrete payload type for
// the node's type tag.
func (n *Node) UnmarshalJSON(b []byte) error {
	var shell struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Position Position        `json:"position"`
		GroupID  string          `json:"groupId"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &shell); err != nil {
		return err
	}

	payload, err := newPayload(shell.Type)
	if err != nil {
		return fmt.Errorf("node %q: %w", shell.ID, err)
	}
	if len(shell.Data) > 0 {
		if err := json.Unmarshal(shell.Data, payload); err != nil {
			return fmt.Errorf("node %q data: %w", shell.ID, err)
		}
	}

	n.ID = shell.ID
	n.Type = shell.Type
	n.Position = shell.Position
	n.GroupID = shell.GroupID
	n.Data = payload
	return nil
}

// ResolvedInputs is the materialized input set for one node: images in
// edge-creation order, at most one text value.
type ResolvedInputs struct {
	Images []string
	Text   *string
}

// ModelConfig selects and tunes the provider model for a generation call.
type ModelConfig struct {
	Model       string
	Temperature float64
}
