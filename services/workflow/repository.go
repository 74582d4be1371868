package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles workflow persistence in PostgreSQL. Node, edge and
// group collections are stored as JSONB so the canvas snapshot round-trips
// byte-for-byte in meaning.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository backed by the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InitSchema creates the workflows table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS workflows (
			id         UUID PRIMARY KEY,
			name       TEXT NOT NULL DEFAULT '',
			nodes      JSONB NOT NULL DEFAULT '[]',
			edges      JSONB NOT NULL DEFAULT '[]',
			groups     JSONB NOT NULL DEFAULT '[]',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Seed inserts the sample image-generation workflow if it does not already
// exist.
func (r *Repository) Seed(ctx context.Context) error {
	nodesJSON, err := json.Marshal(sampleNodes)
	if err != nil {
		return fmt.Errorf("marshal seed nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(sampleEdges)
	if err != nil {
		return fmt.Errorf("marshal seed edges: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, nodes, edges)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, sampleWorkflowID, "Add a Hat", nodesJSON, edgesJSON)
	if err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}
	return nil
}

// Get retrieves a workflow by ID. Returns nil, nil if not found.
func (r *Repository) Get(ctx context.Context, id string) (*Workflow, error) {
	var wf Workflow
	var nodesJSON, edgesJSON, groupsJSON []byte

	err := r.db.QueryRow(ctx, `
		SELECT id, name, nodes, edges, groups, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id).Scan(&wf.ID, &wf.Name, &nodesJSON, &edgesJSON, &groupsJSON, &wf.CreatedAt, &wf.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	if err := json.Unmarshal(nodesJSON, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("unmarshal nodes: %w", err)
	}
	if err := json.Unmarshal(edgesJSON, &wf.Edges); err != nil {
		return nil, fmt.Errorf("unmarshal edges: %w", err)
	}
	if err := json.Unmarshal(groupsJSON, &wf.Groups); err != nil {
		return nil, fmt.Errorf("unmarshal groups: %w", err)
	}
	return &wf, nil
}

// Save upserts a workflow snapshot.
func (r *Repository) Save(ctx context.Context, wf *Workflow) error {
	nodesJSON, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	edgesJSON, err := json.Marshal(wf.Edges)
	if err != nil {
		return fmt.Errorf("marshal edges: %w", err)
	}
	groups := wf.Groups
	if groups == nil {
		groups = []Group{}
	}
	groupsJSON, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("marshal groups: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO workflows (id, name, nodes, edges, groups)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    nodes = EXCLUDED.nodes,
		    edges = EXCLUDED.edges,
		    groups = EXCLUDED.groups,
		    updated_at = NOW()
	`, wf.ID, wf.Name, nodesJSON, edgesJSON, groupsJSON)
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// InitDB creates the schema and seeds initial data. Called from main on startup.
func InitDB(ctx context.Context, pool *pgxpool.Pool) error {
	repo := NewRepository(pool)
	if err := repo.InitSchema(ctx); err != nil {
		return err
	}
	return repo.Seed(ctx)
}

const sampleWorkflowID = "3f1a7c52-9d7e-4b0a-b0d4-2f6f4f9b1c11"

var sampleNodes = []Node{
	{
		ID: "imageInput-1", Type: TypeImageInput,
		Position: Position{X: -160, Y: 120},
		Data:     &ImageInputData{Label: "Source Photo"},
	},
	{
		ID: "prompt-1", Type: TypePrompt,
		Position: Position{X: -160, Y: 420},
		Data:     &PromptData{Prompt: "add a red wizard hat"},
	},
	{
		ID: "nanoBanana-1", Type: TypeNanoBanana,
		Position: Position{X: 280, Y: 260},
		Data:     &GenerateData{execState: execState{Status: StatusIdle}},
	},
	{
		ID: "output-1", Type: TypeOutput,
		Position: Position{X: 680, Y: 260},
		Data:     &OutputData{execState: execState{Status: StatusIdle}},
	},
}

var sampleEdges = []Edge{
	{ID: "e1", Source: "imageInput-1", SourceHandle: HandleImage, Target: "nanoBanana-1", TargetHandle: HandleImage, Seq: 1},
	{ID: "e2", Source: "prompt-1", SourceHandle: HandleText, Target: "nanoBanana-1", TargetHandle: HandleText, Seq: 2},
	{ID: "e3", Source: "nanoBanana-1", SourceHandle: HandleImage, Target: "output-1", TargetHandle: HandleImage, Seq: 3},
}
