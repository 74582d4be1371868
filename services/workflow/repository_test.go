package workflow

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func TestRepository_InitSchema(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	err := repo.InitSchema(context.Background())
	require.NoError(t, err)

	// Running again should be idempotent
	err = repo.InitSchema(context.Background())
	require.NoError(t, err)
}

func TestRepository_Seed_Idempotent(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	require.NoError(t, repo.Seed(ctx))
	require.NoError(t, repo.Seed(ctx)) // Second call should not error
}

func TestRepository_Get_Found(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))
	require.NoError(t, repo.Seed(ctx))

	wf, err := repo.Get(ctx, sampleWorkflowID)
	require.NoError(t, err)
	require.NotNil(t, wf)

	assert.Equal(t, sampleWorkflowID, wf.ID)
	assert.Len(t, wf.Nodes, 4)
	assert.Len(t, wf.Edges, 3)

	// The seed must load into a runnable store.
	store, err := NewGraphStoreFromWorkflow(wf)
	require.NoError(t, err)
	_, _, err = preflight(store)
	assert.NoError(t, err)
}

func TestRepository_Get_NotFound(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	wf, err := repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	require.NoError(t, err)
	assert.Nil(t, wf)
}

func TestRepository_SaveRoundTrip(t *testing.T) {
	pool := getTestPool(t)
	repo := NewRepository(pool)

	ctx := context.Background()
	require.NoError(t, repo.InitSchema(ctx))

	const id = "8a9f1f8e-6c2b-4a4f-9a55-7f0f3cb4d001"
	wf := &Workflow{
		ID:   id,
		Name: "Round Trip",
		Nodes: []Node{
			{ID: "img", Type: TypeImageInput, Data: &ImageInputData{Image: "data:x"}},
			{ID: "gen", Type: TypeNanoBanana, Data: &GenerateData{Model: "m", OutImage: "data:out", execState: execState{Status: StatusSuccess}}},
		},
		Edges: []Edge{
			{ID: "e1", Source: "img", SourceHandle: HandleImage, Target: "gen", TargetHandle: HandleImage, Seq: 1},
		},
		Groups: []Group{{ID: "g1", Members: []string{"gen"}, Locked: true}},
	}
	require.NoError(t, repo.Save(ctx, wf))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Round Trip", got.Name)
	require.Len(t, got.Nodes, 2)
	gen := got.Nodes[1]
	data, ok := gen.Data.(*GenerateData)
	require.True(t, ok)
	assert.Equal(t, "data:out", data.OutImage)
	assert.Equal(t, StatusSuccess, data.Status)
	require.Len(t, got.Groups, 1)
	assert.True(t, got.Groups[0].Locked)
}
