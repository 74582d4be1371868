package workflow

import (
	"context"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WorkflowRepo abstracts workflow persistence for testability.
type WorkflowRepo interface {
	Get(ctx context.Context, id string) (*Workflow, error)
	Save(ctx context.Context, wf *Workflow) error
}

// Service wires together the repository, the execution engine and the
// generation history for the workflow domain.
type Service struct {
	repo    WorkflowRepo
	engine  *Engine
	history *History
}

// NewService creates a Service with a real PostgreSQL repository and the
// Gemini/OpenAI provider clients. Provider keys come from the environment;
// calls simply fail at run time if a key is absent.
func NewService(pool *pgxpool.Pool) (*Service, error) {
	repo := NewRepository(pool)
	images := NewGeminiClient(os.Getenv("GEMINI_API_KEY"))
	texts := NewOpenAIClient(os.Getenv("OPENAI_API_KEY"))
	history := NewHistory(defaultHistoryCap)
	engine := NewEngine(NewRegistry(images, texts), history)
	return &Service{repo: repo, engine: engine, history: history}, nil
}

// jsonMiddleware sets the Content-Type header to application/json.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// LoadRoutes registers workflow HTTP handlers on the given router.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/workflows").Subrouter()
	router.StrictSlash(false)
	router.Use(jsonMiddleware)

	router.HandleFunc("/{id}", s.HandleGetWorkflow).Methods("GET")
	router.HandleFunc("/{id}", s.HandleSaveWorkflow).Methods("PUT")
	router.HandleFunc("/{id}/execute", s.HandleExecuteWorkflow).Methods("POST")
	router.HandleFunc("/{id}/cancel", s.HandleCancelRun).Methods("POST")
	router.HandleFunc("/{id}/nodes/{nodeId}/regenerate", s.HandleRegenerateNode).Methods("POST")

	historyRouter := parentRouter.PathPrefix("/history").Subrouter()
	historyRouter.Use(jsonMiddleware)
	historyRouter.HandleFunc("", s.HandleGetHistory).Methods("GET")
}
