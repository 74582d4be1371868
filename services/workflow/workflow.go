package workflow

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// HandleGetWorkflow loads a workflow definition from the database and returns it as JSON.
func (s *Service) HandleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Getting workflow", "id", id)

	wf, err := s.repo.Get(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(wf)
}

// HandleSaveWorkflow persists a workflow snapshot. The body is validated by
// loading it into a graph store before anything touches the database.
func (s *Service) HandleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Saving workflow", "id", id)

	var wf Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	wf.ID = id

	if _, err := NewGraphStoreFromWorkflow(&wf); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.repo.Save(r.Context(), &wf); err != nil {
		slog.Error("Failed to save workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// HandleExecuteWorkflow loads the stored graph, runs it and returns the
// per-node results. After a run the mutated snapshot (statuses, outputs) is
// saved back so the canvas reflects the outcome on reload.
func (s *Service) HandleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Debug("Executing workflow", "id", id)

	store, wf, ok := s.loadStore(w, r, id)
	if !ok {
		return
	}

	results, err := s.engine.Run(r.Context(), store)
	if err != nil {
		writeRunError(w, id, err)
		return
	}

	s.persistRunState(r, wf, store)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(results)
}

// HandleRegenerateNode re-runs a single node from its already-resolved
// upstream inputs.
func (s *Service) HandleRegenerateNode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, nodeID := vars["id"], vars["nodeId"]
	slog.Debug("Regenerating node", "id", id, "nodeId", nodeID)

	store, wf, ok := s.loadStore(w, r, id)
	if !ok {
		return
	}

	results, err := s.engine.Regenerate(r.Context(), store, nodeID)
	if err != nil {
		if errors.Is(err, ErrNodeNotFound) {
			writeError(w, http.StatusNotFound, "node not found")
			return
		}
		writeRunError(w, id, err)
		return
	}

	s.persistRunState(r, wf, store)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(results)
}

// HandleCancelRun flags the in-progress run as cancelled.
func (s *Service) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Cancelling run", "id", mux.Vars(r)["id"])
	s.engine.Cancel()
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelling"})
}

// HandleGetHistory returns the generation history, most recent first.
func (s *Service) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.history.Entries())
}

func (s *Service) loadStore(w http.ResponseWriter, r *http.Request, id string) (*GraphStore, *Workflow, bool) {
	wf, err := s.repo.Get(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get workflow", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, nil, false
	}
	if wf == nil {
		writeError(w, http.StatusNotFound, "workflow not found")
		return nil, nil, false
	}

	store, err := NewGraphStoreFromWorkflow(wf)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return nil, nil, false
	}
	return store, wf, true
}

func (s *Service) persistRunState(r *http.Request, wf *Workflow, store *GraphStore) {
	snapshot := store.Snapshot()
	snapshot.ID = wf.ID
	snapshot.Name = wf.Name
	if err := s.repo.Save(r.Context(), snapshot); err != nil {
		slog.Error("Failed to persist run state", "id", wf.ID, "error", err)
	}
}

func writeRunError(w http.ResponseWriter, id string, err error) {
	var verr *ValidationError
	var cerr *CycleError
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Workflow execution failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
