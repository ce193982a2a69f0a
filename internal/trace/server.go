package trace

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/trace/store"
	"github.com/gorilla/mux"
)

// Server exposes the Trace Recorder's HTTP surface (spec.md §4.6).
type Server struct {
	recorder *Recorder
}

// NewServer builds a Server over an existing Recorder.
func NewServer(r *Recorder) *Server {
	return &Server{recorder: r}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/trace", s.handleSaveTrace).Methods(http.MethodPost)
	r.HandleFunc("/trace/{runner_id}", s.handleGetByRunnerID).Methods(http.MethodGet)
	r.HandleFunc("/flow/{flow_id}", s.handleGetByFlowID).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleSaveTrace(w http.ResponseWriter, r *http.Request) {
	var rec flowtypes.TraceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := s.recorder.SaveTrace(r.Context(), rec)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleGetByRunnerID(w http.ResponseWriter, r *http.Request) {
	runnerID := mux.Vars(r)["runner_id"]
	rec, err := s.recorder.GetByRunnerID(r.Context(), runnerID)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetByFlowID(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flow_id"]
	recs, err := s.recorder.GetByFlowID(r.Context(), flowID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
