package npu

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Server exposes the NPU Worker's HTTP surface (spec.md §6.3).
type Server struct {
	worker *Worker
}

// NewServer builds a Server over an existing Worker.
func NewServer(w *Worker) *Server {
	return &Server{worker: w}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/run-node", s.handleRunNode).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type runNodeRequest struct {
	RunnerID  string                 `json:"runner_id"`
	NodeName  string                 `json:"node_name"`
	Code      string                 `json:"code"`
	Inputs    map[string]interface{} `json:"inputs"`
	ResultURL string                 `json:"result_url"`
	LogURL    string                 `json:"log_url"`
}

// handleRunNode accepts the job and immediately returns 202, running the
// actual execution asynchronously -- the NPU never blocks the Node
// Runner's request.
func (s *Server) handleRunNode(w http.ResponseWriter, r *http.Request) {
	var req runNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	go s.worker.Dispatch(req.RunnerID, req.NodeName, req.Code, req.Inputs, req.ResultURL, req.LogURL)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":     "queued",
		"queue_size": 1,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
