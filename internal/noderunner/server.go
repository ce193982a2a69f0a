package noderunner

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/gorilla/mux"
)

// Server exposes the Node Runner's HTTP surface: node dispatch, the NPU
// registry, and the result/log callbacks an NPU posts to (spec.md §4.3,
// §4.4).
type Server struct {
	session    *Session
	dispatcher *Dispatcher
}

// NewServer builds a Server over an existing session registry and
// dispatcher.
func NewServer(session *Session, dispatcher *Dispatcher) *Server {
	return &Server{session: session, dispatcher: dispatcher}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/nodes/add-node", s.handleAddNode).Methods(http.MethodPost)
	r.HandleFunc("/npu/add", s.handleNpuAdd).Methods(http.MethodPost)
	r.HandleFunc("/npu/pool/{id}", s.handleNpuPool).Methods(http.MethodPost)
	r.HandleFunc("/npu/all", s.handleNpuAll).Methods(http.MethodGet)
	r.HandleFunc("/npu/log/{runner_id}", s.handleNpuLog).Methods(http.MethodPost)
	r.HandleFunc("/npu/result/{runner_id}", s.handleNpuResult).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type addNodeRequest struct {
	NodeName string                 `json:"node_name"`
	Code     string                 `json:"code"`
	Inputs   map[string]interface{} `json:"inputs"`
}

// handleAddNode is the FCB's synchronous dispatch entry point: it blocks
// until the node execution completes or times out, then returns the
// NodeExecutionData the FCB's Step needs to advance.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.dispatcher.RunNode(r.Context(), req.NodeName, req.Code, req.Inputs)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, data)
}

type npuAddRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func (s *Server) handleNpuAdd(w http.ResponseWriter, r *http.Request) {
	var req npuAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.session.Add(r.Context(), req.ID, req.Address); err != nil {
		status := http.StatusConflict
		if err != ErrNpuExists {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

// handleNpuPool is the NPU heartbeat endpoint: an NPU posts its current
// metrics here roughly every few seconds to stay live in the registry.
func (s *Server) handleNpuPool(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var metrics flowtypes.NpuMetrics
	if err := json.NewDecoder(r.Body).Decode(&metrics); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.session.UpdateMetrics(r.Context(), id, metrics); err != nil {
		status := http.StatusNotFound
		if err != ErrNpuUnknown {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNpuAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.session.GetAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, all)
}

// handleNpuLog is the log callback (/npu/log/{runner_id}?log=<text>): the
// line is carried as a query parameter, not a JSON body, since NPUs stream
// it once per produced line with no other payload.
func (s *Server) handleNpuLog(w http.ResponseWriter, r *http.Request) {
	runnerID := mux.Vars(r)["runner_id"]
	line := r.URL.Query().Get("log")
	if err := s.dispatcher.HandleLog(runnerID, line); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleNpuResult(w http.ResponseWriter, r *http.Request) {
	runnerID := mux.Vars(r)["runner_id"]
	var outputs flowtypes.Outputs
	if err := json.NewDecoder(r.Body).Decode(&outputs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.dispatcher.HandleResult(runnerID, outputs); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// RunSweeper starts the session registry's liveness sweeper; it blocks
// until ctx is cancelled and is meant to be run in its own goroutine.
func (s *Server) RunSweeper(ctx context.Context) {
	s.session.RunSweeper(ctx)
}
