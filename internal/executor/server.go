package executor

import (
	"encoding/json"
	"net/http"

	"github.com/flowkit-run/flowkit/internal/fcb"
	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/gorilla/mux"
)

// Server exposes the Flow Executor's HTTP surface (spec.md §6.1).
type Server struct {
	queue *fcb.Queue
}

// NewServer builds a Server over an existing Queue.
func NewServer(queue *fcb.Queue) *Server {
	return &Server{queue: queue}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/fcb/add", s.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/fcb/{flow_id}/pause", s.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/fcb/{flow_id}/resume", s.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/fcb/{flow_id}/stop", s.handleStop).Methods(http.MethodPost)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type addFlowRequest struct {
	Nodes    map[string]flowtypes.Node `json:"nodes"`
	CurrInp  map[string]interface{}    `json:"curr_inp"`
	CurrNode flowtypes.Node            `json:"curr_node"`
}

// handleAdd builds a Flow from the request, registers and starts it. The
// starting node is folded into the node map if the caller didn't already
// include it there.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Nodes == nil {
		req.Nodes = make(map[string]flowtypes.Node)
	}
	if _, ok := req.Nodes[req.CurrNode.Name]; !ok {
		req.Nodes[req.CurrNode.Name] = req.CurrNode
	}

	flow := flowtypes.Flow{
		Nodes:    req.Nodes,
		CurrNode: req.CurrNode.Name,
		CurrInp:  req.CurrInp,
	}

	flowID, err := s.queue.Add(r.Context(), flow)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := s.queue.Start(r.Context(), flowID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"flow_id": flowID})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flow_id"]
	if err := s.queue.Pause(flowID); err != nil {
		s.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flow_id"]
	if err := s.queue.Resume(r.Context(), flowID); err != nil {
		s.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "resumed"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	flowID := mux.Vars(r)["flow_id"]
	if err := s.queue.Stop(r.Context(), flowID); err != nil {
		s.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "stopped"})
}

func (s *Server) writeQueueError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if err == fcb.ErrUnknownFlow {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
