package secretstore

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Server exposes the Secret Manager's HTTP surface: a single lookup
// endpoint consumed by the Node Runner's secret resolver.
type Server struct {
	store *Store
}

// NewServer builds a Server over an existing Store.
func NewServer(store *Store) *Server {
	return &Server{store: store}
}

// Router builds the gorilla/mux router for this Server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/get/{key}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	value, ok := s.store.Get(key)
	if !ok {
		http.Error(w, "secret not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"key": key, "value": value})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
