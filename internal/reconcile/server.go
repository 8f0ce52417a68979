package reconcile

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

type Server struct {
	runner *Runner
}

func NewServer(r *Runner) *Server {
	return &Server{
		runner: r,
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/admin/reconcile", s.run).Methods(http.MethodPost)
}

// run accepts an optional RFC3339 "at" query param; the current time is used otherwise.
func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	at := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid at, expected RFC3339")
			return
		}
		at = parsed
	}

	res, err := s.runner.Run(r.Context(), at)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}
