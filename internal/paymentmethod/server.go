package paymentmethod

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

type Server struct {
	sp *Service
}

func NewServer(s *Service) *Server {
	return &Server{
		sp: s,
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/payment-methods", s.list).Methods(http.MethodGet)
}

type methodInfo struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Enabled bool      `json:"enabled"`
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	list, err := s.sp.List(r.Context())
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	res := make([]methodInfo, 0, len(list))
	for _, pm := range list {
		res = append(res, methodInfo{ID: pm.ID, Name: pm.Name, Enabled: pm.Enabled})
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}
