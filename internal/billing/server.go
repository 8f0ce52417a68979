package billing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

type Server struct {
	sponsorship *Sponsorship
}

func NewServer(s *Sponsorship) *Server {
	return &Server{
		sponsorship: s,
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/sponsorships", s.start).Methods(http.MethodPost)
}

type startRequest struct {
	UserID      uuid.UUID       `json:"user_id"`
	AnimalID    uuid.UUID       `json:"animal_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Provider    string          `json:"provider"`
	CustomerRef string          `json:"customer_ref"`
}

type startResponse struct {
	GuardianshipID         uuid.UUID `json:"guardianship_id"`
	GuardianshipStatus     string    `json:"guardianship_status"`
	SubscriptionID         uuid.UUID `json:"subscription_id"`
	ProviderSubscriptionID string    `json:"provider_subscription_id"`
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpsrv.ReadJSON(w, r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.sponsorship.Start(r.Context(), StartRequest(req))
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusCreated, startResponse{
		GuardianshipID:         res.Guardianship.ID,
		GuardianshipStatus:     string(res.Guardianship.Status),
		SubscriptionID:         res.Subscription.ID,
		ProviderSubscriptionID: res.Subscription.ProviderSubscriptionID,
	})
}
