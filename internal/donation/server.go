package donation

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

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
	r.HandleFunc("/v1/donations", s.byTarget).Methods(http.MethodGet)
	r.HandleFunc("/v1/donations/{id}", s.get).Methods(http.MethodGet)
}

type donationInfo struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                *uuid.UUID      `json:"user_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Status                Status          `json:"status"`
	Provider              string          `json:"provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	FailureReason         *string         `json:"failure_reason,omitempty"`
	TargetType            TargetType      `json:"target_type"`
	TargetID              *uuid.UUID      `json:"target_id,omitempty"`
	Recurring             bool            `json:"recurring"`
	Anonymous             bool            `json:"anonymous"`
	DonatedAt             time.Time       `json:"donated_at"`
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid donation id")
		return
	}

	d, err := s.sp.GetByID(r.Context(), id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertDonation(d))
}

func (s *Server) byTarget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := TargetType(q.Get("target_type"))
	if target != TargetGuardianship && target != TargetAidRequest {
		httpsrv.WriteError(w, http.StatusBadRequest, "target_type must be guardianship or aid_request")
		return
	}

	id, err := uuid.Parse(q.Get("target_id"))
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid target id")
		return
	}

	list, err := s.sp.GetByTarget(r.Context(), target, id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	res := make([]donationInfo, 0, len(list))
	for i := range list {
		res = append(res, convertDonation(&list[i]))
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

// convertDonation hides the donor of anonymous donations.
func convertDonation(d *Donation) donationInfo {
	info := donationInfo{
		ID:                    d.ID,
		UserID:                d.UserID,
		Amount:                d.Amount,
		Currency:              d.Currency,
		Status:                d.Status,
		Provider:              d.Provider,
		ProviderTransactionID: d.ProviderTransactionID,
		FailureReason:         d.FailureReason,
		TargetType:            d.TargetType,
		TargetID:              d.TargetID,
		Recurring:             d.Recurring,
		Anonymous:             d.Anonymous,
		DonatedAt:             d.DonatedAt,
	}
	if d.Anonymous {
		info.UserID = nil
	}

	return info
}
