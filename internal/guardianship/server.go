package guardianship

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

const defaultLimit = 50

type Server struct {
	sp *Service
}

func NewServer(s *Service) *Server {
	return &Server{
		sp: s,
	}
}

func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/v1/guardianships", s.list).Methods(http.MethodGet)
	r.HandleFunc("/v1/guardianships", s.create).Methods(http.MethodPost)
	r.HandleFunc("/v1/guardianships/{id}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/v1/guardianships/{id}/activate", s.activate).Methods(http.MethodPost)
	r.HandleFunc("/v1/guardianships/{id}/require-payment", s.requirePayment).Methods(http.MethodPost)
	r.HandleFunc("/v1/guardianships/{id}/complete", s.complete).Methods(http.MethodPost)
	r.HandleFunc("/v1/guardianships/{id}/donations", s.donations).Methods(http.MethodGet)
	r.HandleFunc("/v1/guardianships/{id}/donations", s.linkDonation).Methods(http.MethodPost)
}

type createRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	AnimalID  uuid.UUID `json:"animal_id"`
	GraceDays int       `json:"grace_days"`
}

type donationRequest struct {
	DonationID uuid.UUID `json:"donation_id"`
}

type requirePaymentRequest struct {
	GraceDays int `json:"grace_days"`
}

type completeRequest struct {
	CancelSubscription bool `json:"cancel_subscription"`
}

type guardianshipInfo struct {
	ID          uuid.UUID  `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	UserID      uuid.UUID  `json:"user_id"`
	AnimalID    uuid.UUID  `json:"animal_id"`
	StartDate   time.Time  `json:"start_date"`
	Status      Status     `json:"status"`
	GraceUntil  *time.Time `json:"grace_until,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type guardianshipList struct {
	Items      []guardianshipInfo `json:"items"`
	TotalCount int64              `json:"total_count"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpsrv.ReadJSON(w, r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.AnimalID == uuid.Nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "user_id and animal_id are required")
		return
	}

	g, err := s.sp.Create(r.Context(), req.UserID, req.AnimalID, req.GraceDays)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusCreated, convertGuardianship(g))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	g, err := s.sp.GetByID(r.Context(), id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertGuardianship(g))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	offset, limit := httpsrv.Page(r, defaultLimit)
	filters := []Filter{
		PageFilter{Offset: offset, Limit: limit},
	}

	q := r.URL.Query()
	if raw := q.Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid user id")
			return
		}
		filters = append(filters, UserIDFilter{ID: id})
	}
	if raw := q.Get("animal_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid animal id")
			return
		}
		filters = append(filters, AnimalIDFilter{ID: id})
	}
	if statuses := q["status"]; len(statuses) > 0 {
		f := StatusFilter{}
		for _, st := range statuses {
			if !Status(st).Valid() {
				httpsrv.WriteError(w, http.StatusBadRequest, "invalid status")
				return
			}
			f.Statuses = append(f.Statuses, Status(st))
		}
		filters = append(filters, f)
	}

	list, err := s.sp.GetByFilters(r.Context(), filters)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	res := guardianshipList{
		Items:      make([]guardianshipInfo, 0, len(list.Guardianships)),
		TotalCount: list.TotalCount,
	}
	for i := range list.Guardianships {
		res.Items = append(res.Items, convertGuardianship(&list.Guardianships[i]))
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req donationRequest
	if err := httpsrv.ReadJSON(w, r, &req); err != nil || req.DonationID == uuid.Nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "donation_id is required")
		return
	}

	g, err := s.sp.ActivateWithFirstPayment(r.Context(), id, req.DonationID)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertGuardianship(g))
}

func (s *Server) requirePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req requirePaymentRequest
	if r.ContentLength != 0 {
		if err := httpsrv.ReadJSON(w, r, &req); err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	g, err := s.sp.RequirePayment(r.Context(), id, req.GraceDays)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertGuardianship(g))
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req completeRequest
	if r.ContentLength != 0 {
		if err := httpsrv.ReadJSON(w, r, &req); err != nil {
			httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	g, err := s.sp.Complete(r.Context(), id, req.CancelSubscription)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertGuardianship(g))
}

func (s *Server) donations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	ids, err := s.sp.GetDonationIDs(r.Context(), id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, map[string][]uuid.UUID{"donation_ids": ids})
}

func (s *Server) linkDonation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req donationRequest
	if err := httpsrv.ReadJSON(w, r, &req); err != nil || req.DonationID == uuid.Nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "donation_id is required")
		return
	}

	if err := s.sp.LinkDonation(r.Context(), id, req.DonationID); err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid guardianship id")
		return uuid.Nil, false
	}

	return id, true
}

func convertGuardianship(g *Guardianship) guardianshipInfo {
	return guardianshipInfo{
		ID:          g.ID,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
		UserID:      g.UserID,
		AnimalID:    g.AnimalID,
		StartDate:   g.StartDate,
		Status:      g.Status,
		GraceUntil:  g.GraceUntil,
		CompletedAt: g.CompletedAt,
	}
}
