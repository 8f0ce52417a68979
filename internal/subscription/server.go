package subscription

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

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
	r.HandleFunc("/v1/subscriptions", s.list).Methods(http.MethodGet)
	r.HandleFunc("/v1/subscriptions/{scope:guardianship|aid_request|global}", s.create).Methods(http.MethodPost)
	r.HandleFunc("/v1/subscriptions/{id}", s.get).Methods(http.MethodGet)
	r.HandleFunc("/v1/subscriptions/{id}/pause", s.pause).Methods(http.MethodPost)
	r.HandleFunc("/v1/subscriptions/{id}/resume", s.resume).Methods(http.MethodPost)
	r.HandleFunc("/v1/provider-subscriptions/{provider_id}/cancel", s.cancel).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{user_id}/expected-payments", s.expectedPayments).Methods(http.MethodGet)
}

type createRequest struct {
	UserID      *uuid.UUID      `json:"user_id"`
	ScopeID     uuid.UUID       `json:"scope_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Provider    string          `json:"provider"`
	CustomerRef string          `json:"customer_ref"`
}

type subscriptionInfo struct {
	ID                     uuid.UUID       `json:"id"`
	CreatedAt              time.Time       `json:"created_at"`
	UserID                 *uuid.UUID      `json:"user_id,omitempty"`
	PaymentMethodID        uuid.UUID       `json:"payment_method_id"`
	ScopeType              ScopeType       `json:"scope_type"`
	ScopeID                *uuid.UUID      `json:"scope_id,omitempty"`
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	Provider               string          `json:"provider"`
	ProviderSubscriptionID string          `json:"provider_subscription_id"`
	Status                 Status          `json:"status"`
	NextChargeAt           *time.Time      `json:"next_charge_at,omitempty"`
	LastChargeAt           *time.Time      `json:"last_charge_at,omitempty"`
	CanceledAt             *time.Time      `json:"canceled_at,omitempty"`
}

type subscriptionList struct {
	Items      []subscriptionInfo `json:"items"`
	TotalCount int64              `json:"total_count"`
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpsrv.ReadJSON(w, r, &req); err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := CreateRequest{
		UserID:      req.UserID,
		ScopeID:     req.ScopeID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Provider:    req.Provider,
		CustomerRef: req.CustomerRef,
	}

	var (
		sub *Subscription
		err error
	)
	switch ScopeType(mux.Vars(r)["scope"]) {
	case ScopeTypeGuardianship:
		sub, err = s.sp.CreateForGuardianship(r.Context(), in)
	case ScopeTypeAidRequest:
		sub, err = s.sp.CreateForAidRequest(r.Context(), in)
	default:
		sub, err = s.sp.CreateGlobal(r.Context(), in)
	}
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusCreated, convertSubscription(sub))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	sub, err := s.sp.GetByID(r.Context(), id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertSubscription(sub))
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

	if statuses := q["status"]; len(statuses) > 0 {
		f := StatusFilter{}
		for _, st := range statuses {
			f.Statuses = append(f.Statuses, Status(st))
		}
		filters = append(filters, f)
	}

	if scope := q.Get("scope_type"); scope != "" {
		f := ScopeFilter{Type: ScopeType(scope)}
		if raw := q.Get("scope_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				httpsrv.WriteError(w, http.StatusBadRequest, "invalid scope id")
				return
			}
			f.ID = &id
		}
		filters = append(filters, f)
	}

	list, err := s.sp.GetByFilters(r.Context(), filters)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	res := subscriptionList{
		Items:      make([]subscriptionInfo, 0, len(list.Subscriptions)),
		TotalCount: list.TotalCount,
	}
	for i := range list.Subscriptions {
		res.Items = append(res.Items, convertSubscription(&list.Subscriptions[i]))
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.sp.Pause)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	s.toggle(w, r, s.sp.Resume)
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uuid.UUID) (*Subscription, error)) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}

	sub, err := fn(r.Context(), id)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertSubscription(sub))
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := s.sp.Cancel(r.Context(), mux.Vars(r)["provider_id"])
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	httpsrv.WriteJSON(w, http.StatusOK, convertSubscription(sub))
}

type expectedPayment struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	ScopeType      ScopeType       `json:"scope_type"`
	ScopeID        *uuid.UUID      `json:"scope_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	NextChargeAt   *time.Time      `json:"next_charge_at,omitempty"`
}

func (s *Server) expectedPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		httpsrv.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	list, err := s.sp.GetMyExpectedPayments(r.Context(), userID)
	if err != nil {
		httpsrv.WriteDomainError(w, err)
		return
	}

	res := make([]expectedPayment, 0, len(list))
	for _, p := range list {
		res = append(res, expectedPayment(p))
	}

	httpsrv.WriteJSON(w, http.StatusOK, res)
}

func convertSubscription(s *Subscription) subscriptionInfo {
	return subscriptionInfo{
		ID:                     s.ID,
		CreatedAt:              s.CreatedAt,
		UserID:                 s.UserID,
		PaymentMethodID:        s.PaymentMethodID,
		ScopeType:              s.ScopeType,
		ScopeID:                s.ScopeID,
		Amount:                 s.Amount,
		Currency:               s.Currency,
		Provider:               s.Provider,
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		Status:                 s.Status,
		NextChargeAt:           s.NextChargeAt,
		LastChargeAt:           s.LastChargeAt,
		CanceledAt:             s.CanceledAt,
	}
}
