package billing

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/metrics"
	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

const webhookBodyLimit = 1024 * 1024

type webhookReceivedResponse struct {
	Received bool `json:"received"`
}

// WebhookHandler verifies provider callbacks and hands the resulting events to the processor.
type WebhookHandler struct {
	verifiers map[string]WebhookVerifier
	handler   EventHandler
}

func NewWebhookHandler(h EventHandler, verifiers ...WebhookVerifier) *WebhookHandler {
	wh := &WebhookHandler{
		verifiers: make(map[string]WebhookVerifier, len(verifiers)),
		handler:   h,
	}
	for _, v := range verifiers {
		wh.verifiers[strings.ToLower(v.Provider())] = v
	}

	return wh
}

func (h *WebhookHandler) Register(r *mux.Router) {
	r.Handle("/webhooks/{provider}", h).Methods(http.MethodPost)
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := strings.ToLower(mux.Vars(r)["provider"])
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.CollectWebhook(provider, eventType, status, start)
	}()

	verifier, ok := h.verifiers[provider]
	if !ok {
		provider = "unknown"
		status = http.StatusNotFound
		httpsrv.WriteError(w, status, "unknown provider")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status = http.StatusBadRequest
		httpsrv.WriteError(w, status, "failed to read request body")
		return
	}

	signature := r.Header.Get(verifier.SignatureHeader())
	if strings.TrimSpace(signature) == "" {
		status = http.StatusBadRequest
		httpsrv.WriteError(w, status, "missing signature")
		return
	}

	ev, err := verifier.Verify(payload, signature)
	if errors.Is(err, ErrIgnoredEvent) {
		eventType = "ignored"
		httpsrv.WriteJSON(w, status, webhookReceivedResponse{Received: true})
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("webhook verification failed")
		status = http.StatusBadRequest
		httpsrv.WriteError(w, status, "invalid signature")
		return
	}
	eventType = string(ev.Type)

	if err := h.handler.Handle(r.Context(), *ev); err != nil {
		// client errors are acknowledged so the provider stops redelivering
		if httpsrv.StatusFromError(err) < http.StatusInternalServerError {
			log.Warn().Err(err).Str("event", ev.ID).Str("type", eventType).Msg("webhook event rejected")
			httpsrv.WriteJSON(w, status, webhookReceivedResponse{Received: true})
			return
		}

		log.Error().
			Err(err).
			Str("event", ev.ID).
			Str("type", eventType).
			Msg("webhook processing failed")
		status = http.StatusInternalServerError
		httpsrv.WriteError(w, status, "processing failed")
		return
	}

	httpsrv.WriteJSON(w, status, webhookReceivedResponse{Received: true})
}
