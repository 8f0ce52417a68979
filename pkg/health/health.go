package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/pkg/httpsrv"
)

const checkTimeout = 2 * time.Second

// Check reports an error when the dependency it watches is unavailable.
type Check func(ctx context.Context) error

type status struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func NewHealthCheckServer(listen, path string, handler http.Handler) *http.Server {
	r := mux.NewRouter()
	r.Handle(path, handler).Methods(http.MethodGet)

	return httpsrv.NewServer(listen, r)
}

// DefaultHandler answers 200 while every check passes and 503 otherwise.
func DefaultHandler(checks map[string]Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		res := status{Status: "ok", Checks: make(map[string]string, len(checks))}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Str("check", name).Msg("health check failed")

				res.Checks[name] = err.Error()
				res.Status = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			res.Checks[name] = "ok"
		}

		httpsrv.WriteJSON(w, code, res)
	})
}
