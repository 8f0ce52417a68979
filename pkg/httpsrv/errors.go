package httpsrv

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/shelter-labs/sponsorship-storage/internal/domain"
)

// StatusFromError maps domain errors to the http status returned to callers.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrExternalProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteDomainError writes err with the mapped status. Internal errors are logged and hidden.
func WriteDomainError(w http.ResponseWriter, err error) {
	status := StatusFromError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("internal error")
		WriteError(w, status, "internal error")
		return
	}

	WriteError(w, status, err.Error())
}
