package apperr

import (
	"errors"
	"net/http"
)

// HTTPStatus maps an error to the status code that best describes its
// kind. Unrecognized errors map to 500. Order matters only in that the more
// specific sentinels are checked before ErrOther.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrServiceNotFound),
		errors.Is(err, ErrProgramNotFound),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrOutOfRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, ErrNoContent):
		return http.StatusNoContent
	case errors.Is(err, ErrStreamingTimedOut):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
