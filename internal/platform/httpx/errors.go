// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/coldharbor-fpm/coldharbor/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Business
// outcomes that carry data the caller must branch on (shortfalls, capacity)
// keep their detail text; infrastructure failures stay generic.
func RespondError(w http.ResponseWriter, err error) {
	var (
		insufficient *shared.InsufficientStockError
		capacity     *shared.CapacityExceededError
		duplicate    *shared.DuplicateRequestError
		validation   *shared.ValidationError
	)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &validation), errors.Is(err, shared.ErrInvalidInput):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.As(err, &insufficient):
		Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.As(err, &capacity):
		Problem(w, http.StatusUnprocessableEntity, "Capacity Exceeded", err.Error())
	case errors.As(err, &duplicate):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus):
		Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", "state changed concurrently, retry the request")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
