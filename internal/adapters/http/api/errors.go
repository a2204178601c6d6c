package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/iamofff/kvn-scoring-system/internal/domain/model"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("missing or unknown password")
	ErrForbidden    = errors.New("role not allowed")
	ErrRateLimited  = errors.New("too many submissions")
	ErrUnknownKind  = errors.New("unknown roster list")

	errMissingParams = errors.New("missing query parameters")
)

// Wrap annotates err with the operation that failed.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WrapKind annotates err with the operation and a sentinel kind so callers
// can match either.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return NewKind(op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// NewKind returns an error of the given kind for op.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// classify maps domain errors onto an HTTP status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrUnknownKey):
		return http.StatusConflict, "stale_roster"
	case errors.Is(err, model.ErrInvalidScore):
		return http.StatusUnprocessableEntity, "invalid_score"
	case errors.Is(err, model.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name"
	case errors.Is(err, model.ErrInvalidName), errors.Is(err, ErrBadRequest), errors.Is(err, ErrUnknownKind):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail writes err with the status derived from its kind.
func fail(w http.ResponseWriter, err error) {
	status, code := classify(err)
	if code == "stale_roster" {
		err = fmt.Errorf("%w; the roster changed, please refresh", err)
	}
	writeError(w, status, code, err)
}
