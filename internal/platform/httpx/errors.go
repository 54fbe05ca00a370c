// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-hms/meridian/internal/shared"
)

// Sentinel errors for the transport layer.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
)

var kindStatus = map[shared.Kind]int{
	shared.KindInvalidAmount:       http.StatusUnprocessableEntity,
	shared.KindInvalidQuantity:     http.StatusUnprocessableEntity,
	shared.KindNegativeAmount:      http.StatusUnprocessableEntity,
	shared.KindNegativeFinalAmount: http.StatusUnprocessableEntity,
	shared.KindQuantityRequired:    http.StatusUnprocessableEntity,
	shared.KindInsufficientStock:   http.StatusConflict,
	shared.KindMedicineInactive:    http.StatusConflict,
	shared.KindInvalidState:        http.StatusConflict,
	shared.KindVoidInvoice:         http.StatusConflict,
	shared.KindConflict:            http.StatusConflict,
	shared.KindPaymentNotApproved:  http.StatusPaymentRequired,
	shared.KindNotFound:            http.StatusNotFound,
	shared.KindForbidden:           http.StatusForbidden,
}

// StatusFor returns the HTTP status used for err.
func StatusFor(err error) int {
	if kind := shared.KindOf(err); kind != "" {
		if status, ok := kindStatus[kind]; ok {
			return status
		}
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusInternalServerError:
		Problem(w, status, "Internal Error", "")
	case http.StatusBadRequest, http.StatusUnauthorized:
		Problem(w, status, http.StatusText(status), err.Error())
	default:
		JSON(w, status, ProblemDetail{
			Title:  http.StatusText(status),
			Status: status,
			Code:   string(shared.KindOf(err)),
			Detail: shared.UserSafeMessage(err),
		})
	}
}
