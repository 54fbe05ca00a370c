package shared

import (
	"errors"
	"fmt"
)

// Kind is the stable machine readable code carried by domain errors.
type Kind string

const (
	KindInvalidAmount       Kind = "INVALID_AMOUNT"
	KindInsufficientStock   Kind = "INSUFFICIENT_STOCK"
	KindMedicineInactive    Kind = "MEDICINE_INACTIVE"
	KindInvalidState        Kind = "INVALID_STATE"
	KindPaymentNotApproved  Kind = "PAYMENT_NOT_APPROVED"
	KindQuantityRequired    Kind = "QUANTITY_REQUIRED"
	KindInvalidQuantity     Kind = "INVALID_QUANTITY"
	KindNegativeAmount      Kind = "NEGATIVE_AMOUNT"
	KindNegativeFinalAmount Kind = "NEGATIVE_FINAL_AMOUNT"
	KindVoidInvoice         Kind = "VOID_INVOICE"
	KindNotFound            Kind = "NOT_FOUND"
	KindForbidden           Kind = "FORBIDDEN"
	KindConflict            Kind = "CONFLICT"
)

// Error is a domain failure with a stable kind and a human readable message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind so wrapped details keep their identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	// ErrForbidden indicates the actor lacks the capability.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
	// ErrConflict indicates a duplicate request.
	ErrConflict = &Error{Kind: KindConflict, Message: "conflict"}

	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock, Message: "insufficient stock"}
	ErrMedicineInactive    = &Error{Kind: KindMedicineInactive, Message: "medicine is inactive"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "prescription is not in a valid state for this action"}
	ErrPaymentNotApproved  = &Error{Kind: KindPaymentNotApproved, Message: "no paid invoice for prescription"}
	ErrQuantityRequired    = &Error{Kind: KindQuantityRequired, Message: "explicit quantity required for this medicine category"}
	ErrInvalidQuantity     = &Error{Kind: KindInvalidQuantity, Message: "quantity must be greater than zero"}
	ErrNegativeAmount      = &Error{Kind: KindNegativeAmount, Message: "amount must not be negative"}
	ErrNegativeFinalAmount = &Error{Kind: KindNegativeFinalAmount, Message: "final amount must not be negative"}
	ErrVoidInvoice         = &Error{Kind: KindVoidInvoice, Message: "invoice is void"}
)

// Wrap returns an error of base's kind with extra detail appended to the message.
func Wrap(base *Error, format string, args ...any) error {
	return &Error{Kind: base.Kind, Message: base.Message + ": " + fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// UserSafeMessage returns a message that may be shown to API clients.
func UserSafeMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
