package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error that knows its HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by code so sentinel comparisons survive Clone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrUnavailable  = New("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service unavailable")

	ErrCampNotFound         = New("CAMP_NOT_FOUND", http.StatusNotFound, "Camp not found")
	ErrCampFull             = New("CAMP_FULL", http.StatusBadRequest, "Camp is full")
	ErrAlreadyRegistered    = New("ALREADY_REGISTERED", http.StatusBadRequest, "Already registered for this camp")
	ErrRegistrationNotFound = New("REGISTRATION_NOT_FOUND", http.StatusNotFound, "Registration not found")
	ErrNotApproved          = New("NOT_APPROVED", http.StatusBadRequest, "Registration is not approved")
	ErrInvalidTransition    = New("INVALID_TRANSITION", http.StatusBadRequest, "invalid status transition")
	ErrPaymentNotFound      = New("PAYMENT_NOT_FOUND", http.StatusNotFound, "Payment not found")
	ErrPaymentExists        = New("PAYMENT_EXISTS", http.StatusBadRequest, "Payment already exists for this registration")
	ErrInvalidPromo         = New("INVALID_PROMO", http.StatusBadRequest, "Invalid promo code")
	ErrUserNotFound         = New("USER_NOT_FOUND", http.StatusNotFound, "User not found")
	ErrUserBanned           = New("USER_BANNED", http.StatusForbidden, "Account is banned")
	ErrInvalidOTP           = New("INVALID_OTP", http.StatusBadRequest, "Invalid or expired OTP")
	ErrEmailTaken           = New("EMAIL_TAKEN", http.StatusBadRequest, "Email already registered")
	ErrAdminProtected       = New("ADMIN_PROTECTED", http.StatusBadRequest, "Admin accounts cannot be banned or deleted")
	ErrInvalidSlug          = New("INVALID_SLUG", http.StatusBadRequest, "Camp name must contain letters or digits")
	ErrReviewNotAllowed     = New("REVIEW_NOT_ALLOWED", http.StatusForbidden, "Only attendees can review this camp")
	ErrAlreadyReviewed      = New("ALREADY_REVIEWED", http.StatusBadRequest, "You have already reviewed this camp")
	ErrSlipRequired         = New("SLIP_REQUIRED", http.StatusBadRequest, "Payment has no slip attached")
	ErrPromoCodeTaken       = New("PROMO_CODE_TAKEN", http.StatusBadRequest, "Promo code already exists")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Validation returns a 400 error with the given message.
func Validation(message string) *Error {
	return Clone(ErrValidation, message)
}
