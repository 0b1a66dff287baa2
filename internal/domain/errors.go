package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrorCodePCIViolation            ErrorCode = "VALIDATION_PCI_VIOLATION"

	// Not-Found Errors (NOT_FOUND_*)
	ErrorCodeCustomerNotFound      ErrorCode = "NOT_FOUND_CUSTOMER"
	ErrorCodePaymentMethodNotFound ErrorCode = "NOT_FOUND_PAYMENT_METHOD"
	ErrorCodeSubscriptionNotFound  ErrorCode = "NOT_FOUND_SUBSCRIPTION"
	ErrorCodeChargeNotFound        ErrorCode = "NOT_FOUND_CHARGE"
	ErrorCodeRefundNotFound        ErrorCode = "NOT_FOUND_REFUND"
	ErrorCodeCouponNotFound        ErrorCode = "NOT_FOUND_COUPON"
	ErrorCodeNotFound              ErrorCode = "NOT_FOUND"

	// Conflict Errors (CONFLICT_*)
	ErrorCodeConflict            ErrorCode = "CONFLICT"
	ErrorCodeIdempotencyConflict ErrorCode = "CONFLICT_IDEMPOTENCY_KEY"
	ErrorCodePrecondition        ErrorCode = "CONFLICT_PRECONDITION"

	// Auth Errors (AUTH_*)
	ErrorCodeUnauthorized      ErrorCode = "AUTH_UNAUTHORIZED"
	ErrorCodeForbidden         ErrorCode = "AUTH_FORBIDDEN"
	ErrorCodeAppMismatch       ErrorCode = "AUTH_APP_MISMATCH"
	ErrorCodeInvalidSignature  ErrorCode = "AUTH_INVALID_SIGNATURE"
	ErrorCodeStaleTimestamp    ErrorCode = "AUTH_STALE_TIMESTAMP"
	ErrorCodeMissingCredential ErrorCode = "AUTH_MISSING_CREDENTIAL"

	// Payment Processor Errors (PSP_*)
	ErrorCodeProcessorError    ErrorCode = "PSP_ERROR"
	ErrorCodeProcessorTimeout  ErrorCode = "PSP_TIMEOUT"
	ErrorCodeProcessorDeclined ErrorCode = "PSP_DECLINED"

	// Backpressure (BACKPRESSURE_*)
	ErrorCodeBackpressure ErrorCode = "BACKPRESSURE"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// FieldError describes a single invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string

	// ProcessorCode and ProcessorMessage carry the PSP's own error data for
	// PSP_* errors. Both are safe to expose to callers.
	ProcessorCode    string
	ProcessorMessage string

	// FieldErrors carries per-field validation failures.
	FieldErrors []FieldError
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithFieldError appends a per-field validation failure
func (e *DomainError) WithFieldError(field, message string) *DomainError {
	e.FieldErrors = append(e.FieldErrors, FieldError{Field: field, Message: message})
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewProcessorError creates a payment-processor error carrying the PSP's
// error code and message
func NewProcessorError(pspCode, pspMessage string) *DomainError {
	return &DomainError{
		Code:             ErrorCodeProcessorError,
		Message:          "payment processor error",
		ProcessorCode:    pspCode,
		ProcessorMessage: pspMessage,
	}
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, message string) *DomainError {
	e := NewDomainError(ErrorCodeValidationFailed, "validation failed")
	return e.WithFieldError(field, message)
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeNotFound ||
		code == ErrorCodeCustomerNotFound ||
		code == ErrorCodePaymentMethodNotFound ||
		code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodeChargeNotFound ||
		code == ErrorCodeRefundNotFound ||
		code == ErrorCodeCouponNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField ||
		code == ErrorCodePCIViolation
}

// IsConflictError checks if an error is a conflict or unmet precondition
func IsConflictError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeConflict ||
		code == ErrorCodeIdempotencyConflict ||
		code == ErrorCodePrecondition
}

// IsProcessorError checks if an error originated at the payment processor
func IsProcessorError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeProcessorError ||
		code == ErrorCodeProcessorTimeout ||
		code == ErrorCodeProcessorDeclined
}

// Structured error instances
var (
	ErrCustomerNotFound      = NewDomainError(ErrorCodeCustomerNotFound, "Customer not found")
	ErrPaymentMethodNotFound = NewDomainError(ErrorCodePaymentMethodNotFound, "Payment method not found")
	ErrSubscriptionNotFound  = NewDomainError(ErrorCodeSubscriptionNotFound, "Subscription not found")
	ErrChargeNotFound        = NewDomainError(ErrorCodeChargeNotFound, "Charge not found")
	ErrRefundNotFound        = NewDomainError(ErrorCodeRefundNotFound, "Refund not found")
	ErrCouponNotFound        = NewDomainError(ErrorCodeCouponNotFound, "Coupon not found")
	ErrDisputeNotFound       = NewDomainError(ErrorCodeNotFound, "Dispute not found")
	ErrWebhookNotFound       = NewDomainError(ErrorCodeNotFound, "Webhook event not found")

	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "amount_cents must be a positive integer")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrUnauthorized     = NewDomainError(ErrorCodeUnauthorized, "unauthorized")
	ErrForbidden        = NewDomainError(ErrorCodeForbidden, "access denied")
	ErrAppMismatch      = NewDomainError(ErrorCodeAppMismatch, "authenticated app does not match requested app_id")
	ErrInvalidSignature = NewDomainError(ErrorCodeInvalidSignature, "invalid signature")

	ErrIdempotencyConflict = NewDomainError(ErrorCodeIdempotencyConflict, "idempotency key reused with a different request payload")
	ErrConflict            = NewDomainError(ErrorCodeConflict, "resource conflict")

	ErrBackpressure = NewDomainError(ErrorCodeBackpressure, "too many in-flight processor requests")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
