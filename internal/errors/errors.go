package errors

import (
	"fmt"
	"net/http"

	"github.com/cert-registry/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents input validation errors (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents not found errors
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents duplicate-creation and stale-write errors
	CategoryConflict ErrorCategory = "conflict"
	// CategoryPrecondition represents state-machine precondition failures
	CategoryPrecondition ErrorCategory = "precondition"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
	// CategoryDatabase represents database errors
	CategoryDatabase ErrorCategory = "database"
	// CategoryCache represents cache errors
	CategoryCache ErrorCategory = "cache"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
	// Retryable marks transient failures that callers should resubmit,
	// such as a lost optimistic-concurrency race.
	Retryable bool
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// Authorization errors

// NewUnauthorizedError creates an unauthorized error for a caller lacking
// the required role.
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

// NewUnauthorizedCertifierError creates an error for an identity not in
// the accredited certifier set.
func NewUnauthorizedCertifierError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "UNAUTHORIZED_CERTIFIER",
		Message:    fmt.Sprintf("certifier is not accredited: %s", certifier),
		Details: map[string]interface{}{
			"certifier": certifier,
		},
	}
}

// NewNotAssignedCertifierError creates an error for a certifier resolving
// a request assigned to someone else. There is no admin override.
func NewNotAssignedCertifierError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "NOT_ASSIGNED_CERTIFIER",
		Message:    "only the assigned certifier can resolve this request",
		Details: map[string]interface{}{
			"certifier": certifier,
		},
	}
}

// NewNotOwnerError creates an error for a transfer attempted by a
// non-owner.
func NewNotOwnerError(caller string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusForbidden,
		Code:       "NOT_OWNER",
		Message:    "caller is not the owner of this certificate",
		Details: map[string]interface{}{
			"caller": caller,
		},
	}
}

// Duplicate-creation errors

// NewCertifierExistsError creates an error for re-adding a present
// certifier.
func NewCertifierExistsError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "CERTIFIER_ALREADY_EXISTS",
		Message:    fmt.Sprintf("certifier already accredited: %s", certifier),
		Details: map[string]interface{}{
			"certifier": certifier,
		},
	}
}

// NewSerialExistsError creates an error for issuing a certificate at an
// occupied serial number.
func NewSerialExistsError(serialNumber string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "SERIAL_NUMBER_ALREADY_EXISTS",
		Message:    fmt.Sprintf("a certificate already exists for serial number: %s", serialNumber),
		Details: map[string]interface{}{
			"serialNumber": serialNumber,
		},
	}
}

// NewRequestExistsError creates an error for submitting a second request
// for the same serial number.
func NewRequestExistsError(serialNumber string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "REQUEST_ALREADY_EXISTS",
		Message:    fmt.Sprintf("a certification request already exists for serial number: %s", serialNumber),
		Details: map[string]interface{}{
			"serialNumber": serialNumber,
		},
	}
}

// NewAlreadyInitializedError creates an error for re-initializing the
// authority singleton.
func NewAlreadyInitializedError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "ALREADY_INITIALIZED",
		Message:    "certification authority is already initialized",
	}
}

// Capacity and precondition errors

// NewMaxCertificatesError creates an error for an owner at the
// certificate cap.
func NewMaxCertificatesError(owner string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "MAX_CERTIFICATES_REACHED",
		Message:    fmt.Sprintf("owner has reached the limit of %d certificates", types.MaxCertificates),
		Details: map[string]interface{}{
			"owner": owner,
			"limit": types.MaxCertificates,
		},
	}
}

// NewMaxCertifiersError creates an error for a full certifier set.
func NewMaxCertifiersError() *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "MAX_CERTIFIERS_REACHED",
		Message:    fmt.Sprintf("the limit of %d accredited certifiers is reached", types.MaxCertifiers),
		Details: map[string]interface{}{
			"limit": types.MaxCertifiers,
		},
	}
}

// NewCertifierAtCapacityError creates an error for a certifier whose
// current load is at the concurrent-request cap.
func NewCertifierAtCapacityError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "CERTIFIER_AT_CAPACITY",
		Message:    fmt.Sprintf("certifier has reached the maximum of %d concurrent requests", types.MaxConcurrentRequests),
		Details: map[string]interface{}{
			"certifier": certifier,
			"limit":     types.MaxConcurrentRequests,
		},
	}
}

// NewCertifierNotActiveError creates an error for a deactivated
// certifier targeted by a request.
func NewCertifierNotActiveError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "CERTIFIER_NOT_ACTIVE",
		Message:    fmt.Sprintf("certifier is not active: %s", certifier),
		Details: map[string]interface{}{
			"certifier": certifier,
		},
	}
}

// NewCertificateLockedError creates an error for a transfer inside the
// post-acquisition lock window.
func NewCertificateLockedError(serialNumber string, lockedUntil int64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "CERTIFICATE_LOCKED",
		Message:    "certificate is locked and cannot be transferred yet",
		Details: map[string]interface{}{
			"serialNumber": serialNumber,
			"lockedUntil":  lockedUntil,
		},
	}
}

// NewCooldownError creates an error for an action inside a user's
// cooldown window.
func NewCooldownError(identity string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "COOLDOWN_NOT_ELAPSED",
		Message:    "the cooldown period since the last action has not elapsed",
		Details: map[string]interface{}{
			"identity": identity,
		},
	}
}

// NewRequestNotPendingError creates an error for resolving an
// already-resolved request.
func NewRequestNotPendingError(serialNumber string, status types.RequestStatus) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusConflict,
		Code:       "REQUEST_NOT_PENDING",
		Message:    fmt.Sprintf("request for %s is already %s", serialNumber, status),
		Details: map[string]interface{}{
			"serialNumber": serialNumber,
			"status":       string(status),
		},
	}
}

// NewInsufficientFundsError creates an error for a payer who cannot
// cover a fee.
func NewInsufficientFundsError(identity string, required, available uint64) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryPrecondition,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "INSUFFICIENT_FUNDS",
		Message:    fmt.Sprintf("insufficient funds: required %d, available %d", required, available),
		Details: map[string]interface{}{
			"identity":  identity,
			"required":  required,
			"available": available,
		},
	}
}

// Validation and lookup errors

// NewInvalidParameterError creates an invalid parameter error
func NewInvalidParameterError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewStringTooLongError creates an error for a field exceeding its fixed
// layout limit.
func NewStringTooLongError(field string, limit int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "STRING_TOO_LONG",
		Message:    fmt.Sprintf("%s is too long (max %d characters)", field, limit),
		Details: map[string]interface{}{
			"field": field,
			"limit": limit,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewCertifierNotFoundError creates an error for removing an absent
// certifier.
func NewCertifierNotFoundError(certifier string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "CERTIFIER_NOT_FOUND",
		Message:    fmt.Sprintf("certifier is not in the accredited set: %s", certifier),
		Details: map[string]interface{}{
			"certifier": certifier,
		},
	}
}

// NewWrongAccountTypeError creates an error for reading a record whose
// discriminator does not match the expected type.
func NewWrongAccountTypeError(address string, expected string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusConflict,
		Code:       "WRONG_ACCOUNT_TYPE",
		Message:    fmt.Sprintf("record at %s is not a %s", address, expected),
		Details: map[string]interface{}{
			"address":  address,
			"expected": expected,
		},
	}
}

// System errors

// NewConflictError creates a retryable error for a lost
// optimistic-concurrency race. Callers resubmit the transaction.
func NewConflictError(resource string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "WRITE_CONFLICT",
		Message:    fmt.Sprintf("concurrent modification of %s, resubmit the transaction", resource),
		Retryable:  true,
		Details: map[string]interface{}{
			"resource": resource,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Cause:      cause,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Retryable:  true,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewCacheError creates a cache error
func NewCacheError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryCache,
		StatusCode: http.StatusInternalServerError,
		Code:       "CACHE_ERROR",
		Message:    fmt.Sprintf("cache error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	// If already categorized, return as-is
	if catErr, ok := err.(*CategorizedError); ok {
		return catErr
	}

	// If it's a ServiceError, wrap it preserving the code
	if svcErr, ok := err.(*types.ServiceError); ok {
		return &CategorizedError{
			Category:   CategoryValidation,
			StatusCode: http.StatusBadRequest,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	// Default to internal error
	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error should be resubmitted
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.Retryable
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}
	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
