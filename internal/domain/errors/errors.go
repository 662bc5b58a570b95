package errors

import (
	"errors"
	"net/http"
)

// Kind classifies a domain error by what the caller should do about it.
type Kind string

const (
	KindUnknown       Kind = "UNKNOWN"
	KindValidation    Kind = "VALIDATION"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindLiveness      Kind = "LIVENESS"
	KindAuthorization Kind = "AUTHORIZATION"
	KindIntegrity     Kind = "INTEGRITY"
	KindNotFound      Kind = "NOT_FOUND"
)

// Validation errors
var (
	ErrInvalidName        = errors.New("name must be 1-32 bytes")
	ErrInvalidConfig      = errors.New("invalid configuration value")
	ErrInvalidWindow      = errors.New("rate limit window must be 60, 3600, or 86400 seconds")
	ErrInvalidExpiry      = errors.New("invalid expiry timestamp (must be in the future)")
	ErrInvalidPermissions = errors.New("permission bitmask contains invalid bits")
	ErrInvalidKeyHash     = errors.New("key hash must be a 32-byte SHA-256 digest")
)

// State-conflict errors
var (
	ErrAlreadyRevoked = errors.New("key is already revoked")
	ErrMaxKeysReached = errors.New("maximum number of API keys reached")
	ErrServiceExists  = errors.New("service already exists for this owner")
	ErrKeyExists      = errors.New("key hash already registered for this service")
	ErrAccountExists  = errors.New("account already exists")
)

// Liveness errors. Expected outcomes: deny the request.
var (
	ErrKeyRevoked              = errors.New("API key has been revoked")
	ErrKeyExpired              = errors.New("API key has expired")
	ErrRateLimitExceeded       = errors.New("rate limit exceeded for current window")
	ErrInsufficientPermissions = errors.New("key does not have the required permission")
)

// Authorization errors
var (
	ErrNotServiceOwner    = errors.New("caller is not the service owner")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Integrity errors
var (
	ErrOverflow = errors.New("arithmetic overflow")
)

// Not-found errors
var (
	ErrNotFound        = errors.New("resource not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrKeyNotFound     = errors.New("API key not found")
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindAuthorization, []error{ErrNotServiceOwner, ErrUnauthorized, ErrInvalidCredentials}},
	{KindValidation, []error{ErrInvalidName, ErrInvalidConfig, ErrInvalidWindow, ErrInvalidExpiry, ErrInvalidPermissions, ErrInvalidKeyHash}},
	{KindStateConflict, []error{ErrAlreadyRevoked, ErrMaxKeysReached, ErrServiceExists, ErrKeyExists, ErrAccountExists}},
	{KindLiveness, []error{ErrKeyRevoked, ErrKeyExpired, ErrRateLimitExceeded, ErrInsufficientPermissions}},
	{KindIntegrity, []error{ErrOverflow}},
	{KindNotFound, []error{ErrNotFound, ErrServiceNotFound, ErrKeyNotFound}},
}

// KindOf reports the kind of a (possibly wrapped) domain error.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindUnknown
}

// IsDenial is true for liveness errors: the key exists and the request is
// well-formed, but access is currently denied.
func IsDenial(err error) bool {
	return KindOf(err) == KindLiveness
}

// AppError represents application error with HTTP status
type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new app error
func NewAppError(status int, code, message string, err error) *AppError {
	return &AppError{
		Status:  status,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func BadRequest(message string) *AppError {
	return NewAppError(http.StatusBadRequest, "BAD_REQUEST", message, nil)
}

func Unauthorized(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, "UNAUTHORIZED", message, ErrUnauthorized)
}

func InternalError(err error) *AppError {
	return NewAppError(http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", err)
}

// codes maps each sentinel to a stable machine-readable code.
var codes = map[error]string{
	ErrInvalidName:             "INVALID_NAME",
	ErrInvalidConfig:           "INVALID_CONFIG",
	ErrInvalidWindow:           "INVALID_WINDOW",
	ErrInvalidExpiry:           "INVALID_EXPIRY",
	ErrInvalidPermissions:      "INVALID_PERMISSIONS",
	ErrInvalidKeyHash:          "INVALID_KEY_HASH",
	ErrAlreadyRevoked:          "ALREADY_REVOKED",
	ErrMaxKeysReached:          "MAX_KEYS_REACHED",
	ErrServiceExists:           "SERVICE_EXISTS",
	ErrKeyExists:               "KEY_EXISTS",
	ErrAccountExists:           "ACCOUNT_EXISTS",
	ErrKeyRevoked:              "KEY_REVOKED",
	ErrKeyExpired:              "KEY_EXPIRED",
	ErrRateLimitExceeded:       "RATE_LIMIT_EXCEEDED",
	ErrInsufficientPermissions: "INSUFFICIENT_PERMISSIONS",
	ErrNotServiceOwner:         "NOT_SERVICE_OWNER",
	ErrUnauthorized:            "UNAUTHORIZED",
	ErrInvalidCredentials:      "INVALID_CREDENTIALS",
	ErrOverflow:                "OVERFLOW",
	ErrNotFound:                "NOT_FOUND",
	ErrServiceNotFound:         "SERVICE_NOT_FOUND",
	ErrKeyNotFound:             "KEY_NOT_FOUND",
}

// CodeOf returns the stable code of a domain error, or INTERNAL_ERROR.
func CodeOf(err error) string {
	for target, code := range codes {
		if errors.Is(err, target) {
			return code
		}
	}
	return "INTERNAL_ERROR"
}

// FromDomain maps any error returned by the engine to an AppError.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	status := http.StatusInternalServerError
	switch KindOf(err) {
	case KindValidation:
		status = http.StatusBadRequest
	case KindStateConflict:
		status = http.StatusConflict
	case KindNotFound:
		status = http.StatusNotFound
	case KindAuthorization:
		status = http.StatusForbidden
		if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials) {
			status = http.StatusUnauthorized
		}
	case KindLiveness:
		status = http.StatusForbidden
		if errors.Is(err, ErrRateLimitExceeded) {
			status = http.StatusTooManyRequests
		}
	case KindIntegrity, KindUnknown:
		return InternalError(err)
	}

	return NewAppError(status, CodeOf(err), err.Error(), err)
}
