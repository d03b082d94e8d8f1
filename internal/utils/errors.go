package utils

import (
	"context"
	"errors"
	"fmt"

	"github.com/dl-alexandre/drivesync/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// Auth errors (10-19)
	ExitAuthRequired      = 10
	ExitAuthExpired       = 11
	ExitScopeInsufficient = 13
	// Remote errors (20-29)
	ExitFileNotFound          = 20
	ExitPermissionDenied      = 21
	ExitQuotaExceeded         = 22
	ExitDestinationUnresolved = 25
	ExitListingFailed         = 26
	ExitTransferFailed        = 27
	// Network errors (30-39)
	ExitNetworkError = 30
	ExitTimeout      = 31
	ExitRateLimited  = 32
	// Validation errors (40-49)
	ExitInvalidArgument = 40
	ExitInvalidPath     = 41
	// Policy errors (50-59)
	ExitPolicyViolation   = 50
	ExitSharingRestricted = 51
	// Unknown
	ExitUnknown = 99
	// Interrupted by the user, as shells report SIGINT
	ExitCancelled = 130
)

// Error codes (tool-owned, stable)
const (
	ErrCodeAuthRequired          = "AUTH_REQUIRED"
	ErrCodeAuthExpired           = "AUTH_EXPIRED"
	ErrCodeAuthClientMissing     = "AUTH_CLIENT_MISSING"
	ErrCodeScopeInsufficient     = "SCOPE_INSUFFICIENT"
	ErrCodeFileNotFound          = "FILE_NOT_FOUND"
	ErrCodePermissionDenied      = "PERMISSION_DENIED"
	ErrCodeQuotaExceeded         = "QUOTA_EXCEEDED"
	ErrCodeDestinationUnresolved = "DESTINATION_UNRESOLVED"
	ErrCodeListingFailed         = "LISTING_FAILED"
	ErrCodeTransferFailed        = "TRANSFER_FAILED"
	ErrCodeNetworkError          = "NETWORK_ERROR"
	ErrCodeTimeout               = "TIMEOUT"
	ErrCodeRateLimited           = "RATE_LIMITED"
	ErrCodeInvalidArgument       = "INVALID_ARGUMENT"
	ErrCodeInvalidPath           = "INVALID_PATH"
	ErrCodePolicyViolation       = "POLICY_VIOLATION"
	ErrCodeSharingRestricted     = "SHARING_RESTRICTED"
	ErrCodeCancelled             = "CANCELLED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeUnknown               = "UNKNOWN"
)

// CLIErrorBuilder helps construct CLIError instances
type CLIErrorBuilder struct {
	err types.CLIError
}

// NewCLIError creates a new error builder
func NewCLIError(code, message string) *CLIErrorBuilder {
	return &CLIErrorBuilder{
		err: types.CLIError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *CLIErrorBuilder) WithHTTPStatus(status int) *CLIErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *CLIErrorBuilder) WithDriveReason(reason string) *CLIErrorBuilder {
	b.err.DriveReason = reason
	return b
}

func (b *CLIErrorBuilder) WithRetryable(retryable bool) *CLIErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *CLIErrorBuilder) WithContext(key string, value interface{}) *CLIErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *CLIErrorBuilder) Build() types.CLIError {
	return b.err
}

// GetExitCode returns the exit code for an error code
func GetExitCode(errorCode string) int {
	mapping := map[string]int{
		ErrCodeAuthRequired:          ExitAuthRequired,
		ErrCodeAuthExpired:           ExitAuthExpired,
		ErrCodeAuthClientMissing:     ExitAuthRequired,
		ErrCodeScopeInsufficient:     ExitScopeInsufficient,
		ErrCodeFileNotFound:          ExitFileNotFound,
		ErrCodePermissionDenied:      ExitPermissionDenied,
		ErrCodeQuotaExceeded:         ExitQuotaExceeded,
		ErrCodeDestinationUnresolved: ExitDestinationUnresolved,
		ErrCodeListingFailed:         ExitListingFailed,
		ErrCodeTransferFailed:        ExitTransferFailed,
		ErrCodeNetworkError:          ExitNetworkError,
		ErrCodeTimeout:               ExitTimeout,
		ErrCodeRateLimited:           ExitRateLimited,
		ErrCodeInvalidArgument:       ExitInvalidArgument,
		ErrCodeInvalidPath:           ExitInvalidPath,
		ErrCodePolicyViolation:       ExitPolicyViolation,
		ErrCodeSharingRestricted:     ExitSharingRestricted,
		ErrCodeCancelled:             ExitCancelled,
	}
	if code, ok := mapping[errorCode]; ok {
		return code
	}
	return ExitUnknown
}

// AppError is a custom error type that carries CLI error info
type AppError struct {
	CLIError types.CLIError
	cause    error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.CLIError.Code, e.CLIError.Message)
}

// Unwrap exposes the underlying cause, if any
func (e *AppError) Unwrap() error {
	return e.cause
}

// NewAppError creates an AppError from a CLIError
func NewAppError(cliErr types.CLIError) *AppError {
	return &AppError{CLIError: cliErr}
}

// WrapAppError creates an AppError that keeps cause in the error chain
func WrapAppError(cliErr types.CLIError, cause error) *AppError {
	return &AppError{CLIError: cliErr, cause: cause}
}

// ErrorCode returns the tool error code carried by err, or ErrCodeUnknown
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	if IsCancelled(err) {
		return ErrCodeCancelled
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError.Code
	}
	return ErrCodeUnknown
}

// IsCancelled reports whether err represents a user-initiated stop
func IsCancelled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.CLIError.Code == ErrCodeCancelled
}

// AsCLIError converts any error into a CLIError envelope
func AsCLIError(err error) types.CLIError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.CLIError
	}
	if IsCancelled(err) {
		return NewCLIError(ErrCodeCancelled, "Synchronization manually cancelled.").Build()
	}
	return NewCLIError(ErrCodeUnknown, err.Error()).Build()
}

// CheckContext returns nil while ctx is live. Once ctx is done it returns a
// CANCELLED error, or TIMEOUT when the deadline passed.
func CheckContext(ctx context.Context) error {
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return WrapAppError(NewCLIError(ErrCodeTimeout, "Operation timed out").Build(), err)
	default:
		return WrapAppError(NewCLIError(ErrCodeCancelled, "Synchronization manually cancelled.").Build(), err)
	}
}
