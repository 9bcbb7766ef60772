package errors

import "fmt"

// ErrorCode represents internal error codes for validator operations.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = 0

	// Intake-time errors
	ErrCodeInvalidArgument  ErrorCode = 1000
	ErrCodeTupleNotFound    ErrorCode = 1001
	ErrCodeKeyTooLarge      ErrorCode = 1002
	ErrCodeValueTooLarge    ErrorCode = 1003
	ErrCodeInvalidKey       ErrorCode = 1004
	ErrCodeChecksumFailed   ErrorCode = 1005

	// Validation-pipeline errors
	ErrCodeInternal           ErrorCode = 2000
	ErrCodeUnavailable        ErrorCode = 2001
	ErrCodeDiskFull           ErrorCode = 2002
	ErrCodeDiskThrottled      ErrorCode = 2003
	ErrCodeTxLogFailed        ErrorCode = 2004
	ErrCodeExclusionViolated  ErrorCode = 2005
	ErrCodeCBFOverflow        ErrorCode = 2006
	ErrCodePeerConflict       ErrorCode = 2007
	ErrCodePeerTimeout        ErrorCode = 2008
	ErrCodeResourceExhausted  ErrorCode = 2009
)

// ValidatorError is a structured error with a machine-readable code
// and context; the intake wire response does not carry this code.
// Shape mirrors the teacher's StorageError: Code, Message,
// Details, Cause.
type ValidatorError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

func (e *ValidatorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ValidatorError) Unwrap() error {
	return e.Cause
}

// NewValidatorError creates a new ValidatorError.
func NewValidatorError(code ErrorCode, message string, cause error) *ValidatorError {
	return &ValidatorError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error.
func (e *ValidatorError) WithDetail(key string, value interface{}) *ValidatorError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors.

func InvalidArgument(message string, cause error) *ValidatorError {
	return NewValidatorError(ErrCodeInvalidArgument, message, cause)
}

func TupleNotFound(key string) *ValidatorError {
	return NewValidatorError(ErrCodeTupleNotFound, fmt.Sprintf("tuple not found: %s", key), nil).
		WithDetail("key", key)
}

func KeyTooLarge(size, maxSize int) *ValidatorError {
	return NewValidatorError(ErrCodeKeyTooLarge, fmt.Sprintf("key size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ValueTooLarge(size, maxSize int) *ValidatorError {
	return NewValidatorError(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func InvalidKey(key, reason string) *ValidatorError {
	return NewValidatorError(ErrCodeInvalidKey, fmt.Sprintf("invalid key '%s': %s", key, reason), nil).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

func ChecksumFailed(expected, actual uint32) *ValidatorError {
	return NewValidatorError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func InternalError(message string, cause error) *ValidatorError {
	return NewValidatorError(ErrCodeInternal, message, cause)
}

func Unavailable(message string, cause error) *ValidatorError {
	return NewValidatorError(ErrCodeUnavailable, message, cause)
}

func DiskFull(usagePercent float64, availableBytes uint64) *ValidatorError {
	return NewValidatorError(ErrCodeDiskFull, fmt.Sprintf("disk full: %.2f%% used, %d bytes available", usagePercent, availableBytes), nil).
		WithDetail("usage_percent", usagePercent).
		WithDetail("available_bytes", availableBytes)
}

func DiskThrottled(usagePercent float64) *ValidatorError {
	return NewValidatorError(ErrCodeDiskThrottled, fmt.Sprintf("disk write throttled: %.2f%% used", usagePercent), nil).
		WithDetail("usage_percent", usagePercent)
}

func TxLogFailed(message string, cause error) *ValidatorError {
	return NewValidatorError(ErrCodeTxLogFailed, message, cause)
}

func ExclusionViolated(cts, eta, pi uint64) *ValidatorError {
	return NewValidatorError(ErrCodeExclusionViolated, fmt.Sprintf("exclusion window violated for cts %d: pi %d <= eta %d", cts, pi, eta), nil).
		WithDetail("cts", cts).
		WithDetail("eta", eta).
		WithDetail("pi", pi)
}

func CBFOverflow(key string) *ValidatorError {
	return NewValidatorError(ErrCodeCBFOverflow, fmt.Sprintf("counting bloom filter overflow for key %s", key), nil).
		WithDetail("key", key)
}

func PeerConflict(cts uint64) *ValidatorError {
	return NewValidatorError(ErrCodePeerConflict, fmt.Sprintf("peer views of cts %d could not be reconciled", cts), nil).
		WithDetail("cts", cts)
}

func PeerTimeout(cts uint64, shardID uint64) *ValidatorError {
	return NewValidatorError(ErrCodePeerTimeout, fmt.Sprintf("peer %d did not respond for cts %d", shardID, cts), nil).
		WithDetail("cts", cts).
		WithDetail("shard_id", shardID)
}

func ResourceExhausted(resource string, current, limit int) *ValidatorError {
	return NewValidatorError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsValidatorError checks if an error is a ValidatorError.
func IsValidatorError(err error) bool {
	_, ok := err.(*ValidatorError)
	return ok
}

// GetCode extracts the error code from an error.
func GetCode(err error) ErrorCode {
	if ve, ok := err.(*ValidatorError); ok {
		return ve.Code
	}
	return ErrCodeInternal
}
