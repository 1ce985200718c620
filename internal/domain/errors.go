package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeMalformedInput  = "MALFORMED_INPUT"
	ErrCodeTransientOracle = "TRANSIENT_ORACLE"
	ErrCodeOracleContract  = "ORACLE_CONTRACT"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrInvalidMaxResults    = NewDomainError(ErrCodeValidation, "max results must be positive")
	ErrInvalidTemperature   = NewDomainError(ErrCodeValidation, "temperature must be between 0 and 2")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Malformed input errors (single-item drops, never batch aborts)
var (
	ErrMalformedChunkEvent = NewDomainError(ErrCodeMalformedInput, "chunk event missing required fields")
	ErrMissingPlaceholder  = NewDomainError(ErrCodeMalformedInput, "prompt template missing required placeholder")
)

// Not found errors
var (
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk metadata not found")
	ErrTemplateNotFound = NewDomainError(ErrCodeNotFound, "prompt template not found")
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Oracle contract violations (bug signals, not retryable)
var (
	ErrVectorCountMismatch = NewDomainError(ErrCodeOracleContract, "embedding count does not match input count")
)

// Pipeline state errors
var (
	ErrAccumulatorClosed = NewDomainError(ErrCodeUnavailable, "accumulator is closed")
	ErrEmptyBatch        = NewDomainError(ErrCodeValidation, "batch cannot be empty")
)
