package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfiguration  ErrorType = "configuration"
	ErrorTypeMappingGap     ErrorType = "mapping_gap"
	ErrorTypeCreationFailed ErrorType = "creation_failed"
	ErrorTypeDuplicateRisk  ErrorType = "duplicate_risk"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeExternal       ErrorType = "external"
	ErrorTypeInternal       ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is matching by type

var (
	ErrConfiguration  = NewDomainError(ErrorTypeConfiguration, "configuration error", nil)
	ErrMappingGap     = NewDomainError(ErrorTypeMappingGap, "campaign has no event type mapping", nil)
	ErrCreationFailed = NewDomainError(ErrorTypeCreationFailed, "VAN rejected event creation", nil)
	ErrDuplicateRisk  = NewDomainError(ErrorTypeDuplicateRisk, "event created in VAN but not mirrored", nil)
	ErrValidation     = NewDomainError(ErrorTypeValidation, "invalid payload", nil)
	ErrExternal       = NewDomainError(ErrorTypeExternal, "VAN request failed", nil)
	ErrInternal       = NewDomainError(ErrorTypeInternal, "internal error", nil)
)

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// IsMappingGap checks if an error is a missing event type mapping
func IsMappingGap(err error) bool {
	return GetErrorType(err) == ErrorTypeMappingGap
}

// IsCreationFailed checks if an error is a VAN creation rejection
func IsCreationFailed(err error) bool {
	return GetErrorType(err) == ErrorTypeCreationFailed
}

// IsDuplicateRisk checks if an error left a VAN event without a mirror row
func IsDuplicateRisk(err error) bool {
	return GetErrorType(err) == ErrorTypeDuplicateRisk
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external VAN error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
