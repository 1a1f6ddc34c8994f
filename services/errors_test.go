package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeExternal, "VAN unavailable", baseErr)

	assert.Equal(t, ErrorTypeExternal, domainErr.Type)
	assert.Equal(t, "VAN unavailable", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeDuplicateRisk,
				Message: "mirror insert failed",
				Err:     errors.New("db error"),
			},
			wantMsg: "duplicate_risk: mirror insert failed (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeMappingGap,
				Message: "campaign 99 is not mapped",
			},
			wantMsg: "mapping_gap: campaign 99 is not mapped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    NewDomainError(ErrorTypeMappingGap, "campaign 4 unmapped", nil),
			target: ErrMappingGap,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrCreationFailed,
			want:   false,
		},
		{
			name:   "wrapped domain error",
			err:    fmt.Errorf("event 12: %w", NewDomainError(ErrorTypeCreationFailed, "rejected", nil)),
			target: ErrCreationFailed,
			want:   true,
		},
		{
			name:   "plain error",
			err:    errors.New("boom"),
			target: ErrInternal,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeDuplicateRisk, "not mirrored", nil).
		WithDetail("van_event_id", 9001).
		WithDetail("ak_event_id", "48213")

	require.Len(t, err.Details, 2)
	assert.Equal(t, 9001, GetErrorDetails(err)["van_event_id"])

	bare := &DomainError{Type: ErrorTypeInternal}
	bare.WithDetail("k", "v")
	assert.Equal(t, "v", bare.Details["k"])
}

func TestErrorTypeHelpers(t *testing.T) {
	wrapped := fmt.Errorf("region NY: %w", WrapError(ErrorTypeMappingGap, "campaign 4", nil))

	assert.True(t, IsMappingGap(wrapped))
	assert.False(t, IsCreationFailed(wrapped))
	assert.True(t, IsCreationFailed(NewDomainError(ErrorTypeCreationFailed, "x", nil)))
	assert.True(t, IsDuplicateRisk(NewDomainError(ErrorTypeDuplicateRisk, "x", nil)))

	assert.Equal(t, ErrorTypeInternal, GetErrorType(WrapInternal("db", errors.New("x"))))
	assert.Equal(t, ErrorTypeExternal, GetErrorType(WrapExternal("van", errors.New("x"))))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
