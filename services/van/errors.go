package van

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorDetail is one entry of a VAN error response
type ErrorDetail struct {
	Code       string   `json:"code"`
	Text       string   `json:"text"`
	Properties []string `json:"properties,omitempty"`
}

func (d ErrorDetail) String() string {
	s := d.Text
	if d.Code != "" {
		s = d.Code + ": " + s
	}
	if len(d.Properties) > 0 {
		s += " (" + strings.Join(d.Properties, ", ") + ")"
	}
	return s
}

// errorResponse is the body VAN sends with 4xx responses
type errorResponse struct {
	Errors []ErrorDetail `json:"errors"`
}

// APIError is a failed VAN call
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Details    []ErrorDetail
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "van %s %s", e.Method, e.Path)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " returned %d", e.StatusCode)
	}
	for _, d := range e.Details {
		b.WriteString(": ")
		b.WriteString(d.String())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap implements error unwrapping
func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the call may succeed if repeated
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// Codes returns the VAN error codes
func (e *APIError) Codes() []string {
	return detailCodes(e.Details)
}

// retryableStatus reports whether a status code is worth retrying
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func detailCodes(details []ErrorDetail) []string {
	codes := make([]string, 0, len(details))
	for _, d := range details {
		if d.Code != "" {
			codes = append(codes, d.Code)
		}
	}
	return codes
}
