package ownership

import (
	"errors"
	"net/http"
)

// Stable error codes surfaced to HTTP callers.
const (
	CodeBadRequest = "bad_request"
	CodeNotFound   = "not_found"
	CodeGone       = "gone"
	CodeConflict   = "conflict"
	CodeForbidden  = "forbidden"
	CodeInternal   = "internal"
)

// RuleError is a business-rule violation. The ownership service never
// swallows one; every violation reaches the caller typed.
type RuleError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RuleError) Error() string { return e.Code + ": " + e.Message }

func (e *RuleError) HTTPStatus() int {
	switch e.Code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeGone:
		return http.StatusGone
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// AsRuleError unwraps err to a RuleError if one is in the chain.
func AsRuleError(err error) (*RuleError, bool) {
	var re *RuleError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func badRequest(message string) *RuleError { return &RuleError{Code: CodeBadRequest, Message: message} }
func notFound(message string) *RuleError   { return &RuleError{Code: CodeNotFound, Message: message} }
func gone(message string) *RuleError       { return &RuleError{Code: CodeGone, Message: message} }
func conflict(message string) *RuleError   { return &RuleError{Code: CodeConflict, Message: message} }
func forbidden(message string) *RuleError  { return &RuleError{Code: CodeForbidden, Message: message} }
