// Package errors provides structured error types for collabd.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for collabd.
const (
	// Validation errors
	CodeValidation Code = "VALIDATION_FAILED"
	CodeDuplicate  Code = "DUPLICATE_RESOURCE"

	// Auth errors
	CodeAuthRequired Code = "AUTH_REQUIRED"
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeAccessDenied Code = "ACCESS_DENIED"

	// Lookup errors
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeProjectNotFound   Code = "PROJECT_NOT_FOUND"
	CodeTaskNotFound      Code = "TASK_NOT_FOUND"
	CodeAgentNotFound     Code = "AGENT_NOT_FOUND"
	CodeExecutionNotFound Code = "EXECUTION_NOT_FOUND"
	CodeFileNotFound      Code = "FILE_NOT_FOUND"

	// Upload errors
	CodeFileTooLarge   Code = "FILE_TOO_LARGE"
	CodeFileTypeDenied Code = "FILE_TYPE_DENIED"

	// Internal errors
	CodeInternal Code = "INTERNAL_ERROR"
)

// Category groups error codes for HTTP status mapping.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryBadRequest
	CategoryUnauthorized
	CategoryForbidden
	CategoryNotFound
	CategoryInternal
)

// codeCategories maps error codes to their categories.
var codeCategories = map[Code]Category{
	CodeValidation:        CategoryBadRequest,
	CodeDuplicate:         CategoryBadRequest,
	CodeAuthRequired:      CategoryUnauthorized,
	CodeTokenInvalid:      CategoryUnauthorized,
	CodeAccessDenied:      CategoryForbidden,
	CodeUserNotFound:      CategoryNotFound,
	CodeProjectNotFound:   CategoryNotFound,
	CodeTaskNotFound:      CategoryNotFound,
	CodeAgentNotFound:     CategoryNotFound,
	CodeExecutionNotFound: CategoryNotFound,
	CodeFileNotFound:      CategoryNotFound,
	CodeFileTooLarge:      CategoryBadRequest,
	CodeFileTypeDenied:    CategoryBadRequest,
	CodeInternal:          CategoryInternal,
}

// HTTPStatus returns the HTTP status code for a category.
func (c Category) HTTPStatus() int {
	switch c {
	case CategoryBadRequest:
		return 400
	case CategoryUnauthorized:
		return 401
	case CategoryForbidden:
		return 403
	case CategoryNotFound:
		return 404
	default:
		return 500
	}
}

// PlatformError is the structured error type for collabd.
type PlatformError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *PlatformError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// Category returns the error category for HTTP status mapping.
func (e *PlatformError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *PlatformError) HTTPStatus() int {
	return e.Category().HTTPStatus()
}

// Is reports whether target is a PlatformError with the same code.
func (e *PlatformError) Is(target error) bool {
	t, ok := target.(*PlatformError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *PlatformError) WithCause(err error) *PlatformError {
	return &PlatformError{
		Code:  e.Code,
		What:  e.What,
		Why:   e.Why,
		Cause: err,
	}
}

// --- Error constructors ---

// ErrValidation returns an error for missing or malformed input.
func ErrValidation(what string) *PlatformError {
	return &PlatformError{
		Code: CodeValidation,
		What: what,
	}
}

// ErrDuplicate returns an error when a unique resource already exists.
func ErrDuplicate(resource string) *PlatformError {
	return &PlatformError{
		Code: CodeDuplicate,
		What: fmt.Sprintf("%s already exists", resource),
	}
}

// ErrAuthRequired returns an error when no bearer token was supplied.
func ErrAuthRequired() *PlatformError {
	return &PlatformError{
		Code: CodeAuthRequired,
		What: "access token required",
	}
}

// ErrTokenInvalid returns an error for an invalid or expired token.
func ErrTokenInvalid() *PlatformError {
	return &PlatformError{
		Code: CodeTokenInvalid,
		What: "invalid or expired token",
	}
}

// ErrAccessDenied returns an error when the user lacks project access.
func ErrAccessDenied(projectID string) *PlatformError {
	return &PlatformError{
		Code: CodeAccessDenied,
		What: "access denied to this project",
		Why:  fmt.Sprintf("user is neither owner nor collaborator of project %s", projectID),
	}
}

// ErrUserNotFound returns an error when a user doesn't exist or is inactive.
func ErrUserNotFound(id string) *PlatformError {
	return &PlatformError{
		Code: CodeUserNotFound,
		What: fmt.Sprintf("user %s not found or inactive", id),
	}
}

// ErrProjectNotFound returns an error when a project doesn't exist.
func ErrProjectNotFound(id string) *PlatformError {
	return &PlatformError{
		Code: CodeProjectNotFound,
		What: fmt.Sprintf("project %s not found", id),
	}
}

// ErrTaskNotFound returns an error when a task doesn't exist.
func ErrTaskNotFound(id string) *PlatformError {
	return &PlatformError{
		Code: CodeTaskNotFound,
		What: fmt.Sprintf("task %s not found", id),
	}
}

// ErrAgentNotFound returns an error when an agent doesn't exist.
func ErrAgentNotFound(id string) *PlatformError {
	return &PlatformError{
		Code: CodeAgentNotFound,
		What: fmt.Sprintf("agent %s not found", id),
	}
}

// ErrFileNotFound returns an error when an uploaded file doesn't exist.
func ErrFileNotFound(id string) *PlatformError {
	return &PlatformError{
		Code: CodeFileNotFound,
		What: fmt.Sprintf("file %s not found", id),
	}
}

// ErrFileTooLarge returns an error when an upload exceeds the size limit.
func ErrFileTooLarge(limit int64) *PlatformError {
	return &PlatformError{
		Code: CodeFileTooLarge,
		What: "uploaded file exceeds size limit",
		Why:  fmt.Sprintf("limit is %d bytes", limit),
	}
}

// ErrFileTypeDenied returns an error for a disallowed MIME type.
func ErrFileTypeDenied(mimeType string) *PlatformError {
	return &PlatformError{
		Code: CodeFileTypeDenied,
		What: fmt.Sprintf("file type %s not allowed", mimeType),
	}
}

// ErrInternal wraps an unexpected failure.
func ErrInternal(what string, cause error) *PlatformError {
	return &PlatformError{
		Code:  CodeInternal,
		What:  what,
		Cause: cause,
	}
}

// AsPlatformError attempts to convert an error to a PlatformError.
// Returns nil if the error is not a PlatformError.
func AsPlatformError(err error) *PlatformError {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}
