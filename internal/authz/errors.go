package authz

import "fmt"

// AppError is a caller-facing error with a stable code and HTTP status.
// Store/transport errors are never wrapped into one of these: a store outage
// must not come back looking like a denial.
type AppError struct {
	Code    string `json:"code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// InvalidPermissionNameError signals a malformed permission-name string.
// This is a caller bug, distinct from a denied decision.
func InvalidPermissionNameError(perm string) *AppError {
	return &AppError{
		Code:    "INVALID_PERMISSION_NAME",
		Status:  400,
		Message: fmt.Sprintf("Invalid permission name: %s. Must be in the format: 'app.action_type'", perm),
	}
}

// UnknownResourceTypeError signals a permission name whose type component has
// no registered resource type.
func UnknownResourceTypeError(perm string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_RESOURCE_TYPE",
		Status:  400,
		Message: fmt.Sprintf("No resource type registered for: %s", perm),
	}
}

// TypeMismatchError signals an instance whose type disagrees with the type
// encoded in the permission name.
func TypeMismatchError(perm, label string) *AppError {
	return &AppError{
		Code:    "TYPE_MISMATCH",
		Status:  400,
		Message: fmt.Sprintf("Permission %s does not apply to resource type %s", perm, label),
	}
}

// InvalidConstraintError signals a persisted constraint referencing an
// unknown field or operator. Grants are admin-authored configuration, so
// this is surfaced as a server-side error rather than a denial.
func InvalidConstraintError(msg string) *AppError {
	return &AppError{Code: "INVALID_CONSTRAINT", Status: 500, Message: msg}
}

func PermissionDeniedError(msg string) *AppError {
	return &AppError{Code: "PERMISSION_DENIED", Status: 403, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func NotFoundError(label, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", label, id),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}
