package app

import "fmt"

const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeEncoding       = "ENCODING_ERROR"
	CodePattern        = "PATTERN_ERROR"
	CodePostCondition  = "POSTCONDITION_FAILED"
	CodeStore          = "STORE_ERROR"
	CodeForbidden      = "FORBIDDEN"
	CodeUnknownAbility = "UNKNOWN_ABILITY"
)

// DomainError is a failure that becomes a success:false envelope. Details
// are merged into the envelope next to the message.
type DomainError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(code, message string, details map[string]any) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string) *DomainError {
	return domainError(CodeValidation, message, nil)
}
