package errors

import "fmt"

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Error codes
const (
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeProviderFailed   = "PROVIDER_FAILED"
	ErrCodePromptTooLong    = "PROMPT_TOO_LONG"
	ErrCodeTransportSend    = "TRANSPORT_SEND_FAILED"
	ErrCodeAckTimeout       = "ACK_TIMEOUT"
	ErrCodeScreenshot       = "SCREENSHOT_FAILED"
	ErrCodeSchemaInvalid    = "SCHEMA_INVALID"
	ErrCodeFollowupRejected = "FOLLOWUP_REJECTED"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeStoreFailed      = "STORE_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
)
