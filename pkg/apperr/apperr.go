// Package apperr defines the pipeline's error taxonomy. Errors local to
// one message or attachment are absorbed into result values by the
// services; only transport- and persistence-level failures carry codes
// that make the surrounding task retryable.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	CodeTransportConnect = "TRANSPORT_CONNECT"
	CodeTransportAuth    = "TRANSPORT_AUTH"
	CodeMessageParse     = "MESSAGE_PARSE"
	CodeClassifyTimeout  = "CLASSIFY_TIMEOUT"
	CodeClassifyAPI      = "CLASSIFY_API"
	CodeExtraction       = "EXTRACTION"
	CodeStorage          = "STORAGE"
	CodeDatabase         = "DATABASE"
	CodeConfig           = "CONFIG"
)

// AppError is a structured application error.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError with the given code.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap creates an AppError wrapping a cause.
func Wrap(err error, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Constructor functions per taxonomy entry.

func TransportConnect(err error) *AppError {
	return Wrap(err, CodeTransportConnect, "mailbox connection failed")
}

func TransportAuth(err error) *AppError {
	return Wrap(err, CodeTransportAuth, "mailbox authentication failed")
}

func MessageParse(externalID string, err error) *AppError {
	return Wrap(err, CodeMessageParse, fmt.Sprintf("failed to parse message %q", externalID))
}

func ClassifyTimeout(err error) *AppError {
	return Wrap(err, CodeClassifyTimeout, "classification call timed out")
}

func ClassifyAPI(err error) *AppError {
	return Wrap(err, CodeClassifyAPI, "classification service error")
}

func Extraction(filename string, err error) *AppError {
	return Wrap(err, CodeExtraction, fmt.Sprintf("extraction failed for %q", filename))
}

func Storage(op string, err error) *AppError {
	return Wrap(err, CodeStorage, fmt.Sprintf("object storage error: %s", op))
}

func Database(op string, err error) *AppError {
	return Wrap(err, CodeDatabase, fmt.Sprintf("database error: %s", op))
}

func Config(message string) *AppError {
	return New(CodeConfig, message)
}

// Code returns the AppError code of err, or "" when err carries none.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	return Code(err) == code
}

// Retryable reports whether a task-level retry with backoff makes sense
// for err. Only infrastructure failures qualify; per-message and
// per-attachment failures are absorbed into results instead.
func Retryable(err error) bool {
	switch Code(err) {
	case CodeTransportConnect, CodeTransportAuth, CodeDatabase, CodeStorage:
		return true
	}
	return false
}
