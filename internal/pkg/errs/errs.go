/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, a user-facing message, and an HTTP status code used by the
operator API. The code range classifies the error (protocol, login, command, syntax).
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"wnschat/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-facing error description.
	Message string

	// Status is the HTTP status code used when the error is returned by the operator API.
	Status int
}

// Error implements the standard Go error interface.
func (e CustomError) Error() string {
	return fmt.Sprintf("error %d: %s", e.Code, e.Message)
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter supplies printf-style arguments for the message template.
// If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			logx.Error(
				originalErr,
				"Handling ErrUnknown with underlying error",
			)
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// CodeOf returns the business code carried by err, or 0 if err is not a *CustomError.
func CodeOf(err error) int {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Code
	}
	return 0
}

// MessageOf returns the user-facing message of a *CustomError, or err.Error() otherwise.
func MessageOf(err error) string {
	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr.Message
	}
	return err.Error()
}

func inRange(err error, lo, hi int) bool {
	code := CodeOf(err)
	return code >= lo && code <= hi
}

// IsProtocol reports whether err is a protocol error (malformed or out-of-sequence packet).
func IsProtocol(err error) bool { return inRange(err, 1000, 1999) }

// IsLoginFailure reports whether err rejected a handshake.
func IsLoginFailure(err error) bool { return inRange(err, 2000, 2999) }

// IsCommand reports whether err is a recoverable command error. Syntax errors are command errors too.
func IsCommand(err error) bool { return inRange(err, 3000, 3999) }

// IsCommandSyntax reports whether err is a command syntax error.
func IsCommandSyntax(err error) bool { return inRange(err, 3100, 3199) }
