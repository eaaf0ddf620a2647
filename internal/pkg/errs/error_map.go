/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct. Messages may contain
printf verbs; NewError fills them from its details arguments.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: Protocol Errors
	ErrUnknownPacket:    {Code: ErrUnknownPacket, Message: "Unknown packet id %d."},
	ErrUnexpectedPacket: {Code: ErrUnexpectedPacket, Message: "Unexpected packet %s."},
	ErrExpectedLogin:    {Code: ErrExpectedLogin, Message: "Expected Login packet, got %s."},
	ErrFieldTooLarge:    {Code: ErrFieldTooLarge, Message: "Packet field too large: %s."},
	ErrUnregisteredType: {Code: ErrUnregisteredType, Message: "Packet type %s is not registered."},

	// 2xxx: Login Failures
	ErrProtocolMismatch: {Code: ErrProtocolMismatch, Message: "Protocol version mismatch: server speaks version %d, client speaks version %d."},
	ErrInvalidUsername:  {Code: ErrInvalidUsername, Message: "Invalid username \"%s\". Usernames are 3 to 52 word characters or internal hyphens."},
	ErrWrongPassword:    {Code: ErrWrongPassword, Message: "Incorrect password."},
	ErrUsernameTaken:    {Code: ErrUsernameTaken, Message: "The username \"%s\" is already taken."},

	// 3xxx: Command Errors
	ErrCommand:          {Code: ErrCommand, Message: "%s"},
	ErrUnknownCommand:   {Code: ErrUnknownCommand, Message: "Unknown command \"%s\""},
	ErrPermissionDenied: {Code: ErrPermissionDenied, Message: "You do not have permission to use /%s (requires %s, you have %s)."},
	ErrUserNotFound:     {Code: ErrUserNotFound, Message: "User \"%s\" not found"},
	ErrTargetIsConsole:  {Code: ErrTargetIsConsole, Message: "You can't %s the server."},
	ErrConsoleLogout:    {Code: ErrConsoleLogout, Message: "The server cannot log out of itself! Use /stop instead."},
	ErrSudoEscalation:   {Code: ErrSudoEscalation, Message: "You do not have permission to make user \"%s\" run that command! Your permission level: %s, %s's permission level: %s, command permission level: %s."},

	// 31xx: Command Syntax Errors
	ErrCommandSyntax: {Code: ErrCommandSyntax, Message: "%s"},
	ErrEmptyMessage:  {Code: ErrEmptyMessage, Message: "Message must not be empty!"},

	// 4xxx: Operator API Request Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "A valid operator token is required.", Status: http.StatusUnauthorized},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrRequestTooLarge:      {Code: ErrRequestTooLarge, Message: "Request body is too large.", Status: http.StatusRequestEntityTooLarge},

	// 5xxx: Internal System Errors
	ErrUnknown:          {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrConnectionClosed: {Code: ErrConnectionClosed, Message: "Connection is closed."},
	ErrSendQueueFull:    {Code: ErrSendQueueFull, Message: "Client send queue full."},
	ErrStoreFailed:      {Code: ErrStoreFailed, Message: "Permission store unavailable."},
	ErrServiceStopped:   {Code: ErrServiceStopped, Message: "The chat server is shutting down.", Status: http.StatusServiceUnavailable},
}
