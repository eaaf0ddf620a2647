/*
Package errs provides custom error types and application-level error code constants.

These error codes classify every failure the chat server reports, both on the wire
(Disconnect reasons, command replies) and through the operator HTTP API.
*/
package errs

// 1xxx: Protocol Errors (fatal to the connection)
const (
	// ErrUnknownPacket indicates that a packet id with no registered packet type was received.
	ErrUnknownPacket = 1001

	// ErrUnexpectedPacket indicates a packet that is not valid in the current connection state.
	ErrUnexpectedPacket = 1002

	// ErrExpectedLogin indicates that the first packet of a connection was not a Login.
	ErrExpectedLogin = 1003

	// ErrFieldTooLarge indicates that a decoded string or list exceeded its size limit.
	ErrFieldTooLarge = 1004

	// ErrUnregisteredType indicates an attempt to encode a packet type missing from the registry.
	ErrUnregisteredType = 1005
)

// 2xxx: Login Failures (fatal to the handshake only)
const (
	// ErrProtocolMismatch indicates that client and server protocol versions differ.
	ErrProtocolMismatch = 2001

	// ErrInvalidUsername indicates that the username does not satisfy the username format.
	ErrInvalidUsername = 2002

	// ErrWrongPassword indicates that the password hash did not match the server password.
	ErrWrongPassword = 2003

	// ErrUsernameTaken indicates that an active user already holds the username.
	ErrUsernameTaken = 2004
)

// 3xxx: Command Errors (recoverable, reported to the invoking user only)
const (
	// ErrCommand is a generic command failure carrying its own message.
	ErrCommand = 3001

	// ErrUnknownCommand indicates that no registered command matched the entered name.
	ErrUnknownCommand = 3002

	// ErrPermissionDenied indicates that the acting permission level is below the command's level.
	ErrPermissionDenied = 3003

	// ErrUserNotFound indicates that the target user of a command is not online.
	ErrUserNotFound = 3004

	// ErrTargetIsConsole indicates that a command cannot target the server console.
	ErrTargetIsConsole = 3005

	// ErrConsoleLogout indicates that the console attempted to log out of itself.
	ErrConsoleLogout = 3006

	// ErrSudoEscalation indicates a sudo of a command the invoker could not run themselves.
	ErrSudoEscalation = 3007
)

// 31xx: Command Syntax Errors (a subset of command errors)
const (
	// ErrCommandSyntax indicates that the command arguments did not match the expected pattern.
	ErrCommandSyntax = 3101

	// ErrEmptyMessage indicates a message command with no message text.
	ErrEmptyMessage = 3102
)

// 4xxx: Operator API Request Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 4001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 4002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 4003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 4004

	// ErrUnauthorized indicates a missing, malformed or expired operator token.
	ErrUnauthorized = 4005

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 4006

	// ErrRequestTooLarge indicates that the request body exceeded the allowed size.
	ErrRequestTooLarge = 4007
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrConnectionClosed indicates a send on a connection that is already closed.
	ErrConnectionClosed = 5001

	// ErrSendQueueFull indicates that a peer stopped draining its outbound queue.
	ErrSendQueueFull = 5002

	// ErrStoreFailed indicates a failure of the permission grant store.
	ErrStoreFailed = 5003

	// ErrServiceStopped indicates a request that arrived after the chat server stopped.
	ErrServiceStopped = 5004
)
