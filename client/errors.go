package client

import "fmt"

// Access denial reason codes as sent by the server in ACCESS_DENIED.
const (
	DenyWrongPassword    = 0
	DenyUnexpectedData   = 1
	DenySingleplayer     = 2
	DenyWrongVersion     = 3
	DenyWrongCharsInName = 4
	DenyWrongName        = 5
	DenyTooManyUsers     = 6
	DenyEmptyPassword    = 7
	DenyAlreadyConnected = 8
	DenyServerFail       = 9
	DenyCustomString     = 10
	DenyShutdown         = 11
	DenyCrash            = 12
)

var denyReasons = map[int]string{
	DenyWrongPassword:    "Invalid password",
	DenyUnexpectedData:   "Your client sent something the server didn't expect. Try reconnecting and register your player name!",
	DenySingleplayer:     "Server is in singleplayer mode.",
	DenyWrongVersion:     "Client version not supported.",
	DenyWrongCharsInName: "Player name contains disallowed characters.",
	DenyWrongName:        "Player name is not allowed.",
	DenyTooManyUsers:     "Server is full.",
	DenyEmptyPassword:    "Empty passwords are not allowed.",
	DenyAlreadyConnected: "Another client is already connected with this name.",
	DenyServerFail:       "Internal server error.",
	DenyCustomString:     "Custom reason provided by server.",
	DenyShutdown:         "Server is shutting down.",
	DenyCrash:            "Internal server error.",
}

// DenyReason translates an access denial code to human-readable text.
func DenyReason(code int) string {
	if r, ok := denyReasons[code]; ok {
		return r
	}
	return fmt.Sprintf("Unknown reason (code: %d)", code)
}

// ConnError is a failed connection attempt. When the server denied
// access, Code carries the denial reason code (callers use it to decide
// whether a retry as registration makes sense); otherwise Code is -1.
type ConnError struct {
	Reason string
	Code   int
}

func (e *ConnError) Error() string {
	return e.Reason
}

func connErrorf(format string, args ...interface{}) *ConnError {
	return &ConnError{Reason: fmt.Sprintf(format, args...), Code: -1}
}
