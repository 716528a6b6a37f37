package chat

// Code identifies a failure category on the wire. Clients branch on the
// code, the message is display text only.
type Code string

const (
	CodeInvalidUsername      Code = "INVALID_USERNAME"
	CodeInvalidRoomID        Code = "INVALID_ROOM_ID"
	CodeEmptyMessage         Code = "EMPTY_MESSAGE"
	CodeMessageTooLong       Code = "MESSAGE_TOO_LONG"
	CodeFileTooLarge         Code = "FILE_TOO_LARGE"
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeRoomFull             Code = "ROOM_FULL"
	CodeUsernameExists       Code = "USERNAME_EXISTS"
	CodeRoomGenerationFailed Code = "ROOM_GENERATION_FAILED"
	CodeServerError          Code = "SERVER_ERROR"
)

// Error is the typed failure returned by every engine operation. It is
// always delivered to the originating connection only, never broadcast.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsError coerces any error into a *Error so the transport always has a
// code to send. Unexpected failures become SERVER_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok {
		return typed
	}
	return NewError(CodeServerError, "internal server error")
}
