// Package apperr defines the typed error shape collaborator boundaries use
// so the gateway can relay a code+message pair verbatim to the originating
// session instead of leaking internal error text.
package apperr

import "errors"

// Error codes surfaced over the wire (spec.md §6).
const (
	CodeUnauthorized                = "UNAUTHORIZED"
	CodeForbidden                   = "FORBIDDEN"
	CodeInvalidAuth                 = "INVALID_AUTH"
	CodeAlreadyAuthenticated        = "ALREADY_AUTHENTICATED"
	CodeInvalidSession              = "INVALID_SESSION"
	CodeAccountSuspended            = "ACCOUNT_SUSPENDED"
	CodeInvalidEvent                = "INVALID_EVENT"
	CodeUnknownEvent                = "UNKNOWN_EVENT"
	CodeInvalidChannel              = "INVALID_CHANNEL"
	CodeChannelNotFound             = "CHANNEL_NOT_FOUND"
	CodeInvalidVoiceChannel         = "INVALID_VOICE_CHANNEL"
	CodeVoiceNotJoined              = "VOICE_NOT_JOINED"
	CodeVoiceTargetNotAvailable     = "VOICE_TARGET_NOT_AVAILABLE"
	CodeInvalidSignal               = "INVALID_SIGNAL"
	CodeVoiceSignalRateLimited      = "VOICE_SIGNAL_RATE_LIMITED"
	CodeInvalidSFURequest           = "INVALID_SFU_REQUEST"
	CodeSFUDisabled                 = "SFU_DISABLED"
	CodeSFUNotReady                 = "SFU_NOT_READY"
	CodeSFUTransportNotFound        = "SFU_TRANSPORT_NOT_FOUND"
	CodeSFUTransportLimit           = "SFU_TRANSPORT_LIMIT"
	CodeSFUProducerLimit            = "SFU_PRODUCER_LIMIT"
	CodeSFUCannotConsume            = "SFU_CANNOT_CONSUME"
	CodeSFUAudioOnly                = "SFU_AUDIO_ONLY"
	CodeSFURequestFailed            = "SFU_REQUEST_FAILED"
	CodeWSError                     = "WS_ERROR"
)

// AppError is the typed, wire-shaped error every collaborator boundary
// returns. Unlike a bare error string, its Code survives across the
// collaborator call and is relayed to the client verbatim rather than
// collapsed into WS_ERROR.
type AppError struct {
	Code    string
	Message string
}

func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// As lets callers recover a typed AppError from a wrapped error chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
