package sfumedia

import "errors"

// ErrorKind categorizes engine errors so the dispatcher can decide whether
// the originating peer needs to be torn down.
type ErrorKind int

const (
	ErrKindFatal ErrorKind = iota
	ErrKindTransient
	ErrKindPeerClosed
)

// PeerError wraps an engine failure with enough context for the dispatcher
// to translate it into a {code,message} response without inspecting pion
// internals.
type PeerError struct {
	Kind    ErrorKind
	UserID  string
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *PeerError) Error() string {
	if e.Err == nil {
		return e.Op + " failed for peer " + e.UserID + ": " + e.Message
	}
	return e.Op + " failed for peer " + e.UserID + ": " + e.Err.Error()
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

var (
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerNotActive     = errors.New("peer not in active state")
	ErrTransportNotFound = errors.New("transport not found")
	ErrProducerNotFound  = errors.New("producer not found")
	ErrTransportLimit    = errors.New("transport limit reached")
	ErrProducerLimit     = errors.New("producer limit reached")
	ErrAudioOnly         = errors.New("video producing disabled: audio-only mode")
	ErrCannotConsume     = errors.New("cannot consume own producer")
)

func fatal(userID, op, code string, err error) *PeerError {
	return &PeerError{Kind: ErrKindFatal, UserID: userID, Op: op, Code: code, Err: err}
}

func transient(userID, op, code string, err error) *PeerError {
	return &PeerError{Kind: ErrKindTransient, UserID: userID, Op: op, Code: code, Err: err}
}

func closed(userID, op string) *PeerError {
	return &PeerError{Kind: ErrKindPeerClosed, UserID: userID, Op: op, Code: "SFU_NOT_READY", Err: ErrPeerNotActive}
}
