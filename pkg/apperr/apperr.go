// Package apperr defines the tagged error kinds shared by the telemetry and AI layers.
// Callers dispatch on Kind instead of inspecting message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindCapabilityUnavailable  Kind = "capability_unavailable"
	KindSessionCreationFailure Kind = "session_creation_failure"
	KindSessionInvalid         Kind = "session_invalid"
	KindPromptFailure          Kind = "prompt_failure"
	KindRemoteAPIFailure       Kind = "remote_api_failure"
	KindStorageFailure         Kind = "storage_failure"
)

// Error carries a Kind plus optional HTTP status and backend message.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Kind == KindRemoteAPIFailure && e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	case msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func CapabilityUnavailable(op string, err error) *Error {
	return New(KindCapabilityUnavailable, op, err)
}

func SessionCreation(op string, err error) *Error {
	return New(KindSessionCreationFailure, op, err)
}

func SessionInvalid(op string, err error) *Error {
	return New(KindSessionInvalid, op, err)
}

func Prompt(op string, err error) *Error {
	return New(KindPromptFailure, op, err)
}

func Storage(op string, err error) *Error {
	return New(KindStorageFailure, op, err)
}

// RemoteAPI builds a RemoteApiFailure. status is 0 when no HTTP response was received.
func RemoteAPI(op string, status int, message string, err error) *Error {
	return &Error{Kind: KindRemoteAPIFailure, Op: op, Status: status, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when untagged.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsSessionRelated reports whether err should be recovered by re-acquiring the session.
func IsSessionRelated(err error) bool {
	switch KindOf(err) {
	case KindSessionInvalid, KindSessionCreationFailure, KindCapabilityUnavailable:
		return true
	}
	return false
}
