// Package domain contains entities and error kinds without logic.
package domain

import "errors"

var (
	ErrValidation   = errors.New("invalid request")
	ErrNotFound     = errors.New("not found")
	ErrProvisioning = errors.New("provisioning failed")
	ErrSpawn        = errors.New("failed to start subprocess")
	ErrStream       = errors.New("worker stream failed")
	ErrRoomBusy     = errors.New("room already has an active bot")

	ErrRoomNotFound     = subKind(ErrNotFound, "bot process not found")
	ErrVariableNotFound = subKind(ErrNotFound, "variable not found")
)

// kindError is a sentinel that also matches its parent kind.
type kindError struct {
	parent error
	msg    string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.parent }

func subKind(parent error, msg string) error {
	return &kindError{parent: parent, msg: msg}
}

// TranscriptVar is the reserved variable that holds the live transcript.
const TranscriptVar = "transcript"
