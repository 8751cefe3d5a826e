package session

import "errors"

var (
	// ErrNotAuthenticated indicates an authenticated operation was invoked
	// without an active credential.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrSessionLocked indicates the session is idle-locked and must be
	// unlocked before authenticated calls may proceed.
	ErrSessionLocked = errors.New("session locked")
)
