package vault

import "errors"

var (
	// ErrCredentialsNotFound indicates no record has been saved, or the
	// record was cleared.
	ErrCredentialsNotFound = errors.New("stored credentials not found")
	// ErrAuthenticationFailed indicates the proof of presence failed, or the
	// record key was invalidated by a change to the enrolled biometric set.
	ErrAuthenticationFailed = errors.New("biometric authentication failed")
	// ErrCancelled indicates the user or the device dismissed the presence
	// ceremony. It is a benign outcome, not an error condition to surface.
	ErrCancelled = errors.New("presence proof cancelled")
	// ErrUnavailable indicates the device offers no biometric or
	// device-unlock factor.
	ErrUnavailable = errors.New("biometric factor unavailable")
)
