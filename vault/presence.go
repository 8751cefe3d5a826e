package vault

import "context"

// Presence performs a proof-of-presence ceremony: a biometric or
// device-unlock prompt confirming the current user is physically there.
// It proves presence only; it never reads a secret.
//
// Implementations must return ErrCancelled when the user or the device
// dismisses the prompt, and ErrAuthenticationFailed for any other failure.
// The ceremony may take arbitrary wall-clock time and must respect ctx.
type Presence interface {
	Confirm(ctx context.Context, reason string) error
}

// PresenceFunc adapts a function to the Presence interface.
type PresenceFunc func(ctx context.Context, reason string) error

func (f PresenceFunc) Confirm(ctx context.Context, reason string) error {
	return f(ctx, reason)
}
