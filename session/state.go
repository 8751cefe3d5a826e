package session

// State is the session's sole presentation-facing authority: exactly one
// value is current at any time.
type State int

const (
	// StateLoggedOut means no verified credential is active.
	StateLoggedOut State = iota
	// StateAuthenticated means a credential is active and the session is
	// interactable.
	StateAuthenticated
	// StateLocked means a credential is active but the user must re-prove
	// presence before the session may be interacted with.
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticated:
		return "authenticated"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}
