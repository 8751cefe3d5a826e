package vault

import "errors"

// Keystore abstracts the platform's hardware-backed key provider (OS
// keystore, secure enclave, TPM). The secret it hands out is bound to the
// device's enrolled biometric set: each re-enrollment starts a new
// generation and destroys the previous generation's secret, so records
// sealed under an old generation become permanently unreadable.
//
// Access policy is the Vault's concern, not the Keystore's: the Vault asks
// for a Presence proof before reads of the whole record, while writes go
// straight through.
type Keystore interface {
	// Available reports whether the device offers a biometric or
	// device-unlock factor at all.
	Available() bool

	// Generation returns the current enrollment generation.
	Generation() (uint64, error)

	// Secret returns the root secret for the given generation, or
	// ErrGenerationInvalidated if that generation has been superseded.
	Secret(generation uint64) ([]byte, error)
}

// ErrGenerationInvalidated is returned by Keystore.Secret when the
// requested generation's secret was destroyed by a biometric re-enrollment.
var ErrGenerationInvalidated = errors.New("key generation invalidated by re-enrollment")
