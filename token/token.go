// Package token models the network access credential: an opaque bearer
// value with an expiry embedded in its self-describing payload.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RenewalLookahead is how far ahead of expiry a credential is considered
// due for proactive renewal.
const RenewalLookahead = 24 * time.Hour

// Credential is the active access credential. ExpiresAt is zero when the
// token payload could not be decoded; an unknown expiry never marks the
// credential as expired on its own, only the server's 401 is authoritative
// then.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Decode builds a Credential from a raw bearer token, extracting the expiry
// from the token's claims without verifying its signature. Verification is
// the server's job; the client only needs the expiry hint. Any malformed or
// claimless token yields a Credential with unknown expiry.
func Decode(raw string) Credential {
	cred := Credential{Token: raw}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return cred
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return cred
	}
	cred.ExpiresAt = exp.Time
	return cred
}

// IsZero reports whether the credential is empty.
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// ExpiryKnown reports whether the token's expiry could be decoded.
func (c Credential) ExpiryKnown() bool {
	return !c.ExpiresAt.IsZero()
}

// Due reports whether the credential is within the renewal lookahead window
// of its expiry. Credentials with unknown expiry are never due.
func (c Credential) Due(now time.Time) bool {
	if !c.ExpiryKnown() {
		return false
	}
	return !c.ExpiresAt.After(now.Add(RenewalLookahead))
}

// Expired reports whether the credential's expiry is at or before now.
// Credentials with unknown expiry are never considered expired.
func (c Credential) Expired(now time.Time) bool {
	if !c.ExpiryKnown() {
		return false
	}
	return !c.ExpiresAt.After(now)
}
