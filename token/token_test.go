package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestDecode_ExtractsExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	cred := Decode(mintToken(t, exp))

	assert.True(t, cred.ExpiryKnown())
	assert.True(t, cred.ExpiresAt.Equal(exp))
}

func TestDecode_MalformedToken(t *testing.T) {
	for _, raw := range []string{"", "not-a-jwt", "a.b", "a.%%%.c"} {
		cred := Decode(raw)
		assert.False(t, cred.ExpiryKnown(), "raw=%q", raw)
		assert.Equal(t, raw, cred.Token)
	}
}

func TestDecode_NoExpiryClaim(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	cred := Decode(raw)
	assert.False(t, cred.ExpiryKnown())
}

func TestDueAndExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		expIn   time.Duration
		due     bool
		expired bool
	}{
		{"expires in 48h", 48 * time.Hour, false, false},
		{"expires in exactly 24h", 24 * time.Hour, true, false},
		{"expires in 1h", time.Hour, true, false},
		{"expires now", 0, true, true},
		{"expired 1h ago", -time.Hour, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred := Credential{Token: "t", ExpiresAt: now.Add(tt.expIn)}
			assert.Equal(t, tt.due, cred.Due(now), "due")
			assert.Equal(t, tt.expired, cred.Expired(now), "expired")
		})
	}
}

func TestUnknownExpiry_NeverDueNeverExpired(t *testing.T) {
	cred := Credential{Token: "opaque"}
	now := time.Now()

	assert.False(t, cred.Due(now))
	assert.False(t, cred.Expired(now))
}
