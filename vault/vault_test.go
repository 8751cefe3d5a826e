package vault

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acoghlan/tokengate/storage/memory"
)

type countingPresence struct {
	confirms int
	err      error
}

func (p *countingPresence) Confirm(ctx context.Context, reason string) error {
	p.confirms++
	return p.err
}

func newTestVault(t *testing.T) (*Vault, *SoftwareKeystore, *countingPresence) {
	t.Helper()
	ks, err := NewSoftwareKeystore(filepath.Join(t.TempDir(), "keystore.json"))
	require.NoError(t, err)
	presence := &countingPresence{}
	return New(memory.NewStore(), ks, presence), ks, presence
}

func testRecord() Record {
	return Record{Token: "tok-1", Username: "alice", Password: "s3cret"}
}

func TestVault_SaveAndReadAll(t *testing.T) {
	ctx := t.Context()
	v, _, presence := newTestVault(t)

	require.NoError(t, v.Save(ctx, testRecord()))

	rec, err := v.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, testRecord(), rec)
	assert.Equal(t, 1, presence.confirms, "one proof unlocks the whole record")
}

func TestVault_HasRecord_NeverPrompts(t *testing.T) {
	ctx := t.Context()
	v, _, presence := newTestVault(t)

	assert.False(t, v.HasRecord())
	require.NoError(t, v.Save(ctx, testRecord()))
	assert.True(t, v.HasRecord())
	assert.Equal(t, 0, presence.confirms)
}

func TestVault_ReadAll_NoRecord(t *testing.T) {
	v, _, _ := newTestVault(t)
	_, err := v.ReadAll(t.Context())
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestVault_ReadAll_Cancelled(t *testing.T) {
	ctx := t.Context()
	v, _, presence := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))

	presence.err = ErrCancelled
	_, err := v.ReadAll(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVault_ReadAll_PresenceFailure(t *testing.T) {
	ctx := t.Context()
	v, _, presence := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))

	presence.err = assert.AnError
	_, err := v.ReadAll(ctx)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestVault_UpdateToken_NoPrompt(t *testing.T) {
	ctx := t.Context()
	v, _, presence := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))

	require.NoError(t, v.UpdateToken(ctx, "tok-2"))
	assert.Equal(t, 0, presence.confirms, "token refresh must stay silent")

	rec, err := v.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", rec.Token)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "s3cret", rec.Password)
}

func TestVault_UpdateToken_NoRecord(t *testing.T) {
	v, _, _ := newTestVault(t)
	err := v.UpdateToken(t.Context(), "tok")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestVault_Clear_Idempotent(t *testing.T) {
	ctx := t.Context()
	v, _, _ := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))

	require.NoError(t, v.Clear())
	require.NoError(t, v.Clear())
	assert.False(t, v.HasRecord())
}

func TestVault_ReEnrollmentInvalidatesRecord(t *testing.T) {
	ctx := t.Context()
	v, ks, _ := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))

	// Simulate the user re-enrolling their biometrics.
	require.NoError(t, ks.Rotate())

	_, err := v.ReadAll(ctx)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.False(t, v.HasRecord(), "orphaned record is dropped")
}

func TestVault_SaveAfterReEnrollment(t *testing.T) {
	ctx := t.Context()
	v, ks, _ := newTestVault(t)
	require.NoError(t, v.Save(ctx, testRecord()))
	require.NoError(t, ks.Rotate())

	// A fresh save under the new generation works as normal.
	require.NoError(t, v.Save(ctx, Record{Token: "t2", Username: "bob", Password: "pw"}))
	rec, err := v.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Username)
}

func TestSoftwareKeystore_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keystore.json")

	ks, err := NewSoftwareKeystore(path)
	require.NoError(t, err)
	gen, err := ks.Generation()
	require.NoError(t, err)
	secret, err := ks.Secret(gen)
	require.NoError(t, err)

	ks2, err := NewSoftwareKeystore(path)
	require.NoError(t, err)
	gen2, err := ks2.Generation()
	require.NoError(t, err)
	assert.Equal(t, gen, gen2)
	secret2, err := ks2.Secret(gen2)
	require.NoError(t, err)
	assert.Equal(t, secret, secret2)
}

func TestSoftwareKeystore_RotateInvalidatesOldGeneration(t *testing.T) {
	ks, err := NewSoftwareKeystore(filepath.Join(t.TempDir(), "keystore.json"))
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())
	_, err = ks.Secret(1)
	assert.ErrorIs(t, err, ErrGenerationInvalidated)

	gen, err := ks.Generation()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)
}
