// Package vault implements the biometric-protected credential store: a
// single {token, username, password} record sealed under a key bound to the
// device's enrolled biometric set. Reading the record requires one proof of
// presence; writes do not, which lets the silent token-refresh path keep
// the record current without prompting the user.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/acoghlan/tokengate/internal/util"
	"github.com/acoghlan/tokengate/storage"
)

const (
	metaKey   = "vault/meta"
	recordKey = "vault/record"
)

// Record holds the three values unlocked together by one presence proof.
type Record struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Vault stores one sealed Record. The record ciphertext lives in the given
// storage.Store; the sealing key is derived per enrollment generation from
// the Keystore secret, so a re-enrolled biometric set (new generation)
// permanently orphans the old record.
type Vault struct {
	store    storage.Store
	keys     Keystore
	presence Presence
}

// New creates a Vault over the given store, keystore and presence verifier.
func New(store storage.Store, keys Keystore, presence Presence) *Vault {
	return &Vault{store: store, keys: keys, presence: presence}
}

type recordMeta struct {
	Generation uint64 `json:"generation"`
}

// Available reports whether the device offers a biometric or device-unlock
// factor. Never prompts.
func (v *Vault) Available() bool {
	return v.keys.Available()
}

// HasRecord reports whether a record exists. It reads only unsealed
// metadata and never triggers a presence proof, so the caller can decide
// whether to offer biometric sign-in without prompting.
func (v *Vault) HasRecord() bool {
	_, err := v.store.Get(metaKey)
	return err == nil
}

// Save seals and stores the record under the current enrollment generation,
// replacing any previous record. No presence proof is required.
func (v *Vault) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !v.keys.Available() {
		return ErrUnavailable
	}

	gen, err := v.keys.Generation()
	if err != nil {
		return fmt.Errorf("reading enrollment generation: %w", err)
	}
	return v.seal(gen, rec)
}

// ReadAll unseals and returns the record. It performs exactly one presence
// ceremony regardless of how many fields the record holds. A record sealed
// under a superseded enrollment generation is cleared and reported as
// ErrAuthenticationFailed.
func (v *Vault) ReadAll(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	meta, err := v.meta()
	if err != nil {
		return Record{}, err
	}

	if err := v.presence.Confirm(ctx, "Unlock your saved sign-in"); err != nil {
		if errors.Is(err, ErrCancelled) {
			return Record{}, ErrCancelled
		}
		return Record{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	return v.unseal(meta.Generation)
}

// UpdateToken overwrites only the token field of the stored record. It does
// not require a presence proof: presence gates reads handed to the caller,
// not writes that keep the record in sync.
func (v *Vault) UpdateToken(ctx context.Context, tok string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	meta, err := v.meta()
	if err != nil {
		return err
	}

	rec, err := v.unseal(meta.Generation)
	if err != nil {
		return err
	}
	rec.Token = tok
	return v.seal(meta.Generation, rec)
}

// Clear deletes the record unconditionally. Idempotent.
func (v *Vault) Clear() error {
	if err := v.store.Delete(recordKey); err != nil {
		return err
	}
	return v.store.Delete(metaKey)
}

func (v *Vault) meta() (recordMeta, error) {
	data, err := v.store.Get(metaKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return recordMeta{}, ErrCredentialsNotFound
		}
		return recordMeta{}, err
	}
	var meta recordMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return recordMeta{}, ErrCredentialsNotFound
	}
	return meta, nil
}

func (v *Vault) seal(gen uint64, rec Record) error {
	key, err := v.recordKey(gen)
	if err != nil {
		return err
	}
	defer util.WipeBytes(key)

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	defer util.WipeBytes(plaintext)

	sealed, err := util.EncryptAESWithAAD(plaintext, key, recordAAD(gen))
	if err != nil {
		return fmt.Errorf("sealing record: %w", err)
	}

	metaData, err := json.Marshal(recordMeta{Generation: gen})
	if err != nil {
		return err
	}
	if err := v.store.Put(recordKey, sealed); err != nil {
		return err
	}
	return v.store.Put(metaKey, metaData)
}

func (v *Vault) unseal(gen uint64) (Record, error) {
	key, err := v.recordKey(gen)
	if err != nil {
		if errors.Is(err, ErrGenerationInvalidated) {
			// The enrolled biometric set changed since the record was
			// saved. The old secret is gone for good; drop the orphaned
			// record so the user is offered a fresh opt-in.
			_ = v.Clear()
			return Record{}, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return Record{}, err
	}
	defer util.WipeBytes(key)

	sealed, err := v.store.Get(recordKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, ErrCredentialsNotFound
		}
		return Record{}, err
	}

	plaintext, err := util.DecryptAESWithAAD(sealed, key, recordAAD(gen))
	if err != nil {
		return Record{}, fmt.Errorf("%w: unsealing record: %w", ErrAuthenticationFailed, err)
	}
	defer util.WipeBytes(plaintext)

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: decoding record: %w", ErrAuthenticationFailed, err)
	}
	return rec, nil
}

// recordKey derives the sealing key for a generation. The keystore secret
// passes through a memguard enclave so it is encrypted in memory and wiped
// once the derived key is produced.
func (v *Vault) recordKey(gen uint64) ([]byte, error) {
	secret, err := v.keys.Secret(gen)
	if err != nil {
		return nil, err
	}

	enclave := memguard.NewEnclave(secret)
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening keystore secret enclave: %w", err)
	}
	defer buf.Destroy()

	return util.HKDF(buf.Bytes(), nil, recordAAD(gen))
}

func recordAAD(gen uint64) []byte {
	return fmt.Appendf(nil, "tokengate/vault/record/%d", gen)
}
