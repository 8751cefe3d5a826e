package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/acoghlan/tokengate/internal/util"
)

// SoftwareKeystore is a file-backed Keystore for platforms without a
// hardware keystore, and for tests. It keeps exactly one generation's
// secret; Rotate simulates a biometric re-enrollment by destroying the
// current secret and minting a fresh one under the next generation.
type SoftwareKeystore struct {
	mu   sync.Mutex
	path string

	generation uint64
	secret     []byte
}

var _ Keystore = (*SoftwareKeystore)(nil)

type softwareKeystoreFile struct {
	Generation uint64 `json:"generation"`
	Secret     string `json:"secret"`
}

// NewSoftwareKeystore loads the keystore file at path, creating it with a
// fresh generation-1 secret if it does not exist.
func NewSoftwareKeystore(path string) (*SoftwareKeystore, error) {
	ks := &SoftwareKeystore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f softwareKeystoreFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing keystore file: %w", err)
		}
		secret, err := util.HexDecode(f.Secret)
		if err != nil {
			return nil, fmt.Errorf("decoding keystore secret: %w", err)
		}
		ks.generation = f.Generation
		ks.secret = secret
		return ks, nil
	case os.IsNotExist(err):
		ks.generation = 1
		if err := ks.mintLocked(); err != nil {
			return nil, err
		}
		return ks, nil
	default:
		return nil, fmt.Errorf("reading keystore file: %w", err)
	}
}

func (ks *SoftwareKeystore) mintLocked() error {
	secret, err := util.RandomBytes(util.AESKeySize)
	if err != nil {
		return fmt.Errorf("generating keystore secret: %w", err)
	}
	ks.secret = secret

	data, err := json.Marshal(softwareKeystoreFile{
		Generation: ks.generation,
		Secret:     util.HexEncode(ks.secret),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(ks.path, data, 0600); err != nil {
		return fmt.Errorf("writing keystore file: %w", err)
	}
	return nil
}

func (ks *SoftwareKeystore) Available() bool {
	return true
}

func (ks *SoftwareKeystore) Generation() (uint64, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.generation, nil
}

func (ks *SoftwareKeystore) Secret(generation uint64) ([]byte, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if generation != ks.generation {
		return nil, ErrGenerationInvalidated
	}
	return util.CopyBytes(ks.secret), nil
}

// Rotate destroys the current secret and starts a new generation, as a
// biometric re-enrollment would on a real device.
func (ks *SoftwareKeystore) Rotate() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	util.WipeBytes(ks.secret)
	ks.generation++
	return ks.mintLocked()
}
