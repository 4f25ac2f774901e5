package cryptoutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// KeyStore persists the plane's own Ed25519 signing keypair as a
// passphrase-wrapped file on disk. Filenames derive from the key
// identifier; each file carries a 12-byte nonce prefix followed by
// AES-GCM ciphertext, per the spec's persisted-state layout.
type KeyStore struct {
	dir        string
	passphrase string
}

// NewKeyStore opens a key store rooted at dir, creating it if absent.
func NewKeyStore(dir, passphrase string) (*KeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &KeyStore{dir: dir, passphrase: passphrase}, nil
}

func (ks *KeyStore) path(keyID string) string {
	return filepath.Join(ks.dir, keyID+".key")
}

// GenerateAndStore creates a new Ed25519 keypair, wraps the private key
// under the store's passphrase, and writes it to disk under keyID.
func (ks *KeyStore) GenerateAndStore(keyID string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate keypair: %w", err)
	}
	if err := ks.store(keyID, priv); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func (ks *KeyStore) store(keyID string, priv ed25519.PrivateKey) error {
	salt := []byte(keyID)
	key, err := DeriveKey(ks.passphrase, salt)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}
	sealed, err := Seal(key, priv)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	return os.WriteFile(ks.path(keyID), sealed, 0o600)
}

// Load reads and unwraps the private key stored under keyID. Decryption
// with the wrong passphrase-derived key fails cleanly.
func (ks *KeyStore) Load(keyID string) (ed25519.PrivateKey, error) {
	sealed, err := os.ReadFile(ks.path(keyID))
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	salt := []byte(keyID)
	key, err := DeriveKey(ks.passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	plain, err := Open(key, sealed)
	if err != nil {
		return nil, fmt.Errorf("unwrap private key: %w", err)
	}
	return ed25519.PrivateKey(plain), nil
}
