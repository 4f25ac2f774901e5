// Package challenge issues one-time authentication challenges and verifies
// the signed proofs devices present in response, implementing the
// challenge/proof half of the device-authentication handshake.
package challenge

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/cryptoutil"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/google/uuid"
)

// NonceBytes is the entropy of an issued challenge nonce: 16 bytes, 128 bits.
const NonceBytes = 16

var (
	ErrChallengeNotFound = errors.New("challenge: no such challenge")
	ErrChallengeExpired  = errors.New("challenge: expired")
	ErrChallengeConsumed = errors.New("challenge: already consumed")
	ErrBadSignature      = errors.New("challenge: proof signature did not verify")
)

// Store persists issued challenges. Implemented in-memory here; a
// plane-side persistence layer backs it with internal/store in production.
type Store interface {
	Put(c models.Challenge) error
	Get(challengeID string) (models.Challenge, bool, error)
	MarkConsumed(challengeID string) error
}

// DeviceKeyLookup resolves the public key a device registered with the
// plane. VerifyProof uses it to find the key a proof's signature must
// verify under, rather than trust whatever key the caller supplies.
type DeviceKeyLookup interface {
	PublicKeyForDevice(deviceID string) ([]byte, error)
}

// ErrUnknownDevice is returned when a proof names a device with no
// registered public key.
var ErrUnknownDevice = errors.New("challenge: no registered public key for device")

// MemoryStore is a mutex-guarded map implementation of Store, suitable for
// the Broker's own short-lived challenge bookkeeping.
type MemoryStore struct {
	mu         sync.Mutex
	challenges map[string]models.Challenge
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{challenges: make(map[string]models.Challenge)}
}

func (s *MemoryStore) Put(c models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.ChallengeID] = c
	return nil
}

func (s *MemoryStore) Get(challengeID string) (models.Challenge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	return c, ok, nil
}

func (s *MemoryStore) MarkConsumed(challengeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[challengeID]
	if !ok {
		return ErrChallengeNotFound
	}
	c.Consumed = true
	s.challenges[challengeID] = c
	return nil
}

// Issuer mints and verifies device-authentication challenges.
type Issuer struct {
	store Store
	keys  DeviceKeyLookup
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer creates an Issuer backed by store, with challenges valid for
// ttl. keys resolves the registered public key a proof's signature is
// checked against.
func NewIssuer(store Store, keys DeviceKeyLookup, ttl time.Duration) *Issuer {
	return &Issuer{store: store, keys: keys, ttl: ttl, now: time.Now}
}

// Issue creates and persists a fresh challenge for deviceID.
func (i *Issuer) Issue(deviceID string) (models.Challenge, error) {
	nonce := make([]byte, NonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return models.Challenge{}, fmt.Errorf("challenge: generating nonce: %w", err)
	}
	c := models.Challenge{
		ChallengeID:    uuid.NewString(),
		IssuedToDevice: deviceID,
		Nonce:          nonce,
		ExpiresAt:      i.now().Add(i.ttl),
		Consumed:       false,
	}
	if err := i.store.Put(c); err != nil {
		return models.Challenge{}, err
	}
	return c, nil
}

// Proof is the signed response a device presents back to the issuer.
type Proof struct {
	ChallengeID string
	UserID      string
	DeviceID    string
	Timestamp   int64
	Signature   []byte
}

// VerifyProof validates a proof against its originally issued challenge:
// the challenge must exist, be unexpired, and not already consumed; the
// signature must verify over the canonical transcript built from the
// proof's user/device/timestamp, checked against the device's own
// registered public key rather than any key the caller supplies. On
// success the challenge is marked consumed so it cannot be replayed.
func (i *Issuer) VerifyProof(proof Proof) error {
	c, ok, err := i.store.Get(proof.ChallengeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrChallengeNotFound
	}
	if c.IssuedToDevice != proof.DeviceID {
		return ErrChallengeNotFound
	}
	if c.Consumed {
		return ErrChallengeConsumed
	}
	if !i.now().Before(c.ExpiresAt) {
		return ErrChallengeExpired
	}

	publicKey, err := i.keys.PublicKeyForDevice(proof.DeviceID)
	if err != nil {
		return err
	}
	if len(publicKey) == 0 {
		return ErrUnknownDevice
	}

	transcript := cryptoutil.ProofTranscript(proof.UserID, proof.DeviceID, proof.Timestamp)
	ok, err = cryptoutil.Verify(publicKey, transcript, proof.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadSignature
	}
	return i.store.MarkConsumed(proof.ChallengeID)
}
