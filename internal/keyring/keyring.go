// Package keyring holds the versioned symmetric keys used to encrypt
// message content. Key material is persisted as a single envelope with
// three wrap layers (mapping blob, blob key, data-encryption key wrapped
// by the master key) so keys can rotate without re-encrypting history.
package keyring

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"
)

var (
	ErrUnknownVersion = errors.New("keyring: unknown key version")
	ErrBadMasterKey   = errors.New("keyring: master key must be 32 bytes")
)

// Envelope is the persisted form of the ring.
type Envelope struct {
	ID             string    `bson:"_id" json:"id"`
	Blob           []byte    `bson:"blob" json:"blob"`
	WrappedBlobKey []byte    `bson:"wrapped_blob_key" json:"wrapped_blob_key"`
	WrappedDEK     []byte    `bson:"wrapped_dek" json:"wrapped_dek"`
	ActiveVersion  int       `bson:"active_version" json:"active_version"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// EnvelopeID is the fixed id of the single active envelope record.
const EnvelopeID = "active"

type Ring struct {
	mu     sync.RWMutex
	master []byte
	keys   map[int][]byte
	active int
}

// NewRing creates a ring with a fresh version-1 key.
func NewRing(master []byte) (*Ring, error) {
	if len(master) != 32 {
		return nil, ErrBadMasterKey
	}
	k, err := randomKey()
	if err != nil {
		return nil, err
	}
	return &Ring{master: master, keys: map[int][]byte{1: k}, active: 1}, nil
}

// Open unwraps a persisted envelope.
func Open(master []byte, env *Envelope) (*Ring, error) {
	if len(master) != 32 {
		return nil, ErrBadMasterKey
	}
	dek, err := open(master, env.WrappedDEK)
	if err != nil {
		return nil, err
	}
	blobKey, err := open(dek, env.WrappedBlobKey)
	if err != nil {
		return nil, err
	}
	raw, err := open(blobKey, env.Blob)
	if err != nil {
		return nil, err
	}
	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, err
	}
	keys := make(map[int][]byte, len(mapping))
	for v, b64 := range mapping {
		ver, err := strconv.Atoi(v)
		if err != nil {
			return nil, err
		}
		k, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, err
		}
		keys[ver] = k
	}
	return &Ring{master: master, keys: keys, active: env.ActiveVersion}, nil
}

// Seal wraps the current key set into a persistable envelope.
func (r *Ring) Seal() (*Envelope, error) {
	r.mu.RLock()
	mapping := make(map[string]string, len(r.keys))
	for v, k := range r.keys {
		mapping[strconv.Itoa(v)] = base64.StdEncoding.EncodeToString(k)
	}
	active := r.active
	r.mu.RUnlock()

	raw, err := json.Marshal(mapping)
	if err != nil {
		return nil, err
	}
	blobKey, err := randomKey()
	if err != nil {
		return nil, err
	}
	dek, err := randomKey()
	if err != nil {
		return nil, err
	}
	blob, err := seal(blobKey, raw)
	if err != nil {
		return nil, err
	}
	wrappedBlobKey, err := seal(dek, blobKey)
	if err != nil {
		return nil, err
	}
	wrappedDEK, err := seal(r.master, dek)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:             EnvelopeID,
		Blob:           blob,
		WrappedBlobKey: wrappedBlobKey,
		WrappedDEK:     wrappedDEK,
		ActiveVersion:  active,
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

func (r *Ring) ActiveVersion() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Encrypt seals plaintext under the active key and reports its version.
func (r *Ring) Encrypt(plaintext []byte) ([]byte, int, error) {
	r.mu.RLock()
	version := r.active
	key := r.keys[version]
	r.mu.RUnlock()
	ct, err := seal(key, plaintext)
	if err != nil {
		return nil, 0, err
	}
	return ct, version, nil
}

// Decrypt opens ciphertext produced under any retained key version.
func (r *Ring) Decrypt(ciphertext []byte, version int) ([]byte, error) {
	r.mu.RLock()
	key, ok := r.keys[version]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownVersion
	}
	return open(key, ciphertext)
}

// Rotate generates a new active key version. Earlier versions are
// retained so historical messages stay decryptable.
func (r *Ring) Rotate() (int, error) {
	k, err := randomKey()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	r.active++
	r.keys[r.active] = k
	v := r.active
	r.mu.Unlock()
	return v, nil
}
