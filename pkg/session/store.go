// store.go persists session key material as opaque encrypted blobs.
//
// A blob carries everything needed to resume a session: identities, cipher
// suite, and key material with its validity bounds. The blob is sealed with
// AES-256-GCM under a key derived from the integrity secret with its own
// domain separator, so possession of a blob file reveals nothing without
// the provisioned secret.
package session

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cryptexq/cryptexq-go/internal/constants"
	qerrors "github.com/cryptexq/cryptexq-go/internal/errors"
	"github.com/cryptexq/cryptexq-go/pkg/crypto"
	"github.com/cryptexq/cryptexq-go/pkg/envelope"
)

// Store is the persistence backend for sealed session blobs. Implementations
// never see plaintext key material.
type Store interface {
	Save(id string, data []byte) error
	Load(id string) ([]byte, error)
	Delete(id string) error
}

// FileStore persists blobs as files in a directory, one file per session id.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed blob store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, qerrors.ErrInvalidConfig
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the sealed blob for a session.
func (fs *FileStore) Save(id string, data []byte) error {
	path, err := fs.path(id)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Load reads the sealed blob for a session. A missing blob is
// ErrSessionNotFound.
func (fs *FileStore) Load(id string) ([]byte, error) {
	path, err := fs.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.ErrSessionNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete removes the sealed blob for a session. Deleting a missing blob is
// not an error.
func (fs *FileStore) Delete(id string) error {
	path, err := fs.path(id)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// path maps a session id to its blob file, rejecting ids that could escape
// the store directory.
func (fs *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", qerrors.ErrInvalidBlob
	}
	return filepath.Join(fs.dir, id+".blob"), nil
}

// MemoryStore keeps blobs in memory. Useful for tests and for processes
// that want resumption without a filesystem.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Save stores a copy of the blob.
func (ms *MemoryStore) Save(id string, data []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.blobs[id] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the stored blob.
func (ms *MemoryStore) Load(id string) ([]byte, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	data, ok := ms.blobs[id]
	if !ok {
		return nil, qerrors.ErrSessionNotFound
	}
	return append([]byte(nil), data...), nil
}

// Delete removes the stored blob.
func (ms *MemoryStore) Delete(id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.blobs, id)
	return nil
}

// blobRecord is the plaintext content of a sealed session blob.
type blobRecord struct {
	LocalID string
	PeerID  string
	Suite   constants.CipherSuite
	KM      *envelope.KeyMaterial
}

// Keeper seals and opens session blobs over a Store.
type Keeper struct {
	store Store
	key   []byte
	now   func() time.Time
}

// NewKeeper creates a blob keeper whose sealing key is derived from the
// integrity secret.
func NewKeeper(store Store, integritySecret []byte) (*Keeper, error) {
	if store == nil {
		return nil, qerrors.ErrInvalidConfig
	}
	if len(integritySecret) == 0 {
		return nil, qerrors.ErrMissingIntegritySecret
	}
	key, err := crypto.DeriveKey(constants.DomainSeparatorBlob, integritySecret, constants.SessionKeySize)
	if err != nil {
		return nil, err
	}
	return &Keeper{store: store, key: key, now: time.Now}, nil
}

// Save seals the session's resumable state and persists it under the
// session id.
func (k *Keeper) Save(s *Session) error {
	rec := blobRecord{
		LocalID: s.LocalID,
		PeerID:  s.PeerID,
		Suite:   s.suite,
		KM:      s.km,
	}
	plaintext, err := encodeBlob(&rec)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(plaintext)

	sealed, err := k.seal(plaintext)
	if err != nil {
		return err
	}
	return k.store.Save(s.ID, sealed)
}

// Load opens the sealed blob for a session id. Material past its expiry is
// rejected with ErrKeyMaterialExpired; any tampering or structural defect
// yields ErrInvalidBlob.
func (k *Keeper) Load(id string) (*blobRecord, error) {
	sealed, err := k.store.Load(id)
	if err != nil {
		return nil, err
	}

	plaintext, err := k.open(sealed)
	if err != nil {
		return nil, qerrors.ErrInvalidBlob
	}
	defer crypto.Zeroize(plaintext)

	rec, err := decodeBlob(plaintext)
	if err != nil {
		return nil, err
	}
	if rec.KM.Expired(k.now()) {
		rec.KM.Zeroize()
		return nil, qerrors.ErrKeyMaterialExpired
	}
	return rec, nil
}

// Delete removes the persisted blob for a session id.
func (k *Keeper) Delete(id string) error {
	return k.store.Delete(id)
}

// seal encrypts a blob plaintext, prepending the random nonce.
func (k *Keeper) seal(plaintext []byte) ([]byte, error) {
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, err := cipher.SealRaw(k.key, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// open decrypts a sealed blob.
func (k *Keeper) open(sealed []byte) ([]byte, error) {
	if len(sealed) < constants.NonceSize+constants.TagSize {
		return nil, qerrors.ErrInvalidBlob
	}
	cipher, err := envelope.NewCipher(constants.CipherSuiteAES256GCM)
	if err != nil {
		return nil, err
	}
	return cipher.OpenRaw(k.key, sealed[constants.NonceSize:], sealed[:constants.NonceSize])
}

// Blob layout:
//
//	version(1) | suite(2 BE) | sessionKey(32) | integrityKey(32) |
//	establishedAt(8 BE, unix ms) | expiresAt(8 BE, unix ms) |
//	localLen(1) local | peerLen(1) peer
func encodeBlob(rec *blobRecord) ([]byte, error) {
	if rec.KM == nil {
		return nil, qerrors.ErrInvalidBlob
	}
	if err := rec.KM.Validate(); err != nil {
		return nil, err
	}
	local, peer := []byte(rec.LocalID), []byte(rec.PeerID)
	if len(local) == 0 || len(local) > constants.MaxIdentitySize ||
		len(peer) == 0 || len(peer) > constants.MaxIdentitySize {
		return nil, qerrors.ErrInvalidBlob
	}

	size := 1 + 2 + constants.SessionKeySize + constants.IntegrityKeySize + 8 + 8 +
		1 + len(local) + 1 + len(peer)
	buf := make([]byte, size)
	offset := 0

	buf[offset] = constants.EnvelopeVersion
	offset++
	binary.BigEndian.PutUint16(buf[offset:], uint16(rec.Suite))
	offset += 2
	copy(buf[offset:], rec.KM.SessionKey)
	offset += constants.SessionKeySize
	copy(buf[offset:], rec.KM.IntegrityKey)
	offset += constants.IntegrityKeySize
	binary.BigEndian.PutUint64(buf[offset:], uint64(rec.KM.EstablishedAt.UnixMilli()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(rec.KM.ExpiresAt.UnixMilli()))
	offset += 8
	buf[offset] = byte(len(local))
	offset++
	copy(buf[offset:], local)
	offset += len(local)
	buf[offset] = byte(len(peer))
	offset++
	copy(buf[offset:], peer)

	return buf, nil
}

func decodeBlob(data []byte) (*blobRecord, error) {
	minSize := 1 + 2 + constants.SessionKeySize + constants.IntegrityKeySize + 8 + 8 + 1 + 1 + 1 + 1
	if len(data) < minSize {
		return nil, qerrors.ErrInvalidBlob
	}

	offset := 0
	if data[offset] != constants.EnvelopeVersion {
		return nil, qerrors.ErrInvalidBlob
	}
	offset++

	suite := constants.CipherSuite(binary.BigEndian.Uint16(data[offset:]))
	if !suite.IsSupported() {
		return nil, qerrors.ErrInvalidBlob
	}
	offset += 2

	sessionKey := append([]byte(nil), data[offset:offset+constants.SessionKeySize]...)
	offset += constants.SessionKeySize
	integrityKey := append([]byte(nil), data[offset:offset+constants.IntegrityKeySize]...)
	offset += constants.IntegrityKeySize

	establishedAt := int64(binary.BigEndian.Uint64(data[offset:]))
	offset += 8
	expiresAt := int64(binary.BigEndian.Uint64(data[offset:]))
	offset += 8
	if establishedAt < 0 || expiresAt < 0 {
		return nil, qerrors.ErrInvalidBlob
	}

	localLen := int(data[offset])
	offset++
	if localLen == 0 || offset+localLen+1 > len(data) {
		return nil, qerrors.ErrInvalidBlob
	}
	local := string(data[offset : offset+localLen])
	offset += localLen

	peerLen := int(data[offset])
	offset++
	if peerLen == 0 || offset+peerLen != len(data) {
		return nil, qerrors.ErrInvalidBlob
	}
	peer := string(data[offset : offset+peerLen])

	km := &envelope.KeyMaterial{
		SessionKey:    sessionKey,
		IntegrityKey:  integrityKey,
		EstablishedAt: time.UnixMilli(establishedAt),
		ExpiresAt:     time.UnixMilli(expiresAt),
	}
	if err := km.Validate(); err != nil {
		km.Zeroize()
		return nil, qerrors.ErrInvalidBlob
	}

	return &blobRecord{
		LocalID: local,
		PeerID:  peer,
		Suite:   suite,
		KM:      km,
	}, nil
}
