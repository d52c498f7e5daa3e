package docent

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptionManager encrypts marked fields with XChaCha20-Poly1305.
// Keys are 32 bytes, exchanged in standard base64; ciphertexts are
// base64(nonce || sealed). Encryption is applied only at the storage
// boundary, so in-memory entities and dirty-tracking snapshots always
// hold plaintext.
type EncryptionManager struct {
	mu  sync.RWMutex
	key []byte
}

// NewEncryptionManager builds a manager with no key set. Encrypt and
// Decrypt fail with ErrKeyNotSet until SetKey is called.
func NewEncryptionManager() *EncryptionManager {
	return &EncryptionManager{}
}

// defaultEncryption backs collections built without WithEncryption.
var defaultEncryption = NewEncryptionManager()

// DefaultEncryption returns the process-wide encryption manager.
func DefaultEncryption() *EncryptionManager { return defaultEncryption }

// GenerateEncryptionKey returns a fresh random key in its base64
// exchange form.
func GenerateEncryptionKey() string {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("docent: cannot read randomness: %v", err))
	}
	return base64.StdEncoding.EncodeToString(key)
}

// SetKey installs the active key from its base64 form.
func (m *EncryptionManager) SetKey(key string) error {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return fmt.Errorf("%w: key is not valid base64", ErrInvalidKey)
	}
	if len(raw) != chacha20poly1305.KeySize {
		return fmt.Errorf("%w: key must decode to %d bytes, got %d",
			ErrInvalidKey, chacha20poly1305.KeySize, len(raw))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = raw
	return nil
}

// HasKey reports whether a key is installed.
func (m *EncryptionManager) HasKey() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key != nil
}

func (m *EncryptionManager) activeKey() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.key == nil {
		return nil, ErrKeyNotSet
	}
	return m.key, nil
}

// Encrypt seals plaintext under the active key. Each call draws a fresh
// random nonce, so encrypting the same value twice yields different
// ciphertexts.
func (m *EncryptionManager) Encrypt(plaintext string) (string, error) {
	key, err := m.activeKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: cannot read nonce: %v", Err, err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. A wrong key or
// tampered ciphertext fails with ErrInvalidKey.
func (m *EncryptionManager) Decrypt(ciphertext string) (string, error) {
	key, err := m.activeKey()
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext is not valid base64", ErrInvalidKey)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrInvalidKey)
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: cannot decrypt", ErrInvalidKey)
	}
	return string(plaintext), nil
}

// RotationResult summarizes one key rotation pass.
type RotationResult struct {
	// Rotated counts documents rewritten under the new key.
	Rotated int

	// Failed counts documents whose encrypted fields could not be
	// opened with the old key. They are left untouched.
	Failed int
}

// RotateEncryptionKey re-encrypts every encrypted field of the
// collection from oldKey to newKey, soft-deleted documents included.
// The pass is best-effort: documents that fail to decrypt are counted
// and skipped, and the collection's active key is switched to newKey
// only when none failed. Store errors abort the pass mid-way; rerunning
// it is safe because already-rotated documents count as failures under
// the old key and are left alone.
func RotateEncryptionKey[T any](ctx context.Context, c *Collection[T], oldKey, newKey string) (RotationResult, error) {
	var res RotationResult

	oldMgr := NewEncryptionManager()
	if err := oldMgr.SetKey(oldKey); err != nil {
		return res, err
	}
	newMgr := NewEncryptionManager()
	if err := newMgr.SetKey(newKey); err != nil {
		return res, err
	}

	var encrypted []*fieldSpec
	for _, f := range c.schema.fields {
		if f.encrypted {
			encrypted = append(encrypted, f)
		}
	}
	if len(encrypted) == 0 {
		return res, nil
	}

	coll, err := c.storeCollection()
	if err != nil {
		return res, err
	}
	cursor, err := coll.Find(ctx, nil, nil)
	if err != nil {
		return res, fmt.Errorf("%w: find in %s: %v", Err, c.name, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		doc := cursor.Current()
		set := make(map[string]any)
		failed := false
		for _, spec := range encrypted {
			raw, ok := doc[spec.key]
			if !ok || raw == nil {
				continue
			}
			ciphertext, ok := raw.(string)
			if !ok {
				failed = true
				break
			}
			plaintext, err := oldMgr.Decrypt(ciphertext)
			if err != nil {
				failed = true
				break
			}
			rewrapped, err := newMgr.Encrypt(plaintext)
			if err != nil {
				return res, err
			}
			set[spec.key] = rewrapped
		}
		if failed {
			res.Failed++
			c.logger.Warn("rotation skipped document", "collection", c.name, "id", doc["_id"])
			continue
		}
		if len(set) == 0 {
			continue
		}
		if _, err := coll.UpdateOne(ctx, map[string]any{"_id": doc["_id"]}, map[string]any{"$set": set}); err != nil {
			return res, fmt.Errorf("%w: rotate in %s: %v", Err, c.name, err)
		}
		res.Rotated++
	}
	if err := cursor.Err(); err != nil {
		return res, fmt.Errorf("%w: cursor on %s: %v", Err, c.name, err)
	}

	if res.Failed == 0 {
		if err := c.enc.SetKey(newKey); err != nil {
			return res, err
		}
		c.logger.Info("encryption key rotated", "collection", c.name, "rotated", res.Rotated)
	} else {
		c.logger.Warn("encryption key not switched",
			"collection", c.name, "rotated", res.Rotated, "failed", res.Failed)
	}
	return res, nil
}
