package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrVaultDestroyed = errors.New("vault has been destroyed")
	ErrSecretNotFound = errors.New("secret not found")
	ErrUnknownSecret  = errors.New("unknown secret reference")
)

var secretRefPattern = regexp.MustCompile(`\{\{secrets\.([A-Za-z0-9_.-]+)\}\}`)

type secret struct {
	ciphertext []byte
	createdAt  time.Time
}

// Status reports entry count and lifecycle state, never values.
type Status struct {
	SecretCount int
	IsDestroyed bool
}

// Vault is an in-memory secret store scoped to a single provisioning run.
// Values are encrypted with AES-256-GCM under a key that exists only for
// the lifetime of this instance. Destroy is permanent: the key is zeroed
// and every call afterwards fails with ErrVaultDestroyed.
type Vault struct {
	mu        sync.Mutex
	aead      cipher.AEAD
	key       []byte
	secrets   map[string]secret
	destroyed bool
}

func New() (*Vault, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate vault seed: %w", err)
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, seed, nil, []byte("forgeflow-vault-v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}
	zero(seed)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init GCM: %w", err)
	}

	return &Vault{
		aead:    aead,
		key:     key,
		secrets: make(map[string]secret),
	}, nil
}

func (v *Vault) Store(key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return ErrVaultDestroyed
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := v.aead.Seal(nonce, nonce, []byte(value), nil)
	v.secrets[key] = secret{ciphertext: ciphertext, createdAt: time.Now()}
	return nil
}

func (v *Vault) Retrieve(key string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.retrieveLocked(key)
}

func (v *Vault) retrieveLocked(key string) (string, error) {
	if v.destroyed {
		return "", ErrVaultDestroyed
	}

	entry, ok := v.secrets[key]
	if !ok {
		return "", ErrSecretNotFound
	}

	nonceSize := v.aead.NonceSize()
	if len(entry.ciphertext) < nonceSize {
		return "", fmt.Errorf("corrupt vault entry for %q", key)
	}
	nonce, sealed := entry.ciphertext[:nonceSize], entry.ciphertext[nonceSize:]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret %q: %w", key, err)
	}
	return string(plaintext), nil
}

// Resolve expands {{secrets.<key>}} references in a template string.
// An unresolved reference fails the whole expansion with ErrUnknownSecret.
func (v *Vault) Resolve(template string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return "", ErrVaultDestroyed
	}

	var resolveErr error
	resolved := secretRefPattern.ReplaceAllStringFunc(template, func(ref string) string {
		name := secretRefPattern.FindStringSubmatch(ref)[1]
		value, err := v.retrieveLocked(name)
		if err != nil {
			if resolveErr == nil {
				resolveErr = fmt.Errorf("reference %q: %w", name, ErrUnknownSecret)
			}
			return ref
		}
		return value
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

// Destroy drops all ciphertext and zeroes the key. Idempotent and safe to
// call from error paths; the vault rejects every later call.
func (v *Vault) Destroy() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.destroyed {
		return
	}

	for key, entry := range v.secrets {
		zero(entry.ciphertext)
		delete(v.secrets, key)
	}
	zero(v.key)
	v.aead = nil
	v.destroyed = true
}

func (v *Vault) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Status{
		SecretCount: len(v.secrets),
		IsDestroyed: v.destroyed,
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
