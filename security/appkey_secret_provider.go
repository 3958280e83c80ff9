package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-hooks/core"
)

type Option func(*AppKeySecretProvider)

type appKey struct {
	id      string
	version int
	key     []byte
}

// AppKeySecretProvider seals webhook signing secrets with AES-256-GCM. New
// secrets use the primary key; previous keys stay readable during rotation.
type AppKeySecretProvider struct {
	primary           appKey
	previous          []appKey
	plaintextFallback bool
	pending           []pendingKey
}

type pendingKey struct {
	id       string
	version  int
	material []byte
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.primary.id = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.primary.version = version
		}
	}
}

// WithPreviousKey keeps secrets sealed under a retired key decryptable.
func WithPreviousKey(id string, version int, keyMaterial []byte) Option {
	return func(provider *AppKeySecretProvider) {
		provider.pending = append(provider.pending, pendingKey{
			id:       strings.TrimSpace(id),
			version:  version,
			material: bytes.TrimSpace(keyMaterial),
		})
	}
}

// WithPlaintextFallback returns values without the envelope prefix as-is, so
// secrets written before encryption was enabled keep working.
func WithPlaintextFallback() Option {
	return func(provider *AppKeySecretProvider) {
		provider.plaintextFallback = true
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		primary: appKey{id: "app-key", version: 1, key: normalizeKey(key)},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	for _, candidate := range provider.pending {
		if candidate.id == "" || len(candidate.material) == 0 {
			return nil, fmt.Errorf("security: previous key requires id and key material")
		}
		version := candidate.version
		if version <= 0 {
			version = 1
		}
		if candidate.id == provider.primary.id && version == provider.primary.version {
			return nil, fmt.Errorf("security: previous key %s/v%d collides with the primary key", candidate.id, version)
		}
		provider.previous = append(provider.previous, appKey{
			id:      candidate.id,
			version: version,
			key:     normalizeKey(candidate.material),
		})
	}
	provider.pending = nil
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.primary.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, []byte(p.primary.id))
	return encodeEnvelope(envelope{
		KeyID:      p.primary.id,
		Version:    p.primary.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodePayload(nonce),
		Ciphertext: encodePayload(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("security: ciphertext is required")
	}
	if !IsEnvelope(ciphertext) && p.plaintextFallback {
		return append([]byte(nil), ciphertext...), nil
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, ok := p.lookup(env.KeyID, env.Version)
	if !ok {
		return nil, fmt.Errorf("security: unknown key %s/v%d", env.KeyID, env.Version)
	}
	nonce, err := decodePayload(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	payload, err := decodePayload(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext payload: %w", err)
	}
	gcm, err := newGCM(key.key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce size %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, []byte(key.id))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// NeedsRotation reports whether a stored value should be re-sealed under the
// primary key.
func (p *AppKeySecretProvider) NeedsRotation(ciphertext []byte) bool {
	if p == nil {
		return false
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return true
	}
	return meta.KeyID != p.primary.id || meta.Version != p.primary.version
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.primary.id
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.primary.version
}

func (p *AppKeySecretProvider) lookup(id string, version int) (appKey, bool) {
	if version <= 0 {
		version = 1
	}
	if id == p.primary.id && version == p.primary.version {
		return p.primary, true
	}
	for _, key := range p.previous {
		if key.id == id && key.version == version {
			return key, true
		}
	}
	return appKey{}, false
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
