package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "hooks.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

// IsEnvelope reports whether a stored value was sealed by this package.
func IsEnvelope(value []byte) bool {
	return strings.HasPrefix(string(value), envelopePrefix)
}

func ParseEnvelopeMetadata(ciphertext []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Version: env.Version, Algorithm: env.Algorithm}, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	if strings.TrimSpace(env.Algorithm) == "" {
		env.Algorithm = envelopeAlgorithm
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func decodeEnvelope(ciphertext []byte) (envelope, error) {
	if !IsEnvelope(ciphertext) {
		return envelope{}, fmt.Errorf("security: value is not a sealed secret")
	}
	var env envelope
	if err := json.Unmarshal([]byte(strings.TrimPrefix(string(ciphertext), envelopePrefix)), &env); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	env.KeyID = strings.TrimSpace(env.KeyID)
	env.Algorithm = strings.TrimSpace(strings.ToLower(env.Algorithm))
	if env.Algorithm == "" {
		env.Algorithm = envelopeAlgorithm
	}
	if env.Algorithm != envelopeAlgorithm {
		return envelope{}, fmt.Errorf("security: unsupported algorithm %q", env.Algorithm)
	}
	return env, nil
}

func encodePayload(value []byte) string {
	return base64.StdEncoding.EncodeToString(value)
}

func decodePayload(value string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(strings.TrimSpace(value))
}
