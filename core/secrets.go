package core

import (
	"context"
	"fmt"
)

func sealSecret(ctx context.Context, provider SecretProvider, plaintext string) (string, error) {
	if provider == nil {
		return plaintext, nil
	}
	sealed, err := provider.Encrypt(ctx, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("core: encrypt webhook secret: %w", err)
	}
	return string(sealed), nil
}

func openSecret(ctx context.Context, provider SecretProvider, stored string) (string, error) {
	if provider == nil {
		return stored, nil
	}
	plaintext, err := provider.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", fmt.Errorf("core: decrypt webhook secret: %w", err)
	}
	return string(plaintext), nil
}
