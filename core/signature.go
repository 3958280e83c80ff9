package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery"
	HeaderTimestamp = "X-Webhook-Timestamp"

	SignaturePrefix = "sha256="
	SecretPrefix    = "whsec_"
	secretBytes     = 32
)

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func SignatureHeaderValue(secret string, body []byte) string {
	return SignaturePrefix + Sign(secret, body)
}

// VerifySignature checks a header value in the "sha256=<hex>" form (the prefix
// is optional) against body.
func VerifySignature(secret string, body []byte, header string) bool {
	provided := strings.TrimSpace(header)
	provided = strings.TrimPrefix(provided, SignaturePrefix)
	if provided == "" || strings.TrimSpace(secret) == "" {
		return false
	}
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(provided)), []byte(expected)) == 1
}

func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate webhook secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(buf), nil
}

// MaskSecret keeps the prefix and the last four characters.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	body := strings.TrimPrefix(secret, SecretPrefix)
	if len(body) <= 4 {
		return SecretPrefix + "****"
	}
	return SecretPrefix + "****" + body[len(body)-4:]
}

type signatureHeaderOptions struct {
	Header    string
	UserAgent string
	Event     string
	Delivery  string
	Timestamp time.Time
}

func deliveryHeaders(secret string, body []byte, opts signatureHeaderOptions) map[string]string {
	header := strings.TrimSpace(opts.Header)
	if header == "" {
		header = HeaderSignature
	}
	headers := map[string]string{
		"Content-Type":  "application/json",
		header:          SignatureHeaderValue(secret, body),
		HeaderEvent:     opts.Event,
		HeaderDelivery:  opts.Delivery,
		HeaderTimestamp: strconv.FormatInt(opts.Timestamp.Unix(), 10),
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		headers["User-Agent"] = ua
	}
	return headers
}
