package webhooks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
)

var (
	ErrMissingSignature = errors.New("webhooks: signature header is missing")
	ErrInvalidSignature = errors.New("webhooks: signature does not match payload")
	ErrStaleTimestamp   = errors.New("webhooks: timestamp outside tolerance")
)

type Request struct {
	Headers map[string]string
	Body    []byte
}

type Verifier interface {
	Verify(ctx context.Context, req Request) error
}

// HMACVerifier checks the sha256 signature produced by the delivery worker.
// A zero Tolerance disables the timestamp check.
type HMACVerifier struct {
	Secret    string
	Header    string
	Tolerance time.Duration
	Now       func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		Secret:    secret,
		Header:    core.HeaderSignature,
		Tolerance: 5 * time.Minute,
	}
}

func (v *HMACVerifier) Verify(_ context.Context, req Request) error {
	if v == nil || strings.TrimSpace(v.Secret) == "" {
		return errors.New("webhooks: verifier secret is required")
	}
	header := strings.TrimSpace(v.Header)
	if header == "" {
		header = core.HeaderSignature
	}
	signature := headerValue(req.Headers, header)
	if signature == "" {
		return ErrMissingSignature
	}
	if !core.VerifySignature(v.Secret, req.Body, signature) {
		return ErrInvalidSignature
	}
	if v.Tolerance <= 0 {
		return nil
	}
	seconds, err := strconv.ParseInt(headerValue(req.Headers, core.HeaderTimestamp), 10, 64)
	if err != nil {
		return ErrStaleTimestamp
	}
	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	skew := now.Sub(time.Unix(seconds, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.Tolerance {
		return ErrStaleTimestamp
	}
	return nil
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
