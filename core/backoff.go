package core

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// NextBackoff returns the delay before the next attempt once attempts have
// failed: initial*2^(attempts-1), capped at max.
func NextBackoff(initial, max time.Duration, attempts int) time.Duration {
	if initial <= 0 {
		return 0
	}
	if attempts < 1 {
		attempts = 1
	}
	multiplier := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(initial) * multiplier)
	if delay <= 0 || (max > 0 && delay > max) {
		if max > 0 {
			return max
		}
		return initial
	}
	return delay
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	delay := at.Sub(now)
	if delay < 0 {
		return 0, false
	}
	return delay, true
}

// truncateString cuts s to at most maxBytes without splitting a UTF-8 sequence.
func truncateString(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}

func headerLookup(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
