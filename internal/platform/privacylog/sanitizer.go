// Package privacylog keeps key material and account identities out of logs.
// Records pass through a handler that redacts by attribute name and by
// value shape, and fingerprints ledger identities so lines stay correlatable
// within one process.
package privacylog

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
)

const redactedValue = "[REDACTED]"

type verdict uint8

const (
	keep verdict = iota
	redact
	fingerprint
	// public values are known to carry 32-byte hashes and skip shape checks.
	public
)

var (
	bootNonce = randomNonce()

	identityKeys = map[string]struct{}{
		"account":        {},
		"sender":         {},
		"address":        {},
		"ledger_address": {},
		"chain_address":  {},
		"auth_key":       {},
		"public_key":     {},
	}
	publicHashKeys = map[string]struct{}{
		"tx_hash":    {},
		"hash":       {},
		"digest":     {},
		"state_root": {},
		"object_id":  {},
		"event_id":   {},
	}
	sensitiveKeyParts = []string{"secret", "private", "mnemonic", "seed", "token", "password", "passphrase", "authorization", "signature"}
)

func classify(key string) verdict {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return redact
		}
	}
	if _, ok := identityKeys[key]; ok {
		return fingerprint
	}
	if strings.HasSuffix(key, "_account") || strings.HasSuffix(key, "_address") {
		return fingerprint
	}
	if _, ok := publicHashKeys[key]; ok || strings.HasSuffix(key, "_hash") {
		return public
	}
	return keep
}

// SanitizingHandler wraps another slog.Handler.
type SanitizingHandler struct {
	next slog.Handler
}

func WrapHandler(next slog.Handler) slog.Handler {
	if next == nil {
		return nil
	}
	return &SanitizingHandler{next: next}
}

func (h *SanitizingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizingHandler) Handle(ctx context.Context, rec slog.Record) error {
	out := slog.NewRecord(rec.Time, rec.Level, scrubText(rec.Message), rec.PC)
	rec.Attrs(func(attr slog.Attr) bool {
		out.AddAttrs(SanitizeAttr(attr))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		out[i] = SanitizeAttr(attr)
	}
	return &SanitizingHandler{next: h.next.WithAttrs(out)}
}

func (h *SanitizingHandler) WithGroup(name string) slog.Handler {
	return &SanitizingHandler{next: h.next.WithGroup(name)}
}

// SanitizeAttr applies the name rules first, then scrubs string-like values
// that look like secrets whatever they are called.
func SanitizeAttr(attr slog.Attr) slog.Attr {
	key := strings.TrimSpace(attr.Key)
	v := attr.Value.Resolve()
	switch classify(key) {
	case redact:
		return slog.String(key, redactedValue)
	case fingerprint:
		return slog.String(fingerprintKey(key), FingerprintID(v.String()))
	case public:
		return slog.Attr{Key: key, Value: v}
	}
	switch v.Kind() {
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, a := range group {
			out[i] = SanitizeAttr(a)
		}
		return slog.Group(key, out...)
	case slog.KindString:
		return slog.String(key, scrubValue(key, v.String()))
	case slog.KindAny:
		text := fmt.Sprint(v.Any())
		if scrubbed := scrubValue(key, text); scrubbed != text {
			return slog.String(key, scrubbed)
		}
	}
	return slog.Attr{Key: key, Value: v}
}

// SanitizeArgs is SanitizeAttr for loose key/value argument lists.
func SanitizeArgs(args ...any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 >= len(args) {
			out = append(out, args[i])
			continue
		}
		attr := SanitizeAttr(slog.Any(key, args[i+1]))
		i++
		out = append(out, attr.Key, attr.Value.Any())
	}
	return out
}

// FingerprintID is a short salted digest; stable for one process only.
func FingerprintID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(trimmed + "|" + bootNonce))
	return "fp_" + hex.EncodeToString(sum[:8])
}

func fingerprintKey(key string) string {
	if strings.HasSuffix(strings.ToLower(key), "_fp") {
		return key
	}
	return key + "_fp"
}

func randomNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "fallback_nonce"
	}
	return hex.EncodeToString(buf)
}
