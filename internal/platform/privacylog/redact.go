package privacylog

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	// A bare 32-byte hex run is the shape of an ed25519 seed or a
	// secp256k1 scalar. Longer runs (signatures, encoded transactions)
	// have no word boundary at 64 and pass.
	secretHexPattern = regexp.MustCompile(`(?i)\b(?:0x)?[0-9a-f]{64}\b`)
	// Bech32 secret keys as exported by wallets.
	bech32SecretPattern = regexp.MustCompile(`(?i)\broochsecretkey1[02-9ac-hj-np-z]+\b`)
	mnemonicWordCounts  = map[int]struct{}{12: {}, 15: {}, 18: {}, 21: {}, 24: {}}
)

// scrubValue redacts secret-shaped content inside a free-form value.
func scrubValue(key, text string) string {
	if looksLikeMnemonic(text) {
		return redactedValue
	}
	if strings.HasSuffix(strings.ToLower(key), "url") {
		text = scrubURL(text)
	}
	return scrubText(text)
}

// scrubText replaces embedded secret keys; the rest of the text survives.
func scrubText(text string) string {
	text = bech32SecretPattern.ReplaceAllString(text, redactedValue)
	return secretHexPattern.ReplaceAllString(text, redactedValue)
}

// looksLikeMnemonic reports a checksummed BIP-39 phrase.
func looksLikeMnemonic(text string) bool {
	words := strings.Fields(text)
	if _, ok := mnemonicWordCounts[len(words)]; !ok {
		return false
	}
	return bip39.IsMnemonicValid(strings.Join(words, " "))
}

// scrubURL drops credentials and query values, which endpoints use for API
// keys.
func scrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.User != nil {
		u.User = url.User(redactedValue)
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			q.Set(k, redactedValue)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}
