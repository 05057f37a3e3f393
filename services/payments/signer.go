package payments

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// passwordParam is the protocol name of the secret slot in the canonical map.
const passwordParam = "Password"

// Signer derives and verifies request signatures over flat parameter maps.
type Signer interface {
	Sign(params map[string]interface{}, secret string) string
	Verify(params map[string]interface{}, provided string, secret string) bool
}

// SHA256Signer is the protocol signer: root level scalar values and the
// merchant secret are sorted by key, concatenated, and hashed.
type SHA256Signer struct{}

// Sign returns the lowercase hex signature of the params under the secret.
func (SHA256Signer) Sign(params map[string]interface{}, secret string) string {
	sum := sha256.Sum256([]byte(Canonicalize(params, secret)))
	return hex.EncodeToString(sum[:])
}

// Verify compares the provided signature against the derived one in
// constant time, ignoring hex case. The expected value never leaves here.
func (s SHA256Signer) Verify(params map[string]interface{}, provided string, secret string) bool {
	expected := s.Sign(params, secret)
	candidate := strings.ToLower(provided)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

// Canonicalize builds the signing string: root level scalar entries plus the
// secret under the Password key, sorted by the byte order of the keys, values
// concatenated with no separator.
func Canonicalize(params map[string]interface{}, secret string) string {
	entries := make(map[string]string, len(params)+1)
	for key, value := range params {
		scalar, ok := scalarString(value)
		if !ok {
			continue
		}
		entries[key] = scalar
	}
	entries[passwordParam] = secret

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(entries[key])
	}
	return sb.String()
}

// scalarString serializes a root level value for signing. Nested objects,
// arrays and nulls are excluded. Numbers keep the exact form the caller
// sent when the envelope was decoded with UseNumber, booleans are the
// lowercase words, strings pass through untouched.
func scalarString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
