// Package hashchain provides the tamper-evident digest primitives for the
// timeline event chain: a closed set of digest algorithms, canonical JSON
// serialization, and the event hash computation shared by event creation and
// chain verification. Both code paths go through Engine.ComputeEventHash so
// the two can never drift apart.
package hashchain

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Algorithm selects the digest function used by an Engine. The set is closed:
// the algorithm is chosen once at engine construction and used for every
// digest the engine produces.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// GenesisSentinel is hashed in place of the previous digest for the first
// event of a subject's timeline.
const GenesisSentinel = "GENESIS"

// Engine computes digests with a fixed algorithm.
type Engine struct {
	alg Algorithm
}

// NewEngine returns an Engine for alg, or a validation error for an unknown
// algorithm name.
func NewEngine(alg Algorithm) (*Engine, error) {
	switch alg {
	case SHA256, SHA512:
		return &Engine{alg: alg}, nil
	default:
		return nil, &ValidationError{Field: "algorithm", Reason: fmt.Sprintf("unsupported digest algorithm %q", alg)}
	}
}

// Algorithm returns the algorithm this engine was constructed with.
func (e *Engine) Algorithm() Algorithm { return e.alg }

// Digest hashes text with the engine's algorithm and returns the lowercase
// hex digest.
func (e *Engine) Digest(text string) Hash {
	var sum string
	switch e.alg {
	case SHA512:
		s := sha512.Sum512([]byte(text))
		sum = hex.EncodeToString(s[:])
	default:
		s := sha256.Sum256([]byte(text))
		sum = hex.EncodeToString(s[:])
	}
	return Hash{value: sum}
}

// CanonicalJSON serializes v deterministically: object keys sorted
// lexicographically, no insignificant whitespace, recursive for nested
// structures. Two logically identical payloads with different key orderings
// always canonicalize to the same bytes.
func CanonicalJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("hashchain: canonicalize: %w", err)
	}
	// Encoder appends a newline that is not part of the canonical form.
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// ComputeEventHash computes the digest for one event from its logical
// content plus the previous event's digest. previousHash is the prior
// digest's hex text, or empty for a genesis event.
//
// The function is pure: no I/O, no side effects, and identical inputs always
// yield an identical digest. Callers must pass eventTime with sub-microsecond
// precision already truncated if the value round-trips through a store with
// microsecond resolution, otherwise recomputation will not match.
func (e *Engine) ComputeEventHash(
	tenantID, subjectID, eventType string,
	schemaVersion int,
	eventTime time.Time,
	payload map[string]any,
	previousHash string,
) (Hash, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return Hash{}, err
	}

	prev := previousHash
	if prev == "" {
		prev = GenesisSentinel
	}

	base := strings.Join([]string{
		tenantID,
		subjectID,
		eventType,
		strconv.Itoa(schemaVersion),
		// Normalized to UTC so the digest is a function of the instant, not
		// of whatever location a database scan happens to return.
		eventTime.UTC().Format(time.RFC3339Nano),
		canonical,
		prev,
	}, "|")

	return e.Digest(base), nil
}
