package hashchain

import "fmt"

// ValidationError reports a construction-time invariant violation on a value
// object. These are unrecoverable for the operation that built the value and
// must abort it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hashchain: invalid %s: %s", e.Field, e.Reason)
}

// Hash is an opaque fixed-length hexadecimal digest. A non-zero Hash is
// always well-formed: lowercase hex, exactly 64 (256-bit) or 128 (512-bit)
// characters. Immutable once constructed.
type Hash struct {
	value string
}

// ParseHash validates and normalizes a hex digest string. Uppercase hex is
// accepted and lowercased; anything else is rejected with a ValidationError.
func ParseHash(s string) (Hash, error) {
	if s == "" {
		return Hash{}, &ValidationError{Field: "hash", Reason: "must be a non-empty string"}
	}
	if len(s) != 64 && len(s) != 128 {
		return Hash{}, &ValidationError{
			Field:  "hash",
			Reason: fmt.Sprintf("must be 64 or 128 hex characters, got %d", len(s)),
		}
	}
	buf := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f':
			buf[i] = c
		case c >= 'A' && c <= 'F':
			buf[i] = c + ('a' - 'A')
		default:
			return Hash{}, &ValidationError{
				Field:  "hash",
				Reason: fmt.Sprintf("non-hexadecimal character %q at position %d", c, i),
			}
		}
	}
	return Hash{value: string(buf)}, nil
}

// String returns the lowercase hex text of the digest.
func (h Hash) String() string { return h.value }

// IsZero reports whether h is the zero value (no digest).
func (h Hash) IsZero() bool { return h.value == "" }

// Equal compares two digests.
func (h Hash) Equal(other Hash) bool { return h.value == other.value }

// EventChain pairs an event's digest with the optional digest of its
// predecessor. Invariants are enforced at construction and never relaxed:
// the current digest must be present, and a chain may not reference itself.
type EventChain struct {
	current  Hash
	previous *Hash
}

// NewEventChain constructs a chain link. previous == nil denotes a genesis
// event, the first event of a subject's timeline.
func NewEventChain(current Hash, previous *Hash) (EventChain, error) {
	if current.IsZero() {
		return EventChain{}, &ValidationError{Field: "current_hash", Reason: "must be present"}
	}
	if previous != nil {
		if previous.IsZero() {
			return EventChain{}, &ValidationError{Field: "previous_hash", Reason: "must not be the zero hash"}
		}
		if previous.Equal(current) {
			return EventChain{}, &ValidationError{Field: "previous_hash", Reason: "must not equal current_hash (self-referencing chain)"}
		}
	}
	if previous != nil {
		p := *previous
		return EventChain{current: current, previous: &p}, nil
	}
	return EventChain{current: current}, nil
}

// Current returns the event's own digest.
func (c EventChain) Current() Hash { return c.current }

// Previous returns the predecessor digest and whether one is present.
func (c EventChain) Previous() (Hash, bool) {
	if c.previous == nil {
		return Hash{}, false
	}
	return *c.previous, true
}

// IsGenesis reports whether this link starts a subject's timeline.
func (c EventChain) IsGenesis() bool { return c.previous == nil }
