package storage

import "fmt"

// NotFoundError reports that no object exists at the given reference.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("storage: object not found: %s", e.Ref)
}

// ChecksumMismatchError reports that uploaded content did not match the
// caller-declared checksum. Retrying with the same bytes will fail again;
// the caller's input must change.
type ChecksumMismatchError struct {
	Ref      string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("storage: checksum mismatch for %s: expected %s, got %s", e.Ref, e.Expected, e.Actual)
}

// AlreadyExistsError reports a conflicting object at the same reference with
// a different checksum. The existing object is never overwritten.
type AlreadyExistsError struct {
	Ref string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("storage: object already exists with different content: %s", e.Ref)
}

// PathError reports a reference that resolves outside the storage root or a
// filesystem permission denial. The reference is rejected before any part of
// the operation executes.
type PathError struct {
	Ref    string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("storage: rejected reference %q: %s", e.Ref, e.Reason)
}

// OpError wraps a lower-level I/O failure with the operation and the
// reference it was attempted against.
type OpError struct {
	Op  string // "upload", "download", "delete", "metadata"
	Ref string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Ref, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }
