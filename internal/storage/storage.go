package storage

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ChunkSize is the fixed size of download stream chunks.
const ChunkSize = 64 * 1024

// Backend is the contract shared by the filesystem and S3 object stores.
// Uploads are idempotent by checksum: re-uploading identical content to an
// existing reference is a no-op success, while different content at the same
// reference is a conflict. Content at a reference is immutable once written.
type Backend interface {
	// Upload stores content at ref after verifying it digests to
	// expectedChecksum (lowercase SHA-256 hex). The object becomes visible
	// at ref atomically; a failed upload leaves nothing behind.
	Upload(ctx context.Context, content io.Reader, ref, expectedChecksum, contentType string, custom map[string]string) (*UploadResult, error)

	// Download opens a chunked stream over the object's bytes. The caller
	// must Close the reader.
	Download(ctx context.Context, ref string) (*ChunkReader, error)

	// Delete removes the object and its metadata. Returns false, not an
	// error, when nothing existed at ref.
	Delete(ctx context.Context, ref string) (bool, error)

	// Exists reports whether an object is stored at ref.
	Exists(ctx context.Context, ref string) (bool, error)

	// GetMetadata returns the object's metadata without its content.
	GetMetadata(ctx context.Context, ref string) (*ObjectMetadata, error)

	// GenerateDownloadURL mints a time-boxed URL granting read access to the
	// object until expiry. Fails with NotFoundError for a missing ref.
	GenerateDownloadURL(ctx context.Context, ref string, expiry time.Duration) (string, error)

	// Provider returns the backend label ("filesystem", "s3").
	Provider() string
}

// UploadResult describes a stored object after a successful (or idempotent)
// upload.
type UploadResult struct {
	Ref        string    `json:"ref"`
	Checksum   string    `json:"checksum"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ObjectMetadata is the sidecar record kept alongside every object,
// independent of the backend's native metadata capabilities.
type ObjectMetadata struct {
	Ref         string            `json:"ref"`
	Checksum    string            `json:"checksum"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Custom      map[string]string `json:"custom,omitempty"`
}

// ObjectKey builds the canonical reference path for a document version:
// tenants/{tenant}/documents/{document_id}/v{version}/{filename}.
func ObjectKey(tenantID, documentID string, version int, filename string) string {
	return fmt.Sprintf("tenants/%s/documents/%s/v%d/%s", tenantID, documentID, version, filename)
}

// ChunkReader streams an object in fixed-size chunks. Each Next call reads
// one chunk; a cancelled context stops the stream on the following call so a
// cancelled download promptly releases its handle via Close.
type ChunkReader struct {
	ctx context.Context
	rc  io.ReadCloser
	buf []byte
}

// NewChunkReader wraps rc in a chunked stream bound to ctx.
func NewChunkReader(ctx context.Context, rc io.ReadCloser) *ChunkReader {
	return &ChunkReader{ctx: ctx, rc: rc, buf: make([]byte, ChunkSize)}
}

// Next returns the next chunk of at most ChunkSize bytes. It returns io.EOF
// after the final chunk. The returned slice is only valid until the next
// call.
func (r *ChunkReader) Next() ([]byte, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	n, err := io.ReadFull(r.rc, r.buf)
	if n > 0 {
		return r.buf[:n], nil
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return nil, err
}

// Close releases the underlying reader.
func (r *ChunkReader) Close() error { return r.rc.Close() }

// WriteTo drains the remaining chunks into w. Implements io.WriterTo for
// handlers that stream an object into a response body.
func (r *ChunkReader) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for {
		chunk, err := r.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
		n, werr := w.Write(chunk)
		total += int64(n)
		if werr != nil {
			return total, werr
		}
	}
}
