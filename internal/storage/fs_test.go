package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newFSStore(t *testing.T) *FSStore {
	t.Helper()
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080", NewTokenStore(nil))
	require.NoError(t, err)
	return s
}

func drain(t *testing.T, r *ChunkReader) []byte {
	t.Helper()
	defer r.Close()
	var buf bytes.Buffer
	_, err := r.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestFSUploadDownloadRoundtrip(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("hello timeline")
	ref := ObjectKey("acme", "doc-1", 1, "report.pdf")

	res, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "application/pdf", map[string]string{"source": "test"})
	require.NoError(t, err)
	assert.Equal(t, ref, res.Ref)
	assert.Equal(t, sha256Hex(content), res.Checksum)
	assert.Equal(t, int64(len(content)), res.Size)
	assert.False(t, res.UploadedAt.IsZero())

	r, err := s.Download(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, content, drain(t, r))
}

func TestFSUploadIdempotentOnSameChecksum(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("same bytes")
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")

	first, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", nil)
	require.NoError(t, err)

	second, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, first.Checksum, second.Checksum)
	assert.True(t, first.UploadedAt.Equal(second.UploadedAt), "idempotent re-upload reports the original upload time")
}

func TestFSUploadConflictOnDifferentContent(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")

	orig := []byte("original")
	_, err := s.Upload(ctx, bytes.NewReader(orig), ref, sha256Hex(orig), "text/plain", nil)
	require.NoError(t, err)

	other := []byte("different")
	_, err = s.Upload(ctx, bytes.NewReader(other), ref, sha256Hex(other), "text/plain", nil)
	var conflict *AlreadyExistsError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ref, conflict.Ref)

	// Original content is untouched.
	r, err := s.Download(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, orig, drain(t, r))
}

func TestFSUploadChecksumMismatchLeavesNothing(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("actual bytes")
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")

	_, err := s.Upload(ctx, bytes.NewReader(content), ref, strings.Repeat("0", 64), "text/plain", nil)
	var mismatch *ChecksumMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, sha256Hex(content), mismatch.Actual)

	ok, err := s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)

	// No temp file debris either.
	entries, err := os.ReadDir(filepath.Dir(filepath.Join(s.root, filepath.FromSlash(ref))))
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestFSUploadSidecarFailureLeavesNothing(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("doomed upload")
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")

	// Occupy the sidecar path with a directory so the metadata write fails
	// after the content has been received and verified.
	path := filepath.Join(s.root, filepath.FromSlash(ref))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.Mkdir(path+metaSuffix, 0o750))

	_, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", nil)
	var op *OpError
	require.ErrorAs(t, err, &op)

	// Nothing was published: no object, no sidecar.
	ok, err := s.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = os.Stat(path + metaSuffix)
	assert.True(t, os.IsNotExist(err))
}

func TestFSRejectsTraversal(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()

	refs := []string{
		"",
		"/etc/passwd",
		"../outside.txt",
		"tenants/../../outside.txt",
		"tenants/acme/../../../outside.txt",
		".",
	}
	for _, ref := range refs {
		t.Run("ref="+ref, func(t *testing.T) {
			var perr *PathError

			_, err := s.Upload(ctx, bytes.NewReader([]byte("x")), ref, sha256Hex([]byte("x")), "text/plain", nil)
			assert.ErrorAs(t, err, &perr)

			_, err = s.Download(ctx, ref)
			assert.ErrorAs(t, err, &perr)

			_, err = s.Delete(ctx, ref)
			assert.ErrorAs(t, err, &perr)

			_, err = s.Exists(ctx, ref)
			assert.ErrorAs(t, err, &perr)

			_, err = s.GetMetadata(ctx, ref)
			assert.ErrorAs(t, err, &perr)
		})
	}
}

func TestFSDeleteIdempotentAndPrunes(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("to delete")
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")

	_, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", nil)
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, ref)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Second delete is a no-op, not an error.
	deleted, err = s.Delete(ctx, ref)
	require.NoError(t, err)
	assert.False(t, deleted)

	// Empty ancestor directories are pruned up to the root.
	_, err = os.Stat(filepath.Join(s.root, "tenants"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.root)
	assert.NoError(t, err, "the storage root itself survives")
}

func TestFSDeleteKeepsSiblings(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()

	a := []byte("a")
	b := []byte("b")
	refA := ObjectKey("acme", "doc-1", 1, "a.txt")
	refB := ObjectKey("acme", "doc-2", 1, "b.txt")
	_, err := s.Upload(ctx, bytes.NewReader(a), refA, sha256Hex(a), "text/plain", nil)
	require.NoError(t, err)
	_, err = s.Upload(ctx, bytes.NewReader(b), refB, sha256Hex(b), "text/plain", nil)
	require.NoError(t, err)

	_, err = s.Delete(ctx, refA)
	require.NoError(t, err)

	ok, err := s.Exists(ctx, refB)
	require.NoError(t, err)
	assert.True(t, ok, "pruning stops at the first non-empty ancestor")
}

func TestFSGetMetadata(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()
	content := []byte("with metadata")
	ref := ObjectKey("acme", "doc-1", 2, "a.txt")

	_, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", map[string]string{"uploader": "tester"})
	require.NoError(t, err)

	meta, err := s.GetMetadata(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, meta.Ref)
	assert.Equal(t, sha256Hex(content), meta.Checksum)
	assert.Equal(t, int64(len(content)), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)
	assert.Equal(t, "tester", meta.Custom["uploader"])

	_, err = s.GetMetadata(ctx, ObjectKey("acme", "missing", 1, "x.txt"))
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFSDownloadMissing(t *testing.T) {
	s := newFSStore(t)
	_, err := s.Download(context.Background(), ObjectKey("acme", "missing", 1, "x.txt"))
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFSGenerateDownloadURL(t *testing.T) {
	tokens := NewTokenStore(nil)
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080", tokens)
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("downloadable")
	ref := ObjectKey("acme", "doc-1", 1, "a.txt")
	_, err = s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "text/plain", nil)
	require.NoError(t, err)

	url, err := s.GenerateDownloadURL(ctx, ref, time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/storage/download/"))

	token := strings.TrimPrefix(url, "http://localhost:8080/storage/download/")
	resolved, ok := tokens.Resolve(token)
	require.True(t, ok)
	assert.Equal(t, ref, resolved)

	_, err = s.GenerateDownloadURL(ctx, ObjectKey("acme", "missing", 1, "x.txt"), time.Hour)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestFSChunkedDownload(t *testing.T) {
	s := newFSStore(t)
	ctx := context.Background()

	// Larger than two chunks, not chunk-aligned.
	content := bytes.Repeat([]byte("x"), 2*ChunkSize+100)
	ref := ObjectKey("acme", "doc-1", 1, "big.bin")
	_, err := s.Upload(ctx, bytes.NewReader(content), ref, sha256Hex(content), "application/octet-stream", nil)
	require.NoError(t, err)

	r, err := s.Download(ctx, ref)
	require.NoError(t, err)
	defer r.Close()

	var sizes []int
	var total int
	for {
		chunk, err := r.Next()
		if err != nil {
			break
		}
		sizes = append(sizes, len(chunk))
		total += len(chunk)
	}
	assert.Equal(t, len(content), total)
	assert.Equal(t, []int{ChunkSize, ChunkSize, 100}, sizes)
}
