package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	filePerm = 0o640
	dirPerm  = 0o750

	metaSuffix = ".meta.json"
)

// FSStore implements Backend on the local filesystem. Every reference is
// resolved against the storage root and rejected if it would escape it;
// uploads are written to a temp file in the target directory and published
// with an atomic rename, so a partially written object is never visible at
// the final path.
type FSStore struct {
	root    string
	baseURL string
	tokens  *TokenStore
}

// NewFSStore creates a filesystem backend rooted at root. baseURL prefixes
// generated download URLs ("" yields a relative path). tokens must not be
// nil; it holds the minted download tokens.
func NewFSStore(root, baseURL string, tokens *TokenStore) (*FSStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, dirPerm); err != nil {
		return nil, fmt.Errorf("storage: create root dir: %w", err)
	}
	return &FSStore{
		root:    absRoot,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		tokens:  tokens,
	}, nil
}

func (s *FSStore) Provider() string { return "filesystem" }

// resolve turns a relative reference into an absolute path inside the
// storage root, rejecting anything that would resolve outside it.
func (s *FSStore) resolve(ref string) (string, error) {
	if ref == "" {
		return "", &PathError{Ref: ref, Reason: "empty reference"}
	}
	if filepath.IsAbs(ref) || strings.HasPrefix(ref, "/") {
		return "", &PathError{Ref: ref, Reason: "absolute paths are not allowed"}
	}
	full := filepath.Join(s.root, filepath.FromSlash(ref))
	cleaned := filepath.Clean(full)
	if cleaned != s.root && !strings.HasPrefix(cleaned, s.root+string(filepath.Separator)) {
		return "", &PathError{Ref: ref, Reason: "resolves outside storage root"}
	}
	if cleaned == s.root {
		return "", &PathError{Ref: ref, Reason: "reference resolves to storage root"}
	}
	return cleaned, nil
}

func checksumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func (s *FSStore) readMeta(path string) (*ObjectMetadata, error) {
	b, err := os.ReadFile(path + metaSuffix)
	if err != nil {
		return nil, err
	}
	var meta ObjectMetadata
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *FSStore) writeMeta(path string, meta *ObjectMetadata) error {
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+metaSuffix, b, filePerm); err != nil {
		return err
	}
	return nil
}

func (s *FSStore) Upload(ctx context.Context, content io.Reader, ref, expectedChecksum, contentType string, custom map[string]string) (*UploadResult, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	// Idempotency is checksum-keyed: an existing object with the same
	// checksum is a successful no-op, anything else is a conflict.
	if _, err := os.Stat(path); err == nil {
		existing, size, err := checksumFile(path)
		if err != nil {
			return nil, &OpError{Op: "upload", Ref: ref, Err: err}
		}
		if existing != expectedChecksum {
			return nil, &AlreadyExistsError{Ref: ref}
		}
		uploadedAt := time.Now().UTC()
		if meta, err := s.readMeta(path); err == nil {
			uploadedAt = meta.UploadedAt
		}
		return &UploadResult{Ref: ref, Checksum: existing, Size: size, UploadedAt: uploadedAt}, nil
	} else if !os.IsNotExist(err) {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	// Temp file lives in the target directory so the final rename stays on
	// one filesystem and is atomic.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, h), content)
	if err != nil {
		tmp.Close()
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	computed := hex.EncodeToString(h.Sum(nil))
	if computed != expectedChecksum {
		return nil, &ChecksumMismatchError{Ref: ref, Expected: expectedChecksum, Actual: computed}
	}

	// Sidecar goes first: the object rename is the publish point, and a
	// failure on either side must leave nothing visible at ref.
	meta := &ObjectMetadata{
		Ref:         ref,
		Checksum:    computed,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  time.Now().UTC(),
		Custom:      custom,
	}
	if err := s.writeMeta(path, meta); err != nil {
		os.Remove(path + metaSuffix)
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(path + metaSuffix)
		return nil, &OpError{Op: "upload", Ref: ref, Err: err}
	}

	return &UploadResult{Ref: ref, Checksum: computed, Size: size, UploadedAt: meta.UploadedAt}, nil
}

func (s *FSStore) Download(ctx context.Context, ref string) (*ChunkReader, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, &OpError{Op: "download", Ref: ref, Err: err}
	}
	return NewChunkReader(ctx, f), nil
}

func (s *FSStore) Delete(ctx context.Context, ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, &OpError{Op: "delete", Ref: ref, Err: err}
	}
	if err := os.Remove(path + metaSuffix); err != nil && !os.IsNotExist(err) {
		return false, &OpError{Op: "delete", Ref: ref, Err: err}
	}

	// Prune now-empty ancestors up to, but not including, the root.
	for dir := filepath.Dir(path); dir != s.root; dir = filepath.Dir(dir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return true, nil
}

func (s *FSStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &OpError{Op: "metadata", Ref: ref, Err: err}
	}
	return true, nil
}

func (s *FSStore) GetMetadata(ctx context.Context, ref string) (*ObjectMetadata, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, &OpError{Op: "metadata", Ref: ref, Err: err}
	}

	meta, err := s.readMeta(path)
	if err != nil {
		// Object without a sidecar: fall back to what the filesystem knows.
		return &ObjectMetadata{
			Ref:         ref,
			Size:        st.Size(),
			ContentType: "application/octet-stream",
			UploadedAt:  st.ModTime().UTC(),
		}, nil
	}
	meta.Size = st.Size()
	return meta, nil
}

func (s *FSStore) GenerateDownloadURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	ok, err := s.Exists(ctx, ref)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &NotFoundError{Ref: ref}
	}
	token, err := s.tokens.Mint(ref, expiry)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/storage/download/" + token, nil
}
