package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/HSPiira/timeline-sub001/internal/storage"
)

// ── Document Handlers ─────────────────────────────────────────────────────────

// objectRef builds the storage reference from path parameters. The version
// must be a positive integer; filenames with traversal sequences are rejected
// further down by the backend.
func objectRef(c echo.Context) (string, error) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		return "", echo.NewHTTPError(http.StatusBadRequest, "version must be a positive integer")
	}
	return storage.ObjectKey(
		c.Param("tenant_id"), c.Param("document_id"), version, c.Param("filename"),
	), nil
}

// UploadDocument stores one file version. The request is multipart: a "file"
// part with the content and a "checksum" field carrying its expected SHA-256.
// Re-uploading identical content is an idempotent 200; different content at
// the same reference is a 409.
func (h *Handlers) UploadDocument(c echo.Context) error {
	ref, err := objectRef(c)
	if err != nil {
		return err
	}

	checksum := c.FormValue("checksum")
	if len(checksum) != 64 {
		return apiErr(c, http.StatusBadRequest, "checksum must be 64 hex characters (sha-256)")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "missing file part")
	}
	src, err := fh.Open()
	if err != nil {
		return apiErr(c, http.StatusBadRequest, "unreadable file part")
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	res, err := h.store.Upload(c.Request().Context(), src, ref, checksum, contentType, nil)
	if err != nil {
		return storageErr(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// DownloadDocument streams the object's bytes in fixed-size chunks.
func (h *Handlers) DownloadDocument(c echo.Context) error {
	ref, err := objectRef(c)
	if err != nil {
		return err
	}
	return h.streamObject(c, ref)
}

func (h *Handlers) streamObject(c echo.Context, ref string) error {
	ctx := c.Request().Context()

	contentType := "application/octet-stream"
	if meta, err := h.store.GetMetadata(ctx, ref); err == nil && meta.ContentType != "" {
		contentType = meta.ContentType
	}

	r, err := h.store.Download(ctx, ref)
	if err != nil {
		return storageErr(c, err)
	}
	defer r.Close()

	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)
	if _, err := r.WriteTo(c.Response()); err != nil {
		// Headers are out; all we can do is log the truncated stream.
		c.Logger().Errorf("stream %s: %v", ref, err)
	}
	return nil
}

func (h *Handlers) GetDocumentMetadata(c echo.Context) error {
	ref, err := objectRef(c)
	if err != nil {
		return err
	}
	meta, err := h.store.GetMetadata(c.Request().Context(), ref)
	if err != nil {
		return storageErr(c, err)
	}
	return c.JSON(http.StatusOK, meta)
}

// DeleteDocument removes a file version. Deleting something that is not
// there is a 200 with deleted=false, not an error.
func (h *Handlers) DeleteDocument(c echo.Context) error {
	ref, err := objectRef(c)
	if err != nil {
		return err
	}
	deleted, err := h.store.Delete(c.Request().Context(), ref)
	if err != nil {
		return storageErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": deleted})
}

// CreateDownloadURL mints a time-boxed URL for the object: a presigned URL on
// the S3 backend, a tokenized API URL on the filesystem backend.
func (h *Handlers) CreateDownloadURL(c echo.Context) error {
	ref, err := objectRef(c)
	if err != nil {
		return err
	}

	expiry := h.urlTTL
	if raw := c.QueryParam("expires_in"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return apiErr(c, http.StatusBadRequest, "expires_in must be a positive duration")
		}
		expiry = d
	}

	url, err := h.store.GenerateDownloadURL(c.Request().Context(), ref, expiry)
	if err != nil {
		return storageErr(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"url":        url,
		"expires_in": expiry.Seconds(),
	})
}

// TokenDownload redeems a tokenized download URL minted by the filesystem
// backend. Unknown and expired tokens are indistinguishable on purpose.
func (h *Handlers) TokenDownload(c echo.Context) error {
	if h.tokens == nil {
		return apiErr(c, http.StatusNotFound, "token downloads are not enabled")
	}
	ref, ok := h.tokens.Resolve(c.Param("token"))
	if !ok {
		return apiErr(c, http.StatusNotFound, "unknown or expired token")
	}
	return h.streamObject(c, ref)
}
