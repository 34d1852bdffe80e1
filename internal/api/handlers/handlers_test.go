package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/events"
	"github.com/HSPiira/timeline-sub001/internal/models"
	"github.com/HSPiira/timeline-sub001/internal/storage"
	"github.com/HSPiira/timeline-sub001/internal/verify"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
)

type fakeWriter struct {
	appended []*models.Event
	err      error
}

func (f *fakeWriter) Append(_ context.Context, in events.AppendInput) (*models.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev := &models.Event{
		TenantID:  in.TenantID,
		SubjectID: in.SubjectID,
		EventType: in.EventType,
		EventTime: in.EventTime,
		Payload:   in.Payload,
		Hash:      strings.Repeat("ab", 32),
	}
	f.appended = append(f.appended, ev)
	return ev, nil
}

func (f *fakeWriter) AppendBatch(ctx context.Context, inputs []events.AppendInput) ([]*models.Event, error) {
	var out []*models.Event
	for _, in := range inputs {
		ev, err := f.Append(ctx, in)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
	return out, nil
}

type fakeReader struct{ events []*models.Event }

func (f *fakeReader) ListEventsForSubject(context.Context, string, string) ([]*models.Event, error) {
	return f.events, nil
}

type fakeVerifier struct{ result *verify.ChainResult }

func (f *fakeVerifier) VerifySubjectChain(context.Context, string, string) (*verify.ChainResult, error) {
	return f.result, nil
}

func (f *fakeVerifier) VerifyTenantChains(context.Context, string, int) (*verify.ChainResult, error) {
	return f.result, nil
}

type testEnv struct {
	e      *echo.Echo
	h      *Handlers
	writer *fakeWriter
	tokens *storage.TokenStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens := storage.NewTokenStore(nil)
	store, err := storage.NewFSStore(t.TempDir(), "", tokens)
	require.NoError(t, err)

	writer := &fakeWriter{}
	h := NewHandlers(
		writer,
		&fakeReader{},
		&fakeVerifier{result: &verify.ChainResult{TenantID: "acme", IsChainValid: true}},
		store, tokens, nil,
		time.Hour, 1000,
		zap.NewNop(),
	)
	return &testEnv{e: echo.New(), h: h, writer: writer, tokens: tokens}
}

func (env *testEnv) documentCtx(req *http.Request, rec *httptest.ResponseRecorder, version, filename string) echo.Context {
	c := env.e.NewContext(req, rec)
	c.SetParamNames("tenant_id", "document_id", "version", "filename")
	c.SetParamValues("acme", "doc-1", version, filename)
	return c
}

func multipartUpload(t *testing.T, content []byte, checksum string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("checksum", checksum))
	part, err := w.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func checksumOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestUploadAndDownloadDocument(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("document body")

	req, rec := multipartUpload(t, content, checksumOf(content))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "report.txt")))
	require.Equal(t, http.StatusCreated, rec.Code)

	var res storage.UploadResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, checksumOf(content), res.Checksum)

	dlReq := httptest.NewRequest(http.MethodGet, "/", nil)
	dlRec := httptest.NewRecorder()
	require.NoError(t, env.h.DownloadDocument(env.documentCtx(dlReq, dlRec, "1", "report.txt")))
	assert.Equal(t, http.StatusOK, dlRec.Code)
	assert.Equal(t, content, dlRec.Body.Bytes())
}

func TestUploadDocumentConflict(t *testing.T) {
	env := newTestEnv(t)

	a := []byte("first version")
	req, rec := multipartUpload(t, a, checksumOf(a))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "a.txt")))
	require.Equal(t, http.StatusCreated, rec.Code)

	b := []byte("other content")
	req, rec = multipartUpload(t, b, checksumOf(b))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "a.txt")))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUploadDocumentChecksumMismatch(t *testing.T) {
	env := newTestEnv(t)

	content := []byte("real bytes")
	req, rec := multipartUpload(t, content, strings.Repeat("0", 64))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "a.txt")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestUploadDocumentBadVersion(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("x")
	req, rec := multipartUpload(t, content, checksumOf(content))

	err := env.h.UploadDocument(env.documentCtx(req, rec, "zero", "a.txt"))
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestDeleteDocumentIdempotent(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("to delete")

	req, rec := multipartUpload(t, content, checksumOf(content))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "a.txt")))

	delReq := httptest.NewRequest(http.MethodDelete, "/", nil)
	delRec := httptest.NewRecorder()
	require.NoError(t, env.h.DeleteDocument(env.documentCtx(delReq, delRec, "1", "a.txt")))
	assert.Equal(t, http.StatusOK, delRec.Code)
	assert.JSONEq(t, `{"deleted":true}`, delRec.Body.String())

	delRec = httptest.NewRecorder()
	require.NoError(t, env.h.DeleteDocument(env.documentCtx(delReq, delRec, "1", "a.txt")))
	assert.Equal(t, http.StatusOK, delRec.Code)
	assert.JSONEq(t, `{"deleted":false}`, delRec.Body.String())
}

func TestCreateDownloadURLAndRedeemToken(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("tokenized")

	req, rec := multipartUpload(t, content, checksumOf(content))
	require.NoError(t, env.h.UploadDocument(env.documentCtx(req, rec, "1", "a.txt")))

	urlReq := httptest.NewRequest(http.MethodPost, "/", nil)
	urlRec := httptest.NewRecorder()
	require.NoError(t, env.h.CreateDownloadURL(env.documentCtx(urlReq, urlRec, "1", "a.txt")))
	require.Equal(t, http.StatusOK, urlRec.Code)

	var res map[string]any
	require.NoError(t, json.Unmarshal(urlRec.Body.Bytes(), &res))
	url, _ := res["url"].(string)
	require.True(t, strings.HasPrefix(url, "/storage/download/"), url)
	token := strings.TrimPrefix(url, "/storage/download/")

	dlReq := httptest.NewRequest(http.MethodGet, "/", nil)
	dlRec := httptest.NewRecorder()
	c := env.e.NewContext(dlReq, dlRec)
	c.SetParamNames("token")
	c.SetParamValues(token)
	require.NoError(t, env.h.TokenDownload(c))
	assert.Equal(t, http.StatusOK, dlRec.Code)
	assert.Equal(t, content, dlRec.Body.Bytes())

	// Unknown token
	c = env.e.NewContext(dlReq, httptest.NewRecorder())
	c.SetParamNames("token")
	c.SetParamValues("bogus")
	require.NoError(t, env.h.TokenDownload(c))
}

func TestAppendEventHandler(t *testing.T) {
	env := newTestEnv(t)

	body := `{"event_type":"created","schema_version":1,"event_time":"2026-05-01T10:00:00Z","payload":{"n":1}}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("tenant_id", "subject_id")
	c.SetParamValues("acme", "subj-1")

	require.NoError(t, env.h.AppendEvent(c))
	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, env.writer.appended, 1)
	assert.Equal(t, "acme", env.writer.appended[0].TenantID)
}

func TestAppendEventValidationFailure(t *testing.T) {
	env := newTestEnv(t)
	env.writer.err = &hashchain.ValidationError{Field: "payload", Reason: "must not be empty"}

	body := `{"event_type":"created","schema_version":1,"event_time":"2026-05-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("tenant_id", "subject_id")
	c.SetParamValues("acme", "subj-1")

	require.NoError(t, env.h.AppendEvent(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifySubjectChainHandler(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("tenant_id", "subject_id")
	c.SetParamValues("acme", "subj-1")

	require.NoError(t, env.h.VerifySubjectChain(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res verify.ChainResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.IsChainValid)
}

func TestVerifyTenantChainsBadLimit(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/?limit=%s", "nope"), nil)
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.SetParamNames("tenant_id")
	c.SetParamValues("acme")

	require.NoError(t, env.h.VerifyTenantChains(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
