package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/api/middleware"
	"github.com/HSPiira/timeline-sub001/internal/events"
	"github.com/HSPiira/timeline-sub001/internal/models"
	"github.com/HSPiira/timeline-sub001/internal/storage"
	"github.com/HSPiira/timeline-sub001/internal/verify"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
)

// EventWriter appends events to tenant chains.
type EventWriter interface {
	Append(ctx context.Context, in events.AppendInput) (*models.Event, error)
	AppendBatch(ctx context.Context, inputs []events.AppendInput) ([]*models.Event, error)
}

// EventReader lists a subject's stored chain.
type EventReader interface {
	ListEventsForSubject(ctx context.Context, tenantID, subjectID string) ([]*models.Event, error)
}

// ChainVerifier runs on-demand chain verification.
type ChainVerifier interface {
	VerifySubjectChain(ctx context.Context, tenantID, subjectID string) (*verify.ChainResult, error)
	VerifyTenantChains(ctx context.Context, tenantID string, limit int) (*verify.ChainResult, error)
}

type Handlers struct {
	events   EventWriter
	reader   EventReader
	verifier ChainVerifier
	store    storage.Backend
	// tokens is non-nil only when the filesystem backend serves tokenized
	// downloads through this API.
	tokens     *storage.TokenStore
	queue      *asynq.Client
	urlTTL     time.Duration
	auditLimit int
	log        *zap.Logger
}

func NewHandlers(
	ev EventWriter,
	reader EventReader,
	verifier ChainVerifier,
	store storage.Backend,
	tokens *storage.TokenStore,
	queue *asynq.Client,
	urlTTL time.Duration,
	auditLimit int,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		events:     ev,
		reader:     reader,
		verifier:   verifier,
		store:      store,
		tokens:     tokens,
		queue:      queue,
		urlTTL:     urlTTL,
		auditLimit: auditLimit,
		log:        log,
	}
}

// ── Error helpers ─────────────────────────────────────────────────────────────

type errResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	ReqID   string `json:"request_id,omitempty"`
}

func apiErr(c echo.Context, code int, msg string) error {
	reqID, _ := c.Get(middleware.ContextKeyRequestID).(string)
	return c.JSON(code, errResponse{Code: code, Message: msg, ReqID: reqID})
}

// storageErr maps the typed storage errors onto HTTP statuses. Anything
// untyped is a 500.
func storageErr(c echo.Context, err error) error {
	var (
		nf       *storage.NotFoundError
		exists   *storage.AlreadyExistsError
		mismatch *storage.ChecksumMismatchError
		path     *storage.PathError
	)
	switch {
	case errors.As(err, &nf):
		return apiErr(c, http.StatusNotFound, nf.Error())
	case errors.As(err, &exists):
		return apiErr(c, http.StatusConflict, exists.Error())
	case errors.As(err, &mismatch):
		return apiErr(c, http.StatusUnprocessableEntity, mismatch.Error())
	case errors.As(err, &path):
		return apiErr(c, http.StatusBadRequest, path.Error())
	default:
		c.Logger().Errorf("storage: %v", err)
		return apiErr(c, http.StatusInternalServerError, "storage operation failed")
	}
}

// domainErr maps chain validation failures to 400 and everything else to 500.
func domainErr(c echo.Context, err error) error {
	var verr *hashchain.ValidationError
	if errors.As(err, &verr) {
		return apiErr(c, http.StatusBadRequest, verr.Error())
	}
	c.Logger().Errorf("internal: %v", err)
	return apiErr(c, http.StatusInternalServerError, "internal error")
}
