package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HSPiira/timeline-sub001/internal/api/handlers"
	"github.com/HSPiira/timeline-sub001/internal/api/middleware"
)

func Register(e *echo.Echo, h *handlers.Handlers) {
	e.Use(middleware.RequestID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RateLimit(50, 100))

	// Tokenized downloads minted by the filesystem backend. Outside the API
	// group: the token itself is the credential.
	e.GET("/storage/download/:token", h.TokenDownload)

	api := e.Group("/api/v1")

	// Event chains
	api.POST("/tenants/:tenant_id/subjects/:subject_id/events", h.AppendEvent)
	api.POST("/tenants/:tenant_id/subjects/:subject_id/events/batch", h.AppendEventBatch)
	api.GET("/tenants/:tenant_id/subjects/:subject_id/events", h.ListSubjectEvents)

	// Verification
	api.GET("/tenants/:tenant_id/subjects/:subject_id/verification", h.VerifySubjectChain)
	api.GET("/tenants/:tenant_id/verification", h.VerifyTenantChains)
	api.POST("/tenants/:tenant_id/audits", h.EnqueueChainAudit)

	// Document content
	api.POST("/tenants/:tenant_id/documents/:document_id/versions/:version/files/:filename", h.UploadDocument)
	api.GET("/tenants/:tenant_id/documents/:document_id/versions/:version/files/:filename", h.DownloadDocument)
	api.DELETE("/tenants/:tenant_id/documents/:document_id/versions/:version/files/:filename", h.DeleteDocument)
	api.GET("/tenants/:tenant_id/documents/:document_id/versions/:version/files/:filename/metadata", h.GetDocumentMetadata)
	api.POST("/tenants/:tenant_id/documents/:document_id/versions/:version/files/:filename/download-url", h.CreateDownloadURL)
}
