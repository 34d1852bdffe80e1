package worker

import (
	"context"

	"github.com/HSPiira/timeline-sub001/internal/verify"
)

// Interfaces for dependency injection to allow testing.

// ChainVerifier runs chain verification sweeps.
type ChainVerifier interface {
	VerifySubjectChain(ctx context.Context, tenantID, subjectID string) (*verify.ChainResult, error)
	VerifyTenantChains(ctx context.Context, tenantID string, limit int) (*verify.ChainResult, error)
}

// TenantLister enumerates tenants the scheduler fans sweeps out over.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]string, error)
}
