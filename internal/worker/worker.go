package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/queue"
)

// ChainAuditProcessor verifies every subject chain in a tenant's recent
// events. A tampered chain is a finding to report, not a task failure:
// returning an error would make asynq retry, and re-verifying tampered data
// cannot fix it.
type ChainAuditProcessor struct {
	verifier ChainVerifier
	log      *zap.Logger
}

func NewChainAuditProcessor(verifier ChainVerifier, log *zap.Logger) *ChainAuditProcessor {
	return &ChainAuditProcessor{verifier: verifier, log: log}
}

func (p *ChainAuditProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseChainAuditPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	res, err := p.verifier.VerifyTenantChains(ctx, payload.TenantID, payload.Limit)
	if err != nil {
		return fmt.Errorf("verify tenant %s: %w", payload.TenantID, err)
	}

	if res.IsChainValid {
		p.log.Info("chain audit clean",
			zap.String("tenant_id", payload.TenantID),
			zap.Int("total_events", res.TotalEvents),
		)
		return nil
	}

	p.log.Error("chain audit found tampering",
		zap.String("tenant_id", payload.TenantID),
		zap.Int("total_events", res.TotalEvents),
		zap.Int("invalid_events", res.InvalidEvents),
	)
	for _, ev := range res.Events {
		if ev.IsValid {
			continue
		}
		p.log.Error("invalid event",
			zap.String("tenant_id", payload.TenantID),
			zap.String("event_id", ev.EventID),
			zap.Int("sequence", ev.Sequence),
			zap.String("error_type", string(ev.ErrorType)),
			zap.String("expected_hash", ev.ExpectedHash),
			zap.String("actual_hash", ev.ActualHash),
		)
	}
	return nil
}

// SubjectAuditProcessor verifies one subject chain end to end.
type SubjectAuditProcessor struct {
	verifier ChainVerifier
	log      *zap.Logger
}

func NewSubjectAuditProcessor(verifier ChainVerifier, log *zap.Logger) *SubjectAuditProcessor {
	return &SubjectAuditProcessor{verifier: verifier, log: log}
}

func (p *SubjectAuditProcessor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	payload, err := queue.ParseSubjectAuditPayload(t)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	res, err := p.verifier.VerifySubjectChain(ctx, payload.TenantID, payload.SubjectID)
	if err != nil {
		return fmt.Errorf("verify subject %s/%s: %w", payload.TenantID, payload.SubjectID, err)
	}

	if res.IsChainValid {
		p.log.Info("subject chain clean",
			zap.String("tenant_id", payload.TenantID),
			zap.String("subject_id", payload.SubjectID),
			zap.Int("total_events", res.TotalEvents),
		)
	} else {
		p.log.Error("subject chain invalid",
			zap.String("tenant_id", payload.TenantID),
			zap.String("subject_id", payload.SubjectID),
			zap.Int("invalid_events", res.InvalidEvents),
		)
	}
	return nil
}

// AuditScheduler periodically enqueues one chain audit sweep per tenant.
type AuditScheduler struct {
	tenants    TenantLister
	queue      *asynq.Client
	log        *zap.Logger
	interval   time.Duration
	eventLimit int
}

func NewAuditScheduler(tenants TenantLister, queue *asynq.Client, log *zap.Logger, interval time.Duration, eventLimit int) *AuditScheduler {
	return &AuditScheduler{
		tenants:    tenants,
		queue:      queue,
		log:        log,
		interval:   interval,
		eventLimit: eventLimit,
	}
}

func (s *AuditScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.schedule(ctx)
		}
	}
}

func (s *AuditScheduler) schedule(ctx context.Context) {
	tenantIDs, err := s.tenants.ListTenantIDs(ctx)
	if err != nil {
		s.log.Error("scheduler: list tenants", zap.Error(err))
		return
	}

	window := time.Now().UTC().Truncate(s.interval).Unix()
	for _, tenantID := range tenantIDs {
		task, err := queue.NewChainAuditTask(queue.ChainAuditPayload{
			TenantID: tenantID,
			Limit:    s.eventLimit,
		})
		if err != nil {
			s.log.Error("scheduler: create audit task", zap.String("tenant_id", tenantID), zap.Error(err))
			continue
		}

		taskID := fmt.Sprintf("audit-%s-%d", tenantID, window)
		_, err = s.queue.EnqueueContext(ctx, task, asynq.TaskID(taskID))
		if err != nil {
			if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
				// Audit already queued for this window – safe to skip.
				continue
			}
			s.log.Error("scheduler: enqueue audit", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}
}
