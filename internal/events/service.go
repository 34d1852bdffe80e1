// Package events appends new events to tenant chains. Appending is the only
// write path: each event's digest is computed over its content plus the
// subject's current head, so order and content are fixed at insert time.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/models"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
)

// Repository is the persistence port the service writes through.
type Repository interface {
	Create(ctx context.Context, e *models.Event) error
	GetLastHash(ctx context.Context, tenantID, subjectID string) (string, error)
}

// AppendInput carries everything the caller supplies for one new event.
type AppendInput struct {
	TenantID      string         `json:"tenant_id"`
	SubjectID     string         `json:"subject_id"`
	EventType     string         `json:"event_type"`
	SchemaVersion int            `json:"schema_version"`
	EventTime     time.Time      `json:"event_time"`
	Payload       map[string]any `json:"payload"`
}

// Service chains and persists events.
type Service struct {
	repo   Repository
	engine *hashchain.Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, engine *hashchain.Engine, log *zap.Logger) *Service {
	return &Service{repo: repo, engine: engine, log: log, now: time.Now}
}

func (s *Service) validate(in AppendInput) error {
	switch {
	case in.TenantID == "":
		return &hashchain.ValidationError{Field: "tenant_id", Reason: "must not be empty"}
	case in.SubjectID == "":
		return &hashchain.ValidationError{Field: "subject_id", Reason: "must not be empty"}
	case in.EventType == "":
		return &hashchain.ValidationError{Field: "event_type", Reason: "must not be empty"}
	case in.SchemaVersion < 1:
		return &hashchain.ValidationError{Field: "schema_version", Reason: "must be at least 1"}
	case len(in.Payload) == 0:
		return &hashchain.ValidationError{Field: "payload", Reason: "must not be empty"}
	case in.EventTime.IsZero():
		return &hashchain.ValidationError{Field: "event_time", Reason: "must be set"}
	case in.EventTime.After(s.now().Add(time.Minute)):
		return &hashchain.ValidationError{Field: "event_time", Reason: "must not be in the future"}
	}
	return nil
}

// Append validates, chains and persists one event. The event time is stored
// with microsecond precision in UTC; anything finer would not survive the
// database round trip, and a digest recomputed from the stored row must
// reproduce exactly.
func (s *Service) Append(ctx context.Context, in AppendInput) (*models.Event, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}
	eventTime := in.EventTime.UTC().Truncate(time.Microsecond)

	prev, err := s.repo.GetLastHash(ctx, in.TenantID, in.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("events: fetch chain head: %w", err)
	}

	hash, err := s.engine.ComputeEventHash(
		in.TenantID, in.SubjectID, in.EventType,
		in.SchemaVersion, eventTime, in.Payload, prev,
	)
	if err != nil {
		return nil, fmt.Errorf("events: compute digest: %w", err)
	}

	// Structural sanity on the link before it hits the database.
	var prevHash *hashchain.Hash
	if prev != "" {
		p, err := hashchain.ParseHash(prev)
		if err != nil {
			return nil, fmt.Errorf("events: stored chain head is malformed: %w", err)
		}
		prevHash = &p
	}
	if _, err := hashchain.NewEventChain(hash, prevHash); err != nil {
		return nil, fmt.Errorf("events: chain link: %w", err)
	}

	ev := &models.Event{
		ID:            uuid.New(),
		TenantID:      in.TenantID,
		SubjectID:     in.SubjectID,
		EventType:     in.EventType,
		SchemaVersion: in.SchemaVersion,
		EventTime:     eventTime,
		Payload:       in.Payload,
		Hash:          hash.String(),
	}
	if prev != "" {
		ev.PreviousHash = &prev
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		return nil, fmt.Errorf("events: persist: %w", err)
	}

	s.log.Info("event appended",
		zap.String("tenant_id", ev.TenantID),
		zap.String("subject_id", ev.SubjectID),
		zap.String("event_type", ev.EventType),
		zap.String("event_id", ev.ID.String()),
		zap.Bool("genesis", ev.IsGenesis()),
	)
	return ev, nil
}

// AppendBatch appends events in order, each chained on its predecessor's
// persisted digest. It stops at the first failure and returns what was
// appended so far.
func (s *Service) AppendBatch(ctx context.Context, inputs []AppendInput) ([]*models.Event, error) {
	out := make([]*models.Event, 0, len(inputs))
	for i, in := range inputs {
		ev, err := s.Append(ctx, in)
		if err != nil {
			return out, fmt.Errorf("events: batch item %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}
