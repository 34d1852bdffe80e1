package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HSPiira/timeline-sub001/internal/models"
)

// ── EventRepository ───────────────────────────────────────────────────────────

// EventRepository persists the append-only event log. Rows are never updated
// or deleted through this type; the chain's integrity depends on it.
type EventRepository struct{ db *pgxpool.Pool }

func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id,tenant_id,subject_id,event_type,schema_version,event_time,payload,hash,previous_hash,created_at`

func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events
		(id,tenant_id,subject_id,event_type,schema_version,event_time,payload,hash,previous_hash,created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		RETURNING created_at`
	err := r.db.QueryRow(ctx, q,
		e.ID, e.TenantID, e.SubjectID, e.EventType, e.SchemaVersion,
		e.EventTime, e.Payload, e.Hash, e.PreviousHash,
	).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("event create: %w", err)
	}
	return nil
}

// GetLastHash returns the stored digest of the newest event in the subject's
// chain, or "" when the subject has no events yet.
func (r *EventRepository) GetLastHash(ctx context.Context, tenantID, subjectID string) (string, error) {
	const q = `SELECT hash FROM events
		WHERE tenant_id=$1 AND subject_id=$2
		ORDER BY event_time DESC, created_at DESC, id DESC
		LIMIT 1`
	var hash string
	err := r.db.QueryRow(ctx, q, tenantID, subjectID).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("event last hash: %w", err)
	}
	return hash, nil
}

// ListEventsForSubject returns the subject's full chain, oldest first.
func (r *EventRepository) ListEventsForSubject(ctx context.Context, tenantID, subjectID string) ([]*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events
		WHERE tenant_id=$1 AND subject_id=$2
		ORDER BY event_time ASC, created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, q, tenantID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEventsForTenant returns the tenant's events across all subjects, oldest
// first, capped at limit (0 means no cap).
func (r *EventRepository) ListEventsForTenant(ctx context.Context, tenantID string, limit int) ([]*models.Event, error) {
	const q = `SELECT ` + eventColumns + ` FROM events
		WHERE tenant_id=$1
		ORDER BY event_time ASC, created_at ASC, id ASC`
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.Query(ctx, q+` LIMIT $2`, tenantID, limit)
	} else {
		rows, err = r.db.Query(ctx, q, tenantID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListTenantIDs returns every tenant that has at least one event. Used by the
// audit scheduler to fan out sweeps.
func (r *EventRepository) ListTenantIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT DISTINCT tenant_id FROM events ORDER BY tenant_id`
	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func scanEvents(rows pgx.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		e := &models.Event{}
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SubjectID, &e.EventType,
			&e.SchemaVersion, &e.EventTime, &e.Payload, &e.Hash,
			&e.PreviousHash, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
