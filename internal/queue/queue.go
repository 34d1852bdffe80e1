package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TypeChainAudit   = "chain:audit"
	TypeSubjectAudit = "chain:audit_subject"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ChainAuditPayload is the task payload for TypeChainAudit. It sweeps every
// subject chain of one tenant, bounded to the tenant's most recent Limit
// events.
type ChainAuditPayload struct {
	TenantID string `json:"tenant_id"`
	Limit    int    `json:"limit"`
}

// SubjectAuditPayload is the task payload for TypeSubjectAudit. It verifies a
// single subject chain end to end.
type SubjectAuditPayload struct {
	TenantID  string `json:"tenant_id"`
	SubjectID string `json:"subject_id"`
}

func NewChainAuditTask(p ChainAuditPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal ChainAudit: %w", err)
	}
	return asynq.NewTask(TypeChainAudit, b, asynq.Queue(QueueLow)), nil
}

func NewSubjectAuditTask(p SubjectAuditPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal SubjectAudit: %w", err)
	}
	return asynq.NewTask(TypeSubjectAudit, b, asynq.Queue(QueueDefault)), nil
}

func ParseChainAuditPayload(t *asynq.Task) (ChainAuditPayload, error) {
	var p ChainAuditPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}

func ParseSubjectAuditPayload(t *asynq.Task) (SubjectAuditPayload, error) {
	var p SubjectAuditPayload
	err := json.Unmarshal(t.Payload(), &p)
	return p, err
}
