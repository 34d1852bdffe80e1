package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HSPiira/timeline-sub001/internal/models"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
)

// memoryRepo keeps appended events per subject, in order.
type memoryRepo struct {
	events []*models.Event
}

func (m *memoryRepo) Create(_ context.Context, e *models.Event) error {
	e.CreatedAt = time.Now().UTC()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRepo) GetLastHash(_ context.Context, tenantID, subjectID string) (string, error) {
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].TenantID == tenantID && m.events[i].SubjectID == subjectID {
			return m.events[i].Hash, nil
		}
	}
	return "", nil
}

func newService(t *testing.T, repo Repository) *Service {
	t.Helper()
	engine, err := hashchain.NewEngine(hashchain.SHA256)
	require.NoError(t, err)
	return NewService(repo, engine, zap.NewNop())
}

func validInput() AppendInput {
	return AppendInput{
		TenantID:      "acme",
		SubjectID:     "subj-1",
		EventType:     "created",
		SchemaVersion: 1,
		EventTime:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		Payload:       map[string]any{"n": 1},
	}
}

func TestAppend_Genesis(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	ev, err := svc.Append(context.Background(), validInput())
	require.NoError(t, err)

	assert.True(t, ev.IsGenesis())
	assert.Nil(t, ev.PreviousHash)
	assert.Len(t, ev.Hash, 64)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", ev.ID.String())
	require.Len(t, repo.events, 1)
}

func TestAppend_ChainsOnPredecessor(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	in := validInput()
	first, err := svc.Append(context.Background(), in)
	require.NoError(t, err)

	in.EventType = "updated"
	in.EventTime = in.EventTime.Add(time.Minute)
	second, err := svc.Append(context.Background(), in)
	require.NoError(t, err)

	require.NotNil(t, second.PreviousHash)
	assert.Equal(t, first.Hash, *second.PreviousHash)
	assert.NotEqual(t, first.Hash, second.Hash)
}

func TestAppend_IsolatesSubjects(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	a := validInput()
	_, err := svc.Append(context.Background(), a)
	require.NoError(t, err)

	b := validInput()
	b.SubjectID = "subj-2"
	ev, err := svc.Append(context.Background(), b)
	require.NoError(t, err)

	assert.True(t, ev.IsGenesis(), "a new subject starts its own chain")
}

func TestAppend_TruncatesEventTime(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	loc := time.FixedZone("UTC+3", 3*60*60)
	in := validInput()
	in.EventTime = time.Date(2026, 5, 1, 13, 0, 0, 123456789, loc)

	ev, err := svc.Append(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, time.UTC, ev.EventTime.Location())
	assert.Equal(t, 123456000, ev.EventTime.Nanosecond(), "sub-microsecond precision is dropped")
	assert.Equal(t, 10, ev.EventTime.Hour())
}

func TestAppend_Validation(t *testing.T) {
	svc := newService(t, &memoryRepo{})

	cases := []struct {
		name   string
		mutate func(*AppendInput)
	}{
		{"empty tenant", func(in *AppendInput) { in.TenantID = "" }},
		{"empty subject", func(in *AppendInput) { in.SubjectID = "" }},
		{"empty event type", func(in *AppendInput) { in.EventType = "" }},
		{"zero schema version", func(in *AppendInput) { in.SchemaVersion = 0 }},
		{"empty payload", func(in *AppendInput) { in.Payload = nil }},
		{"zero event time", func(in *AppendInput) { in.EventTime = time.Time{} }},
		{"future event time", func(in *AppendInput) { in.EventTime = time.Now().Add(24 * time.Hour) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Append(context.Background(), in)
			var verr *hashchain.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestAppendBatch_ChainsSequentially(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	inputs := make([]AppendInput, 3)
	for i := range inputs {
		inputs[i] = validInput()
		inputs[i].EventTime = inputs[i].EventTime.Add(time.Duration(i) * time.Minute)
		inputs[i].Payload = map[string]any{"n": i}
	}

	out, err := svc.AppendBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.True(t, out[0].IsGenesis())
	for i := 1; i < 3; i++ {
		require.NotNil(t, out[i].PreviousHash)
		assert.Equal(t, out[i-1].Hash, *out[i].PreviousHash)
	}
}

func TestAppendBatch_StopsAtFirstFailure(t *testing.T) {
	repo := &memoryRepo{}
	svc := newService(t, repo)

	good := validInput()
	bad := validInput()
	bad.Payload = nil

	out, err := svc.AppendBatch(context.Background(), []AppendInput{good, bad})
	require.Error(t, err)
	assert.Len(t, out, 1, "events before the failure stay appended")
	assert.Len(t, repo.events, 1)
}
