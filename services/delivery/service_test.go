package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/db/pagination"
	"vayva-webhooks/services/endpoint"
	"vayva-webhooks/services/event"
	"vayva-webhooks/services/testutil"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{}, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeEnqueuer) {
	t.Helper()

	db := testutil.NewTestDB(t, &endpoint.Endpoint{}, &event.Event{}, &Attempt{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	enq := &fakeEnqueuer{}
	svc := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Engine:   NewEngine(db, &config.Config{SecretAES: testSecretAES}),
		Enqueuer: enq,
	})

	return svc, db, enq
}

func TestCreateAttemptsFanOut(t *testing.T) {
	svc, db, _ := newTestService(t)

	ev := &event.Event{ID: "evt_1", TenantID: "t_1", Type: "order.created"}
	ids, err := svc.CreateAttempts(context.Background(), db, ev, []string{"ep_1", "ep_2", "ep_3"})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	var rows []Attempt
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, StatusPending, row.Status)
		require.Equal(t, "evt_1", row.EventID)
		require.Equal(t, "order.created", row.EventType)
		require.Equal(t, 0, row.AttemptCount)
		require.NotNil(t, row.NextRetryAt)
		require.False(t, row.NextRetryAt.After(time.Now()), "new attempts must be immediately due")
	}
}

func TestCreateAttemptsIdempotentPerEndpoint(t *testing.T) {
	svc, db, _ := newTestService(t)

	ev := &event.Event{ID: "evt_1", TenantID: "t_1", Type: "order.created"}
	_, err := svc.CreateAttempts(context.Background(), db, ev, []string{"ep_1", "ep_2"})
	require.NoError(t, err)

	// Re-running the fan-out must not duplicate rows.
	_, err = svc.CreateAttempts(context.Background(), db, ev, []string{"ep_1", "ep_2"})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&Attempt{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestCreateAttemptsNoEndpoints(t *testing.T) {
	svc, db, _ := newTestService(t)

	ev := &event.Event{ID: "evt_1", TenantID: "t_1", Type: "order.created"}
	ids, err := svc.CreateAttempts(context.Background(), db, ev, nil)
	require.NoError(t, err)
	require.Empty(t, ids)

	var count int64
	require.NoError(t, db.Model(&Attempt{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestDispatchEnqueuesTasks(t *testing.T) {
	svc, db, enq := newTestService(t)

	ev := &event.Event{ID: "evt_1", TenantID: "t_1", Type: "order.created"}
	ids, err := svc.CreateAttempts(context.Background(), db, ev, []string{"ep_1", "ep_2"})
	require.NoError(t, err)

	svc.Dispatch(context.Background(), ids)

	require.Len(t, enq.tasks, 2)
	for _, task := range enq.tasks {
		require.Equal(t, TypeDeliverWebhook, task.Type())
	}
}

func TestListMostRecentFirstAndBounded(t *testing.T) {
	svc, db, _ := newTestService(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		row := &Attempt{
			ID:         "del_" + string(rune('a'+i)),
			TenantID:   "t_1",
			EndpointID: "ep_1",
			EventID:    "evt_" + string(rune('a'+i)),
			EventType:  "order.created",
			Status:     StatusDelivered,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(row).Error)
	}

	records, pageInfo, err := svc.List(context.Background(), "t_1", "", pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.True(t, pageInfo.HasMore)

	for i := 1; i < len(records); i++ {
		require.False(t, records[i].CreatedAt.After(records[i-1].CreatedAt), "must be most recent first")
	}
}

func TestListFiltersByEndpoint(t *testing.T) {
	svc, db, _ := newTestService(t)

	for i, ep := range []string{"ep_1", "ep_1", "ep_2"} {
		row := &Attempt{
			ID:         "del_" + string(rune('a'+i)),
			TenantID:   "t_1",
			EndpointID: ep,
			EventID:    "evt_" + string(rune('a'+i)),
			EventType:  "order.created",
			Status:     StatusPending,
		}
		require.NoError(t, db.Create(row).Error)
	}

	records, _, err := svc.List(context.Background(), "t_1", "ep_1", pagination.Pagination{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		require.Equal(t, "ep_1", r.EndpointID)
	}
}

func TestListIsTenantScoped(t *testing.T) {
	svc, db, _ := newTestService(t)

	require.NoError(t, db.Create(&Attempt{
		ID: "del_other", TenantID: "t_other", EndpointID: "ep_9", EventID: "evt_9",
		EventType: "order.created", Status: StatusPending,
	}).Error)

	records, _, err := svc.List(context.Background(), "t_1", "", pagination.Pagination{})
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestReplayResetsAndRedelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc, db, _ := newTestService(t)
	id, _ := seedAttempt(t, db, srv.URL)

	// Simulate an exhausted attempt.
	require.NoError(t, db.Model(&Attempt{}).Where("id = ?", id).Updates(map[string]any{
		"status":        StatusDead,
		"attempt_count": maxAttempts,
		"next_retry_at": nil,
	}).Error)

	record, err := svc.Replay(context.Background(), "t_1", id)
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, record.Status)
	require.Equal(t, 1, record.AttemptCount, "replay starts the attempt counter over")
	require.NotNil(t, record.DeliveredAt)
}

func TestReplayUnknownDelivery(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Replay(context.Background(), "t_1", "del_missing")
	require.Error(t, err)
}

func TestReplayWrongTenant(t *testing.T) {
	svc, db, _ := newTestService(t)
	id, _ := seedAttempt(t, db, "http://127.0.0.1:0")

	_, err := svc.Replay(context.Background(), "t_other", id)
	require.Error(t, err)
}

func TestSchedulerSweepEnqueuesDueAttempts(t *testing.T) {
	_, db, enq := newTestService(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	rows := []*Attempt{
		{ID: "del_due1", TenantID: "t_1", EndpointID: "ep_1", EventID: "evt_1", EventType: "x", Status: StatusPending, NextRetryAt: &past},
		{ID: "del_due2", TenantID: "t_1", EndpointID: "ep_2", EventID: "evt_1", EventType: "x", Status: StatusFailed, NextRetryAt: &past},
		{ID: "del_later", TenantID: "t_1", EndpointID: "ep_3", EventID: "evt_1", EventType: "x", Status: StatusFailed, NextRetryAt: &future},
		{ID: "del_done", TenantID: "t_1", EndpointID: "ep_4", EventID: "evt_1", EventType: "x", Status: StatusDelivered},
	}
	for _, row := range rows {
		require.NoError(t, db.Create(row).Error)
	}

	sched := NewScheduler(db, enq, &config.Config{})
	require.NoError(t, sched.sweep(context.Background()))

	require.Len(t, enq.tasks, 2)
}
