package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/outreach/internal/model"
)

func jobScan(j model.ScheduledJob) func(dest ...any) error {
	return func(dest ...any) error {
		*(dest[0].(*string)) = j.ID
		*(dest[1].(*string)) = j.WorkflowID
		*(dest[2].(*time.Time)) = j.ScheduledTime
		*(dest[3].(*string)) = j.Status
		*(dest[4].(**string)) = j.ExecutionID
		*(dest[5].(*int)) = j.SentCount
		*(dest[6].(*int)) = j.FailedCount
		*(dest[7].(*time.Time)) = j.CreatedAt
		*(dest[8].(**time.Time)) = j.StartedAt
		*(dest[9].(**time.Time)) = j.CompletedAt
		*(dest[10].(**time.Time)) = j.FailedAt
		*(dest[11].(**string)) = j.ErrorMessage
		return nil
	}
}

func pendingJob(id string, at time.Time) model.ScheduledJob {
	return model.ScheduledJob{
		ID:            id,
		WorkflowID:    "wf-1",
		ScheduledTime: at,
		Status:        model.JobStatusPending,
		CreatedAt:     at.Add(-time.Hour),
	}
}

func TestNewJobStore(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	require.NotNil(t, s)
	assert.Equal(t, db, s.db)
}

// ---------- Schedule ----------

func TestJobStore_Schedule_Created(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "ON CONFLICT (workflow_id, scheduled_time) DO NOTHING")
	}), mock.Anything).Return(&mockRow{scanFunc: jobScan(pendingJob("job-1", at))}).Once()

	job, created, err := s.Schedule(ctx, "wf-1", at.Add(300*time.Millisecond))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.JobStatusPending, job.Status)

	args := db.Calls[0].Arguments.Get(2).([]any)
	assert.Equal(t, "wf-1", args[1])
	assert.Equal(t, at, args[2])
	db.AssertExpectations(t)
}

func TestJobStore_Schedule_DuplicateReturnsExisting(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return len(sql) > 0 && sql[:6] == "INSERT"
	}), mock.Anything).Return(errRow(pgx.ErrNoRows)).Once()
	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return len(sql) > 0 && sql[:6] == "SELECT"
	}), []any{"wf-1", at}).Return(&mockRow{scanFunc: jobScan(pendingJob("job-existing", at))}).Once()

	job, created, err := s.Schedule(ctx, "wf-1", at)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "job-existing", job.ID)
	db.AssertExpectations(t)
}

func TestJobStore_Schedule_DBError(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(errRow(errors.New("connection refused"))).Once()

	_, _, err := s.Schedule(ctx, "wf-1", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert scheduled job for workflow wf-1")
	db.AssertExpectations(t)
}

// ---------- Get ----------

func TestJobStore_Get_NotFound(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"missing"}).
		Return(errRow(pgx.ErrNoRows))

	job, err := s.Get(ctx, "missing")
	assert.Nil(t, job)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// ---------- ListDue ----------

func TestJobStore_ListDue(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	rows := newMockRows(
		jobScan(pendingJob("job-1", now.Add(-10*time.Minute))),
		jobScan(pendingJob("job-2", now.Add(-time.Minute))),
	)
	db.On("Query", ctx, mock.AnythingOfType("string"), []any{model.JobStatusPending, now, 50}).Return(rows, nil)

	jobs, err := s.ListDue(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, "job-2", jobs[1].ID)
	db.AssertExpectations(t)
}

func TestJobStore_ListDue_QueryError(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(nil, errors.New("timeout"))

	_, err := s.ListDue(ctx, time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list due jobs")
}

func TestJobStore_ListDue_IterationError(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	rows := newEmptyMockRows()
	rows.err = errors.New("conn closed")
	db.On("Query", ctx, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := s.ListDue(ctx, time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterate scheduled jobs")
}

// ---------- Claim ----------

func TestJobStore_Claim(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		tag  string
		want bool
	}{
		{"won", "UPDATE 1", true},
		{"already claimed", "UPDATE 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			s := NewJobStore(db)
			db.On("Exec", ctx, mock.MatchedBy(func(sql string) bool {
				return assert.Contains(t, sql, "WHERE id = $4 AND status = $5")
			}), []any{model.JobStatusRunning, "exec_1", now, "job-1", model.JobStatusPending}).
				Return(pgconn.NewCommandTag(tt.tag), nil)

			ok, err := s.Claim(ctx, "job-1", "exec_1", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			db.AssertExpectations(t)
		})
	}
}

func TestJobStore_Claim_DBError(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.CommandTag{}, errors.New("deadlock"))

	ok, err := s.Claim(ctx, "job-1", "exec_1", time.Now())
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "claim scheduled job job-1")
}

// ---------- Complete / Fail ----------

func TestJobStore_Complete(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	now := time.Now()

	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{model.JobStatusCompleted, now, 10, 2, "job-1", model.JobStatusRunning}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := s.Complete(ctx, "job-1", model.JobCompletion{SentCount: 10, FailedCount: 2}, now)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestJobStore_Complete_NotRunning(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	err := s.Complete(ctx, "job-1", model.JobCompletion{}, time.Now())
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestJobStore_Fail(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	now := time.Now()

	db.On("Exec", ctx, mock.AnythingOfType("string"),
		[]any{model.JobStatusFailed, now, "all sends failed", 0, 3, "job-1", model.JobStatusRunning}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := s.Fail(ctx, "job-1", "all sends failed", model.JobCompletion{FailedCount: 3}, now)
	require.NoError(t, err)

	db2 := &mockDB{}
	db2.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	err = NewJobStore(db2).Fail(ctx, "job-1", "x", model.JobCompletion{}, now)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

// ---------- Cancel ----------

func TestJobStore_Cancel_Pending(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), []any{model.JobStatusCancelled, "job-1", model.JobStatusPending}).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	require.NoError(t, s.Cancel(ctx, "job-1"))
	db.AssertExpectations(t)
}

func TestJobStore_Cancel_Running(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	running := pendingJob("job-1", time.Now())
	running.Status = model.JobStatusRunning

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"job-1"}).Return(&mockRow{scanFunc: jobScan(running)})

	err := s.Cancel(ctx, "job-1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "in status running")
}

func TestJobStore_Cancel_AlreadyFinished(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	done := pendingJob("job-1", time.Now())
	done.Status = model.JobStatusCompleted

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), []any{"job-1"}).Return(&mockRow{scanFunc: jobScan(done)})

	err := s.Cancel(ctx, "job-1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "already completed")
}

func TestJobStore_Cancel_Missing(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(errRow(pgx.ErrNoRows))

	err := s.Cancel(ctx, "job-x")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// ---------- FailStale ----------

func TestJobStore_FailStale(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	now := time.Now()
	cutoff := now.Add(-time.Hour)

	stale := pendingJob("job-1", now.Add(-2*time.Hour))
	stale.Status = model.JobStatusFailed

	db.On("Query", ctx, mock.AnythingOfType("string"),
		[]any{model.JobStatusFailed, now, "execution timed out", model.JobStatusRunning, cutoff}).
		Return(newMockRows(jobScan(stale)), nil)

	jobs, err := s.FailStale(ctx, cutoff, now, "execution timed out")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobStatusFailed, jobs[0].Status)
	db.AssertExpectations(t)
}

// ---------- List ----------

func TestJobStore_List_FiltersAndCursor(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()
	now := time.Now()

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return assert.Contains(t, sql, "AND status = $1 AND workflow_id = $2 AND id > $3 ORDER BY id LIMIT $4")
	}), []any{model.JobStatusPending, "wf-1", "job-0", 3}).
		Return(newMockRows(
			jobScan(pendingJob("job-1", now)),
			jobScan(pendingJob("job-2", now)),
			jobScan(pendingJob("job-3", now)),
		), nil)

	jobs, hasMore, err := s.List(ctx, JobFilter{Status: model.JobStatusPending, WorkflowID: "wf-1"}, 2, "job-0")
	require.NoError(t, err)
	assert.True(t, hasMore)
	assert.Len(t, jobs, 2)
	db.AssertExpectations(t)
}

func TestJobStore_List_NoFilters(t *testing.T) {
	db := &mockDB{}
	s := NewJobStore(db)
	ctx := context.Background()

	db.On("Query", ctx, mock.AnythingOfType("string"), []any{51}).Return(newEmptyMockRows(), nil)

	jobs, hasMore, err := s.List(ctx, JobFilter{}, 50, "")
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Empty(t, jobs)
}
