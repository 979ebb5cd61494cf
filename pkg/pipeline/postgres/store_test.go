package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/pipeline-relay/pkg/pipeline"
)

const (
	pgTestSessID = "7d7c4f0e-1a2b-4c3d-8e9f-0a1b2c3d4e5f"
	pgTestAgent  = "a1"
	pgTestProj   = "p1"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func sessionRow(now time.Time, status string) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		pgTestSessID, pgTestAgent, pgTestProj, "idea", "", "", status,
		[]byte(`{"k":"v"}`), now, now, nil, nil,
	)
}

func TestCreateSession_Success(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(pgTestSessID, pgTestAgent, pgTestProj, "idea", "alice", "main", "active", []byte("{}"), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sess, err := store.CreateSession(context.Background(), pipeline.NewSession{
		ID: pgTestSessID, Agent: pgTestAgent, Project: pgTestProj, Command: "idea",
		User: "alice", Branch: "main", Now: now,
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusActive, sess.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession_DBError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("INSERT INTO sessions").WillReturnError(errors.New("connection refused"))

	_, err := store.CreateSession(context.Background(), pipeline.NewSession{ID: pgTestSessID, Now: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSession_Found(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs(pgTestSessID).WillReturnRows(sessionRow(now, "active"))

	sess, err := store.GetSession(context.Background(), pgTestSessID)
	require.NoError(t, err)
	assert.Equal(t, pgTestAgent, sess.Agent)
	assert.Equal(t, "v", sess.Metadata["k"])
	assert.Nil(t, sess.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSession_NotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs("missing").WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSessionWithSteps(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM sessions").WithArgs(pgTestSessID).WillReturnRows(sessionRow(now, "active"))
	mock.ExpectQuery("SELECT .+ FROM steps").WithArgs(pgTestSessID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "session_id", "seq", "kind", "document_name", "content", "rendered_html", "command", "exit_code", "created_at"}).
			AddRow("st1", pgTestSessID, int64(1), "output", "", "hi", "<p>hi</p>", "", nil, now).
			AddRow("st2", pgTestSessID, int64(2), "command", "", "ls", "<p>ls</p>", "ls", int64(2), now),
	)

	sess, err := store.GetSessionWithSteps(context.Background(), pgTestSessID)
	require.NoError(t, err)
	require.Len(t, sess.Steps, 2)
	assert.Nil(t, sess.Steps[0].ExitCode)
	require.NotNil(t, sess.Steps[1].ExitCode)
	assert.Equal(t, 2, *sess.Steps[1].ExitCode)
	assert.Equal(t, pipeline.StepCommand, sess.Steps[1].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessions_Filter(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE deleted_at IS NULL AND status = \\$1 AND agent = \\$2 ORDER BY started_at DESC LIMIT 200").
		WithArgs("active", pgTestAgent).
		WillReturnRows(sessionRow(now, "active"))

	sessions, err := store.ListSessions(context.Background(), pipeline.ListFilter{
		Status: pipeline.StatusActive,
		Agent:  pgTestAgent,
	})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendStep_Success(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	code := 0

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM sessions WHERE id = \\$1 AND deleted_at IS NULL FOR UPDATE").
		WithArgs(pgTestSessID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(pgTestSessID))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(seq\\), 0\\) \\+ 1 FROM steps").
		WithArgs(pgTestSessID).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO steps").
		WithArgs("st4", pgTestSessID, int64(4), "command", "", "make", "<p>make</p>", "make", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions SET updated_at").
		WithArgs(pgTestSessID, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	st, err := store.AppendStep(context.Background(), pgTestSessID, pipeline.NewStep{
		ID: "st4", Kind: pipeline.StepCommand, Content: "make", RenderedHTML: "<p>make</p>",
		Command: "make", ExitCode: &code, Now: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendStep_SessionMissing(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM sessions").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.AppendStep(context.Background(), "missing", pipeline.NewStep{ID: "x", Now: time.Now()})
	assert.ErrorIs(t, err, pipeline.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendStep_InsertError(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(pgTestSessID))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO steps").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := store.AppendStep(context.Background(), pgTestSessID, pipeline.NewStep{ID: "x", Now: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting step")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimResumableSession(t *testing.T) {
	t.Run("claims one row", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectQuery("UPDATE sessions .+ FOR UPDATE SKIP LOCKED").
			WithArgs(pgTestAgent, pgTestProj, now).
			WillReturnRows(sessionRow(now, "active"))

		sess, err := store.ClaimResumableSession(context.Background(), pgTestAgent, pgTestProj, now)
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusActive, sess.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no candidate", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectQuery("UPDATE sessions").
			WithArgs(pgTestAgent, pgTestProj, now).
			WillReturnRows(sqlmock.NewRows(sessionColumns))

		_, err := store.ClaimResumableSession(context.Background(), pgTestAgent, pgTestProj, now)
		assert.ErrorIs(t, err, pipeline.ErrNoResumableSession)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Run("moves from expected status", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectQuery("UPDATE sessions").
			WithArgs(pgTestSessID, "active", "completed", now).
			WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(
				pgTestSessID, pgTestAgent, pgTestProj, "idea", "", "", "completed",
				[]byte(`{}`), now, now, now, nil,
			))

		sess, err := store.UpdateStatus(context.Background(), pgTestSessID, pipeline.StatusActive, pipeline.StatusCompleted, now)
		require.NoError(t, err)
		assert.Equal(t, pipeline.StatusCompleted, sess.Status)
		assert.NotNil(t, sess.CompletedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	tests := []struct {
		name   string
		exists bool
		want   error
	}{
		{name: "status already moved", exists: true, want: pipeline.ErrStatusConflict},
		{name: "session gone", exists: false, want: pipeline.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMock(t)
			now := time.Now().UTC()

			mock.ExpectQuery("UPDATE sessions").
				WithArgs(pgTestSessID, "active", "paused", now).
				WillReturnRows(sqlmock.NewRows(sessionColumns))
			mock.ExpectQuery("SELECT EXISTS").
				WithArgs(pgTestSessID).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			_, err := store.UpdateStatus(context.Background(), pgTestSessID, pipeline.StatusActive, pipeline.StatusPaused, now)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSoftDelete(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE sessions SET deleted_at").
			WithArgs(pgTestSessID, now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.SoftDelete(context.Background(), pgTestSessID, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already deleted", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE sessions SET deleted_at").
			WithArgs(pgTestSessID, now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.SoftDelete(context.Background(), pgTestSessID, now), pipeline.ErrNotFound)
	})
}
