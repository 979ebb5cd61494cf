package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/pipeline-relay/pkg/agentkey"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestCreateBearerToken(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO agent_tokens").
		WithArgs("t1", "bot", "hash", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateBearerToken(context.Background(), &agentkey.BearerToken{
		ID: "t1", Agent: "bot", TokenHash: "hash", CreatedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBearerToken_Error(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec("INSERT INTO agent_tokens").WillReturnError(errors.New("duplicate key"))

	err := store.CreateBearerToken(context.Background(), &agentkey.BearerToken{ID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting bearer token")
}

func TestRevokeBearerToken(t *testing.T) {
	t.Run("revoked", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE agent_tokens SET revoked_at").
			WithArgs("t1", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.RevokeBearerToken(context.Background(), "t1", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newMock(t)
		now := time.Now().UTC()

		mock.ExpectExec("UPDATE agent_tokens").
			WithArgs("t1", now).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.RevokeBearerToken(context.Background(), "t1", now), agentkey.ErrNotFound)
	})
}

func TestListActiveBearerTokens(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, agent, token_hash, created_at, revoked_at FROM agent_tokens WHERE revoked_at IS NULL ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(tokenColumns).AddRow("t1", "bot", "hash", now, nil))

	tokens, err := store.ListActiveBearerTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.True(t, tokens[0].Active())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBearerTokens(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM agent_tokens ORDER BY created_at DESC").
		WillReturnRows(sqlmock.NewRows(tokenColumns).
			AddRow("t2", "bot", "h2", now, nil).
			AddRow("t1", "bot", "h1", now.Add(-time.Hour), now))

	tokens, err := store.ListBearerTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.False(t, tokens[1].Active())
}

func TestAgentExists(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("bot").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.AgentExists(context.Background(), "bot")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
