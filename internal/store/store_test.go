package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Hromosvod-Enjoyers/Kocek/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore checks the get-all/replace-all contract shared by all backends.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	var users []models.User
	err := s.LoadAll(ctx, Users, &users)
	assert.True(t, errors.Is(err, ErrNotFound), "missing collection should report ErrNotFound, got %v", err)

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []models.User{{Username: "alice", CreatedAt: now}, {Username: "bob", CreatedAt: now}}
	require.NoError(t, s.ReplaceAll(ctx, Users, in))
	require.NoError(t, s.LoadAll(ctx, Users, &users))
	assert.Equal(t, in, users)

	require.NoError(t, s.ReplaceAll(ctx, Users, []models.User{}))
	users = nil
	require.NoError(t, s.LoadAll(ctx, Users, &users))
	assert.Empty(t, users)

	log := models.ActivityLog{"10.0.0.1": {"alice", "alice"}}
	require.NoError(t, s.ReplaceAll(ctx, ActivityLog, log))
	var got models.ActivityLog
	require.NoError(t, s.LoadAll(ctx, ActivityLog, &got))
	assert.Equal(t, log, got)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "data"))
	require.NoError(t, err)
	exerciseStore(t, s)

	_, err = os.Stat(filepath.Join(dir, "data", "activity-log.json"))
	assert.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Failure(t *testing.T) {
	s := NewMemoryStore()
	boom := errors.New("disk full")
	s.SetFailure(Messages, boom)
	err := s.ReplaceAll(context.Background(), Messages, []models.Message{})
	assert.ErrorIs(t, err, boom)

	s.SetFailure(Messages, nil)
	assert.NoError(t, s.ReplaceAll(context.Background(), Messages, []models.Message{}))
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CHAT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("skip: CHAT_TEST_DATABASE_DSN not set")
	}
	s, err := OpenPostgres(dsn)
	if err != nil {
		t.Skipf("skip: db not available: %v", err)
	}
	defer s.Close()
	// Start from a clean table so the not-found assertion holds.
	require.NoError(t, s.db.Where("1 = 1").Delete(&models.Document{}).Error)
	exerciseStore(t, s)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("mongo", t.TempDir(), "")
	assert.Error(t, err)
}
