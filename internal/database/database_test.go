package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.db")

	db, err := New(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
	assert.FileExists(t, path)
}

func TestNew_Memory(t *testing.T) {
	db, err := New(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}
