package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STAGESYNC_CONFIG", "")
	t.Setenv("BACKEND_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.BackendURL)
	assert.Equal(t, 5, cfg.PageSize)
	assert.Equal(t, 4, cfg.StatusWorkers)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout())
	assert.Equal(t, "favorites.count", cfg.FavoritesSubject)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stagesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend_url: https://api.example.tn
page_size: 10
status_workers: 8
cors_origins: [http://localhost:8081]
`), 0o644))

	t.Setenv("STAGESYNC_CONFIG", path)
	t.Setenv("PAGE_SIZE", "20")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.tn", cfg.BackendURL)
	assert.Equal(t, 20, cfg.PageSize, "env should win over file")
	assert.Equal(t, 8, cfg.StatusWorkers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend_url: [unclosed"), 0o644))

	t.Setenv("STAGESYNC_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.BackendURL = "not a url"
	cfg.PageSize = 0
	cfg.StatusWorkers = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend_url")
	assert.Contains(t, err.Error(), "page_size")
	assert.Contains(t, err.Error(), "status_workers")
}

func TestGetEnvInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("STAGESYNC_TEST_INT", "abc")
	assert.Equal(t, 7, getEnvInt("STAGESYNC_TEST_INT", 7))
}
