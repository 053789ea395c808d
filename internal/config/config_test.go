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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "next-bot", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30, cfg.Tools.CustomToolTimeout)
	assert.Equal(t, 30*time.Second, cfg.Tools.CustomToolTimeoutDuration())
	assert.Equal(t, 30, cfg.Tools.SlotInterval)
	assert.False(t, cfg.Tools.BookingLock)
	assert.Equal(t, "https://services.leadconnectorhq.com", cfg.GoHighLevel.BaseURL)
	assert.Equal(t, "2021-04-15", cfg.GoHighLevel.APIVersion)
	assert.Equal(t, "localhost:6379", cfg.Redis.GetAddr())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
security:
  encryptionKey: file-key
tools:
  customToolTimeout: 5
google:
  clientId: google-client
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("NEXT_BOT_SECURITY_ENCRYPTIONKEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "env-key", cfg.Security.EncryptionKey)
	assert.Equal(t, 5, cfg.Tools.CustomToolTimeout)
	assert.Equal(t, "google-client", cfg.Google.ClientID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.GetDSN())
}
