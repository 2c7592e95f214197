package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 3072, cfg.Upload.SniffBytes)
	assert.Equal(t, []string{"image/*", "pdf"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, time.Hour, cfg.Upload.StagingTTL)
	assert.Equal(t, "ingest", cfg.Database.DBName)
	assert.Equal(t, 4, cfg.WorkerPool.Workers)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.MinIO.Enabled)
}

func TestLoadConfig_FileEnvAndFlags(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
log:
  level: warn
upload:
  max_bytes: 2048
  allowed_types: [png, jpg]
  staging_ttl: 30m
database:
  maxopenconns: 7
`)

	t.Setenv("INGEST_UPLOAD_JPEG_QUALITY", "75")

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--server.port=9100"}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "flag overrides file")
	assert.Equal(t, "warn", cfg.Log.Level, "unset flag keeps file value")
	assert.Equal(t, int64(2048), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"png", "jpg"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, 30*time.Minute, cfg.Upload.StagingTTL)
	assert.Equal(t, 75, cfg.Upload.JPEGQuality)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, "logs/ingest.log", cfg.Log.File.Filename)
	assert.False(t, cfg.Upload.VerifyRender)
	assert.Equal(t, "ingest:purge", cfg.Upload.PurgeQueueKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"same staging and storage", "upload:\n  staging_dir: /srv/a\n  storage_root: /srv/a\n"},
		{"same dir spelled differently", "upload:\n  staging_dir: /srv/a\n  storage_root: /srv/x/../a/\n"},
		{"dot-prefixed spelling", "upload:\n  staging_dir: data/staging\n  quarantine_dir: ./data/staging\n"},
		{"staging inside storage", "upload:\n  storage_root: data\n  staging_dir: data/staging\n"},
		{"storage inside quarantine", "upload:\n  quarantine_dir: /srv/q\n  storage_root: /srv/q/store\n"},
		{"zero max bytes", "upload:\n  max_bytes: 0\n"},
		{"bad jpeg quality", "upload:\n  jpeg_quality: 101\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad gin mode", "server:\n  mode: production\n"},
		{"redis enabled without addr", "redis:\n  enabled: true\n  addr: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body), nil)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server: [unclosed"), nil)
	assert.Error(t, err)
}

func TestServerAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	assert.Equal(t, "127.0.0.1:8080", s.Addr())
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/srv/data", "/srv/data"))
	assert.True(t, isWithin("/srv/data/staging", "/srv/data"))
	assert.False(t, isWithin("/srv/data2", "/srv/data"))
	assert.False(t, isWithin("/srv/data", "/srv/data/staging"))
	assert.False(t, isWithin("/srv/..data", "/srv/data"))
}
