package config

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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAndSources(t *testing.T) {
	t.Setenv("TEST_WEASYL_KEY", "k3y")
	path := writeConfig(t, `
server:
  port: 9090
sources:
  - id: gallery
    type: weasyl
    api_key: ${TEST_WEASYL_KEY}
    batch_size: 40
  - id: journals
    type: furrynetwork
    character: someone
  - id: local
    type: staging
    path: ./staging
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./data/artsync.db", cfg.Database.DSN())
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.Equal(t, 1, cfg.Paging.MaxEmptyRounds)
	assert.Equal(t, 4, cfg.Export.Workers)
	assert.Equal(t, int64(64<<20), cfg.Export.MaxMediaBytes)

	require.Len(t, cfg.Sources, 3)
	assert.Equal(t, "k3y", cfg.Sources[0].APIKey)
	assert.Equal(t, 40, cfg.Sources[0].BatchSize)

	src, ok := cfg.Source("journals")
	require.True(t, ok)
	assert.Equal(t, "someone", src.Character)
	_, ok = cfg.Source("missing")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sources []SourceConfig
		wantErr string
	}{
		{"ok", []SourceConfig{{ID: "a", Type: SourceArchive}}, ""},
		{"missing id", []SourceConfig{{Type: SourceArchive}}, "id is required"},
		{"duplicate", []SourceConfig{{ID: "a", Type: SourceArchive}, {ID: "a", Type: SourceArchive}}, "duplicate"},
		{"unknown type", []SourceConfig{{ID: "a", Type: "myspace"}}, "unknown type"},
		{"feed without url", []SourceConfig{{ID: "a", Type: SourceFeed}}, "needs url"},
		{"journal without character", []SourceConfig{{ID: "a", Type: SourceFurryNetwork}}, "needs character"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{Sources: tt.sources}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN_Postgres(t *testing.T) {
	c := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", c.DSN())

	c.URL = "postgres://u:p@db/d"
	assert.Equal(t, "postgres://u:p@db/d", c.DSN())
}
