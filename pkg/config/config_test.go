package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bloom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.00001, cfg.Index.ErrorRate)
	assert.Equal(t, 1, cfg.Index.MinTokenLength)
	assert.Equal(t, 8, cfg.Loader.Workers)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
index:
  bits: 10000
  hashes: 7
  stem: true
dump:
  compress: true
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Index.Bits)
	assert.Equal(t, 7, cfg.Index.Hashes)
	assert.True(t, cfg.Index.Stem)
	assert.True(t, cfg.Dump.Compress)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched sections keep their defaults
	assert.Equal(t, "bloom_dumps", cfg.Postgres.Table)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "index:\n  bits: 512\n  hashes: 3\n")
	t.Setenv("BLOOM_INDEX_BITS", "2048")
	t.Setenv("BLOOM_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2048, cfg.Index.Bits)
	assert.Equal(t, 3, cfg.Index.Hashes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative bits", func(c *Config) { c.Index.Bits = -1; c.Index.Hashes = 3 }},
		{"bits without hashes", func(c *Config) { c.Index.Bits = 100 }},
		{"error rate too high", func(c *Config) { c.Index.ErrorRate = 1 }},
		{"no expected terms", func(c *Config) { c.Index.ExpectedTerms = 0 }},
		{"zero token length", func(c *Config) { c.Index.MinTokenLength = 0 }},
		{"no workers", func(c *Config) { c.Loader.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t, "host=localhost port=5432 user=bloomindex password=localdev dbname=bloomindex sslmode=disable", p.DSN())
}
