package config

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "file", cfg.Catalog.Source)
	assert.Equal(t, 5000, cfg.Matcher.BatchSize)
	assert.GreaterOrEqual(t, cfg.Matcher.Workers, 1)
	assert.Equal(t, "GARD", cfg.Lexicon.IDPrefix)
	assert.Equal(t, 7, cfg.Lexicon.IDWidth)
	assert.Equal(t, "rdsm:", cfg.Redis.Namespace)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  source: snapshot
  snapshotPath: /tmp/lexicon.snap
matcher:
  batchSize: 250
logging:
  level: debug
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "snapshot", cfg.Catalog.Source)
	assert.Equal(t, 250, cfg.Matcher.BatchSize)
	assert.Equal(t, 10, cfg.Matcher.ContextWindow)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadReportsBadFiles(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("matcher: [unclosed"), 0644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RDM_SERVER_PORT", "9191")
	t.Setenv("RDM_MATCHER_BATCH_SIZE", "42")
	t.Setenv("RDM_MATCHER_WORKERS", "not-a-number")
	t.Setenv("RDM_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RDM_LEXICON_LEMMATIZER", "stem")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 42, cfg.Matcher.BatchSize)
	assert.Equal(t, defaultConfig().Matcher.Workers, cfg.Matcher.Workers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "stem", cfg.Lexicon.Lemmatizer)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default file catalog", func(*Config) {}, false},
		{"file without path", func(c *Config) { c.Catalog.Path = "" }, true},
		{"snapshot without path", func(c *Config) { c.Catalog.Source = "snapshot" }, true},
		{"neo4j", func(c *Config) { c.Catalog.Source = "neo4j" }, false},
		{"neo4j without uri", func(c *Config) { c.Catalog.Source = "neo4j"; c.Neo4j.URI = "" }, true},
		{"postgres disabled", func(c *Config) { c.Catalog.Source = "postgres" }, true},
		{"postgres enabled", func(c *Config) { c.Catalog.Source = "postgres"; c.Postgres.Enabled = true }, false},
		{"unknown source", func(c *Config) { c.Catalog.Source = "ftp" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, apperrors.ErrMissingInput)
			assert.Equal(t, apperrors.ExitUsage, apperrors.ExitCode(err))
		})
	}
}

func TestValidateCorpus(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.ValidateCorpus())

	cfg.Corpus.Source = "csv"
	assert.ErrorIs(t, cfg.ValidateCorpus(), apperrors.ErrMissingInput)
	cfg.Corpus.IDField = "id"
	cfg.Corpus.TextFields = []string{"title", "abstract"}
	assert.NoError(t, cfg.ValidateCorpus())

	cfg.Corpus.Source = "postgres"
	cfg.Corpus.Query = "SELECT id, text FROM posts"
	assert.ErrorIs(t, cfg.ValidateCorpus(), apperrors.ErrMissingInput)
	cfg.Postgres.Enabled = true
	assert.NoError(t, cfg.ValidateCorpus())
}
