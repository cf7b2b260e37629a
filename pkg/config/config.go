// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (catalog and corpus sources, lexicon, matcher, blacklist, Postgres,
// Kafka, Redis, Neo4j, logging and metrics).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/rdsm-lab/disease-mapper/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Neo4j     Neo4jConfig     `yaml:"neo4j"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Blacklist BlacklistConfig `yaml:"blacklist"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// AdminToken guards blacklist edits and cache invalidation. Empty
	// disables those endpoints.
	AdminToken string `yaml:"adminToken"`
	// RateLimit is requests per minute per client address; 0 disables it.
	RateLimit    int      `yaml:"rateLimit"`
	AllowOrigins []string `yaml:"allowOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	Topics        KafkaTopics   `yaml:"topics"`
	FlushInterval time.Duration `yaml:"flushInterval"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Documents string `yaml:"documents"`
	Results   string `yaml:"results"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`

	// Namespace prefixes every key this service writes.
	Namespace string `yaml:"namespace"`
}

// Neo4jConfig holds the connection settings for a Neo4j disease catalog.
type Neo4jConfig struct {
	URI                          string        `yaml:"uri"`
	Username                     string        `yaml:"username"`
	Password                     string        `yaml:"password"`
	Database                     string        `yaml:"database"`
	MaxConnectionPoolSize        int           `yaml:"maxConnectionPoolSize"`
	ConnectionAcquisitionTimeout time.Duration `yaml:"connectionAcquisitionTimeout"`
}

// CatalogConfig selects where disease records are loaded from. Source is one
// of "file", "neo4j", "postgres" or "snapshot".
type CatalogConfig struct {
	Source       string `yaml:"source"`
	Path         string `yaml:"path"`
	RareOnly     bool   `yaml:"rareOnly"`
	SnapshotPath string `yaml:"snapshotPath"`
	Query        string `yaml:"query"`
}

// CorpusConfig selects where documents are loaded from. Source is one of
// "json", "csv" or "postgres".
type CorpusConfig struct {
	Source      string   `yaml:"source"`
	Path        string   `yaml:"path"`
	IDField     string   `yaml:"idField"`
	TextFields  []string `yaml:"textFields"`
	Query       string   `yaml:"query"`
	CSVComma    string   `yaml:"csvComma"`
	MaxTextSize int      `yaml:"maxTextSize"`
}

// LexiconConfig controls which catalog terms become lexicon keys.
type LexiconConfig struct {
	// Lemmatizer is "dictionary", "stem" or "none".
	Lemmatizer          string     `yaml:"lemmatizer"`
	MinNameLength       int        `yaml:"minNameLength"`
	MinSynonymLength    int        `yaml:"minSynonymLength"`
	SkipAcronymSynonyms bool       `yaml:"skipAcronymSynonyms"`
	Stopwords           []string   `yaml:"stopwords"`
	Overrides           []Override `yaml:"overrides"`
	IDPrefix            string     `yaml:"idPrefix"`
	IDWidth             int        `yaml:"idWidth"`
}

// Override adds (ID set) or removes (ID empty) one lexicon term after build.
type Override struct {
	Term string `yaml:"term"`
	ID   string `yaml:"id"`
}

// MatcherConfig controls batch partitioning and the worker pool.
type MatcherConfig struct {
	BatchSize     int `yaml:"batchSize"`
	Workers       int `yaml:"workers"`
	ContextWindow int `yaml:"contextWindow"`
}

// BlacklistConfig points at the editable false-positive lists.
type BlacklistConfig struct {
	Path         string `yaml:"path"`
	Watch        bool   `yaml:"watch"`
	SkipDefaults bool   `yaml:"skipDefaults"`
}

// OutputConfig controls where run results are written.
type OutputConfig struct {
	Dir           string   `yaml:"dir"`
	SaveToStore   bool     `yaml:"saveToStore"`
	ColumnOrder   []string `yaml:"columnOrder"`
	WriteWeighted bool     `yaml:"writeWeighted"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks that the inputs a batch run cannot do without are present.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case "file":
		if c.Catalog.Path == "" {
			return apperrors.Newf(apperrors.ErrMissingInput, "catalog.path is required for source %q", c.Catalog.Source)
		}
	case "snapshot":
		if c.Catalog.SnapshotPath == "" {
			return apperrors.New(apperrors.ErrMissingInput, "catalog.snapshotPath is required for source \"snapshot\"")
		}
	case "neo4j":
		if c.Neo4j.URI == "" {
			return apperrors.New(apperrors.ErrMissingInput, "neo4j.uri is required for source \"neo4j\"")
		}
	case "postgres":
		if !c.Postgres.Enabled {
			return apperrors.New(apperrors.ErrMissingInput, "postgres must be enabled for source \"postgres\"")
		}
	default:
		return apperrors.Newf(apperrors.ErrMissingInput, "unknown catalog source %q", c.Catalog.Source)
	}
	return nil
}

// ValidateCorpus checks that a document source is configured.
func (c *Config) ValidateCorpus() error {
	switch c.Corpus.Source {
	case "json", "csv":
		if c.Corpus.Path == "" {
			return apperrors.Newf(apperrors.ErrMissingInput, "corpus.path is required for source %q", c.Corpus.Source)
		}
		if c.Corpus.Source == "csv" && (c.Corpus.IDField == "" || len(c.Corpus.TextFields) == 0) {
			return apperrors.New(apperrors.ErrMissingInput, "corpus.idField and corpus.textFields are required for csv input")
		}
	case "postgres":
		if !c.Postgres.Enabled || c.Corpus.Query == "" {
			return apperrors.New(apperrors.ErrMissingInput, "postgres corpus source needs postgres.enabled and corpus.query")
		}
	default:
		return apperrors.Newf(apperrors.ErrMissingInput, "unknown corpus source %q", c.Corpus.Source)
	}
	return nil
}

// defaultConfig returns a Config with defaults suited to local development.
func defaultConfig() *Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimit:       600,
			AllowOrigins:    []string{"*"},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "diseasemapper",
			User:            "diseasemapper",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "disease-mapper",
			Topics: KafkaTopics{
				Documents: "documents",
				Results:   "disease-matches",
			},
			FlushInterval: 5 * time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  10 * time.Minute,
			Namespace: "rdsm:",
		},
		Neo4j: Neo4jConfig{
			URI:                          "bolt://disease.ncats.io:80",
			Database:                     "neo4j",
			MaxConnectionPoolSize:        10,
			ConnectionAcquisitionTimeout: 60 * time.Second,
		},
		Catalog: CatalogConfig{
			Source:   "file",
			Path:     "data/input/neo4j_rare_disease_list.json",
			RareOnly: true,
			Query:    "SELECT id, name, synonyms FROM diseases ORDER BY id",
		},
		Corpus: CorpusConfig{
			Source:      "json",
			Path:        "data/input/preprocessed_subreddit_list.json",
			MaxTextSize: 10 << 20,
		},
		Lexicon: LexiconConfig{
			Lemmatizer:          "dictionary",
			MinNameLength:       2,
			MinSynonymLength:    4,
			SkipAcronymSynonyms: true,
			IDPrefix:            "GARD",
			IDWidth:             7,
		},
		Matcher: MatcherConfig{
			BatchSize:     5000,
			Workers:       workers,
			ContextWindow: 10,
		},
		Output: OutputConfig{
			Dir: "data/output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RDM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RDM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RDM_SERVER_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("RDM_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("RDM_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("RDM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RDM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RDM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RDM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RDM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RDM_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("RDM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RDM_REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v, cfg.Redis.Enabled)
	}
	if v := os.Getenv("RDM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RDM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RDM_NEO4J_URI"); v != "" {
		cfg.Neo4j.URI = v
	}
	if v := os.Getenv("RDM_NEO4J_USERNAME"); v != "" {
		cfg.Neo4j.Username = v
	}
	if v := os.Getenv("RDM_NEO4J_PASSWORD"); v != "" {
		cfg.Neo4j.Password = v
	}
	if v := os.Getenv("RDM_CATALOG_SOURCE"); v != "" {
		cfg.Catalog.Source = v
	}
	if v := os.Getenv("RDM_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("RDM_CORPUS_SOURCE"); v != "" {
		cfg.Corpus.Source = v
	}
	if v := os.Getenv("RDM_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v := os.Getenv("RDM_LEXICON_LEMMATIZER"); v != "" {
		cfg.Lexicon.Lemmatizer = v
	}
	if v := os.Getenv("RDM_MATCHER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matcher.BatchSize = n
		}
	}
	if v := os.Getenv("RDM_MATCHER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Matcher.Workers = n
		}
	}
	if v := os.Getenv("RDM_BLACKLIST_PATH"); v != "" {
		cfg.Blacklist.Path = v
	}
	if v := os.Getenv("RDM_OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("RDM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RDM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("RDM_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v, cfg.Metrics.Enabled)
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
