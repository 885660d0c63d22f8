package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"

	"github.com/xxxsen/mrecall/internal/chunker"
	"github.com/xxxsen/mrecall/internal/model"
)

const (
	PayloadInline    = "inline"
	PayloadFileStore = "filestore"
)

type Config struct {
	Port             int              `json:"port"`
	Database         DatabaseConfig   `json:"database"`
	LogConfig        logger.LogConfig `json:"log_config"`
	JWTSecret        string           `json:"jwt_secret"`
	CORSOrigins      []string         `json:"cors_origins"`
	RateLimitSeconds int              `json:"rate_limit_seconds"`
	FileStore        FileStoreConfig  `json:"file_store"`
	PayloadStore     string           `json:"payload_store"`
	AI               AIConfig         `json:"ai"`
	Rerank           RerankConfig     `json:"rerank"`
	Ingest           IngestConfig     `json:"ingest"`
	Queue            QueueConfig      `json:"queue"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type AIConfig struct {
	Embedding   ProviderConfig `json:"embedding"`
	Generator   ProviderConfig `json:"generator"`
	Transcriber ProviderConfig `json:"transcriber"`
	// Timeout bounds generator calls, in seconds.
	Timeout int `json:"timeout"`
}

type RerankConfig struct {
	Enabled         bool `json:"enabled"`
	MaxContentChars int  `json:"max_content_chars"`
}

type IngestConfig struct {
	MaxAttempts       int                       `json:"max_attempts"`
	MaxBackoffSeconds int                       `json:"max_backoff_seconds"`
	Chunk             map[string]chunker.Params `json:"chunk"`
	EmbedBatchSize    int                       `json:"embed_batch_size"`
	EmbedWorkers      int                       `json:"embed_workers"`
	FetchTimeout      int                       `json:"fetch_timeout"`
}

type QueueConfig struct {
	Workers           int    `json:"workers"`
	PollSpec          string `json:"poll_spec"`
	LeaseSeconds      int    `json:"lease_seconds"`
	DeadRetentionDays int    `json:"dead_retention_days"`
}

// ChunkParams returns the configured window for t, falling back to the
// per-type defaults.
func (c IngestConfig) ChunkParams(t model.ArtifactType) chunker.Params {
	if p, ok := c.Chunk[string(t)]; ok && p.MaxTokens > 0 {
		return p
	}
	return chunker.DefaultParams(t)
}

// Load reads a JSON or YAML (by extension) config file. A .env file in the
// working directory is loaded first and ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	data := []byte(expanded)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("decode yaml config: %w", err)
		}
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func (c *Config) applyDefaults() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 16
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 4
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.RateLimitSeconds < 0 {
		return fmt.Errorf("rate_limit_seconds must not be negative")
	}
	switch c.PayloadStore {
	case "":
		c.PayloadStore = PayloadInline
	case PayloadInline:
	case PayloadFileStore:
		if c.FileStore.Type == "" {
			return fmt.Errorf("file_store.type is required when payload_store is filestore")
		}
	default:
		return fmt.Errorf("payload_store must be inline or filestore")
	}
	if c.AI.Embedding.Provider == "" {
		c.AI.Embedding.Provider = "hash"
	}
	if c.AI.Timeout <= 0 {
		c.AI.Timeout = 60
	}
	if c.Rerank.MaxContentChars <= 0 {
		c.Rerank.MaxContentChars = 1500
	}
	if c.Ingest.MaxAttempts <= 0 {
		c.Ingest.MaxAttempts = 3
	}
	if c.Ingest.MaxBackoffSeconds <= 0 {
		c.Ingest.MaxBackoffSeconds = 60
	}
	if c.Ingest.EmbedBatchSize <= 0 {
		c.Ingest.EmbedBatchSize = 64
	}
	if c.Ingest.EmbedWorkers <= 0 {
		c.Ingest.EmbedWorkers = 2
	}
	if c.Ingest.FetchTimeout <= 0 {
		c.Ingest.FetchTimeout = 15
	}
	for name, p := range c.Ingest.Chunk {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("ingest.chunk.%s: %w", name, err)
		}
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.PollSpec == "" {
		c.Queue.PollSpec = "@every 2s"
	}
	if c.Queue.LeaseSeconds <= 0 {
		c.Queue.LeaseSeconds = 300
	}
	if c.Queue.DeadRetentionDays <= 0 {
		c.Queue.DeadRetentionDays = 14
	}
	return nil
}
