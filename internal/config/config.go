package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"bmrag"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"bmrag"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`

	PubMedBaseURL string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey  string `envconfig:"PUBMED_API_KEY"`
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`

	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`

	// Ingestion
	BatchSize           int     `envconfig:"BATCH_SIZE" default:"100"`
	BatchPauseMS        int     `envconfig:"BATCH_PAUSE_MS" default:"500"`
	MaxDocumentsPerArea int     `envconfig:"MAX_DOCUMENTS_PER_AREA" default:"1000"`
	DefaultQualityScore float64 `envconfig:"DEFAULT_QUALITY_SCORE" default:"0.7"`

	// Chunking
	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	// Retrieval
	TopKResults        int     `envconfig:"TOP_K_RESULTS" default:"10"`
	MinConfidenceScore float64 `envconfig:"MIN_CONFIDENCE_SCORE" default:"0.7"`

	// The title-fingerprint duplicate check is collision-tolerant by construction;
	// this knob turns the fallback off entirely.
	TitleFingerprintDedup bool `envconfig:"TITLE_FINGERPRINT_DEDUP" default:"true"`
	// When set, pause/cancel signal the job's context and the batch loop stops at
	// the next batch boundary instead of only flagging stored status.
	StrictCancellation bool `envconfig:"STRICT_CANCELLATION" default:"false"`

	EnableAPI           bool   `envconfig:"ENABLE_API" default:"true"`
	EnableReindexWorker bool   `envconfig:"ENABLE_REINDEX_WORKER" default:"false"`
	MigrationPath       string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort int `envconfig:"SERVER_PORT" default:"8081"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	// Overlap must stay below chunk size or the chunker cannot make forward progress.
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.MinConfidenceScore < 0 || c.MinConfidenceScore > 1 {
		return fmt.Errorf("MIN_CONFIDENCE_SCORE must be in [0, 1], got %f", c.MinConfidenceScore)
	}
	return nil
}
