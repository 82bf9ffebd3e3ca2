package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Database   DatabaseConfig   `yaml:"database"`
	GCP        GCPConfig        `yaml:"gcp"`
	Storage    StorageConfig    `yaml:"storage"`
	Speech     SpeechConfig     `yaml:"speech"`
	OCR        OCRConfig        `yaml:"ocr"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Moderation ModerationConfig `yaml:"moderation"`
	Server     ServerConfig     `yaml:"server"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Log        LogConfig        `yaml:"log"`
}

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai or ollama
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"` // nil means the default; 0 is honoured
}

type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

type DatabaseConfig struct {
	Backend   string `yaml:"backend"` // postgres or memory
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
}

// GCPConfig applies to every Google Cloud client (storage, speech, vision).
type GCPConfig struct {
	ProjectID string `yaml:"project_id"`
}

type StorageConfig struct {
	Backend   string `yaml:"backend"` // gcs or local
	Bucket    string `yaml:"bucket"`
	LocalRoot string `yaml:"local_root"`
}

type SpeechConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Model        string        `yaml:"model"` // best or nano
	LanguageCode string        `yaml:"language_code"`
	Diarize      bool          `yaml:"diarize"`
	PollInitial  time.Duration `yaml:"poll_initial"`
	PollMax      time.Duration `yaml:"poll_max"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DPI      int    `yaml:"dpi"`
	Pdftoppm string `yaml:"pdftoppm"`
}

type ProcessorConfig struct {
	EncodingModel string   `yaml:"encoding_model"`
	WindowTokens  int      `yaml:"window_tokens"`
	ChunkSize     int      `yaml:"chunk_size"`
	Concurrency   int      `yaml:"concurrency"`
	RateLimit     float64  `yaml:"rate_limit"`
	Town          string   `yaml:"town"`
	Model         string   `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	MaxTokens     int      `yaml:"max_tokens"`
}

type RetrievalConfig struct {
	Mode  string `yaml:"mode"`
	Limit int    `yaml:"limit"`
}

type ModerationConfig struct {
	Model string `yaml:"model"`
}

type ServerConfig struct {
	Port      string `yaml:"port"`
	Streaming bool   `yaml:"streaming"`
}

type ScraperConfig struct {
	MaxDepth       int      `yaml:"max_depth"`
	RateLimit      float64  `yaml:"rate_limit"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

type TimeoutConfig struct {
	Embedding     time.Duration `yaml:"embedding"`
	Generation    time.Duration `yaml:"generation"`
	Moderation    time.Duration `yaml:"moderation"`
	VectorIndex   time.Duration `yaml:"vector_index"`
	ObjectStore   time.Duration `yaml:"object_store"`
	Transcription time.Duration `yaml:"transcription"`
	OCR           time.Duration `yaml:"ocr"`
}

type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/minutemate/config.yaml"),
			"/etc/minutemate/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	ollama := config.LLM.Provider == "ollama"
	if config.LLM.Model == "" {
		if ollama {
			config.LLM.Model = "mistral"
		} else {
			config.LLM.Model = "gpt-4o"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == nil {
		config.LLM.Temperature = Float(0.7)
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		if config.Embedding.Provider == "ollama" {
			config.Embedding.Model = "nomic-embed-text:latest"
		} else {
			config.Embedding.Model = "text-embedding-3-small"
		}
	}
	if config.Embedding.BaseURL == "" {
		config.Embedding.BaseURL = config.LLM.BaseURL
	}

	if config.Database.Backend == "" {
		if config.Database.URL != "" {
			config.Database.Backend = "postgres"
		} else {
			config.Database.Backend = "memory"
		}
	}
	if config.Database.TableName == "" {
		config.Database.TableName = "meeting_documents"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = embeddingDims(config.Embedding.Model)
	}

	if config.Storage.Backend == "" {
		if config.Storage.Bucket != "" {
			config.Storage.Backend = "gcs"
		} else {
			config.Storage.Backend = "local"
		}
	}
	if config.Storage.LocalRoot == "" {
		config.Storage.LocalRoot = "data"
	}

	if config.Speech.Model == "" {
		config.Speech.Model = "best"
	}
	if config.Speech.LanguageCode == "" {
		config.Speech.LanguageCode = "en-US"
	}
	if config.Speech.PollInitial == 0 {
		config.Speech.PollInitial = 2 * time.Second
	}
	if config.Speech.PollMax == 0 {
		config.Speech.PollMax = 30 * time.Second
	}
	if config.Speech.MaxWait == 0 {
		config.Speech.MaxWait = 30 * time.Minute
	}

	if config.OCR.DPI == 0 {
		config.OCR.DPI = 300
	}
	if config.OCR.Pdftoppm == "" {
		config.OCR.Pdftoppm = "pdftoppm"
	}

	if config.Processor.EncodingModel == "" {
		config.Processor.EncodingModel = "text-embedding-ada-002"
	}
	if config.Processor.WindowTokens == 0 {
		config.Processor.WindowTokens = 250
	}
	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 250
	}
	if config.Processor.Concurrency == 0 {
		config.Processor.Concurrency = 1
	}
	if config.Processor.RateLimit == 0 {
		config.Processor.RateLimit = 5
	}
	if config.Processor.Town == "" {
		config.Processor.Town = "Cramerton"
	}
	if config.Processor.Model == "" {
		if ollama {
			config.Processor.Model = config.LLM.Model
		} else {
			config.Processor.Model = "gpt-4"
		}
	}
	if config.Processor.Temperature == nil {
		config.Processor.Temperature = Float(0.5)
	}
	if config.Processor.MaxTokens == 0 {
		config.Processor.MaxTokens = 500
	}

	if config.Retrieval.Mode == "" {
		config.Retrieval.Mode = "keyword"
	}
	if config.Retrieval.Limit == 0 {
		config.Retrieval.Limit = 5
	}

	if config.Moderation.Model == "" {
		config.Moderation.Model = config.LLM.Model
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 2
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}

	if config.Timeouts.Embedding == 0 {
		config.Timeouts.Embedding = 30 * time.Second
	}
	if config.Timeouts.Generation == 0 {
		config.Timeouts.Generation = 60 * time.Second
	}
	if config.Timeouts.Moderation == 0 {
		config.Timeouts.Moderation = 20 * time.Second
	}
	if config.Timeouts.VectorIndex == 0 {
		config.Timeouts.VectorIndex = 30 * time.Second
	}
	if config.Timeouts.ObjectStore == 0 {
		config.Timeouts.ObjectStore = 60 * time.Second
	}
	if config.Timeouts.Transcription == 0 {
		config.Timeouts.Transcription = 3 * time.Minute
	}
	if config.Timeouts.OCR == 0 {
		config.Timeouts.OCR = 60 * time.Second
	}

	if config.Log.Mode == "" {
		config.Log.Mode = "dev"
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

// Float returns a pointer to v, for optional numeric settings.
func Float(v float64) *float64 {
	return &v
}

// embeddingDims is the vector size produced by well-known embedding models.
func embeddingDims(model string) int {
	switch strings.TrimSuffix(model, ":latest") {
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.Provider = "ollama"
		config.LLM.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if bucket := os.Getenv("GCS_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}
	if project := os.Getenv("GOOGLE_CLOUD_PROJECT"); project != "" {
		config.GCP.ProjectID = project
	}
	if town := os.Getenv("MINUTEMATE_TOWN"); town != "" {
		config.Processor.Town = town
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if mode := os.Getenv("LOG_MODE"); mode != "" {
		config.Log.Mode = mode
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if v := os.Getenv("MINUTEMATE_CLEAN_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Processor.Concurrency = n
		}
	}
}
