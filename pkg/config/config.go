package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Store     StoreConfig     `yaml:"store"`
	Registry  RegistryConfig  `yaml:"registry"`
	Processor ProcessorConfig `yaml:"processor"`
	Extractor ExtractorConfig `yaml:"extractor"`
	OCR       OCRConfig       `yaml:"ocr"`
	Vision    VisionConfig    `yaml:"vision"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Eval      EvalConfig      `yaml:"eval"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	UploadDir       string        `yaml:"upload_dir"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig is one credential scope. The vision scope serves the one-time
// visual cache pass; the text scope serves answer synthesis and grading.
type ModelConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`
}

type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	BaseURL           string        `yaml:"base_url"`
	Temperature       float64       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	GenerationTimeout time.Duration `yaml:"generation_timeout"`
	Text              ModelConfig   `yaml:"text"`
	Vision            ModelConfig   `yaml:"vision"`
}

type EmbedderConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Dimension int    `yaml:"dimension"`
	BatchSize int    `yaml:"batch_size"`
}

type StoreConfig struct {
	Backend      string        `yaml:"backend"`
	DatabaseURL  string        `yaml:"database_url"`
	QdrantURL    string        `yaml:"qdrant_url"`
	QdrantAPIKey string        `yaml:"qdrant_api_key"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RegistryConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

type ProcessorConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

type ExtractorConfig struct {
	ScratchDir string `yaml:"scratch_dir"`
	DPI        int    `yaml:"dpi"`
	Pdftoppm   string `yaml:"pdftoppm"`
}

type OCRConfig struct {
	Disabled      bool          `yaml:"disabled"`
	Command       string        `yaml:"command"`
	Lang          string        `yaml:"lang"`
	MinConfidence int           `yaml:"min_confidence"`
	Timeout       time.Duration `yaml:"timeout"`
}

type VisionConfig struct {
	Disabled          bool          `yaml:"disabled"`
	CallDelay         time.Duration `yaml:"call_delay"`
	ErrorDelay        time.Duration `yaml:"error_delay"`
	RequestsPerMinute float64       `yaml:"requests_per_minute"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type EvalConfig struct {
	Backend       string        `yaml:"backend"`
	LogPath       string        `yaml:"log_path"`
	GraderTimeout time.Duration `yaml:"grader_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/mrag/config.yaml"),
			"/etc/mrag/config.yaml",
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
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
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
	if config.Server.Port == "" {
		config.Server.Port = "8000"
	}
	if config.Server.UploadDir == "" {
		config.Server.UploadDir = "uploads"
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 100
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2048
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.GenerationTimeout == 0 {
		config.LLM.GenerationTimeout = 60 * time.Second
	}
	if config.LLM.Provider == "googleai" {
		if config.LLM.Text.Model == "" {
			config.LLM.Text.Model = "gemini-2.5-flash"
		}
		if config.LLM.Vision.Model == "" {
			config.LLM.Vision.Model = "gemini-2.5-flash"
		}
	} else {
		if config.LLM.Text.Model == "" {
			config.LLM.Text.Model = "llama3.2"
		}
		if config.LLM.Vision.Model == "" {
			config.LLM.Vision.Model = "llava"
		}
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = config.LLM.BaseURL
	}
	if config.Embedder.APIKey == "" {
		config.Embedder.APIKey = config.LLM.Text.APIKey
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 64
	}

	if config.Store.Backend == "" {
		switch {
		case config.Store.DatabaseURL != "":
			config.Store.Backend = "pgvector"
		case config.Store.QdrantURL != "":
			config.Store.Backend = "qdrant"
		default:
			config.Store.Backend = "memory"
		}
	}
	if config.Store.Timeout == 0 {
		config.Store.Timeout = 15 * time.Second
	}

	if config.Registry.Type == "" {
		config.Registry.Type = "memory"
	}
	if config.Registry.Path == "" {
		config.Registry.Path = "data/registry.db"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 50
	}

	if config.Extractor.ScratchDir == "" {
		config.Extractor.ScratchDir = filepath.Join(os.TempDir(), "mrag-extract")
	}
	if config.Extractor.DPI == 0 {
		config.Extractor.DPI = 150
	}
	if config.Extractor.Pdftoppm == "" {
		config.Extractor.Pdftoppm = "pdftoppm"
	}

	if config.OCR.Command == "" {
		config.OCR.Command = "tesseract"
	}
	if config.OCR.Lang == "" {
		config.OCR.Lang = "eng"
	}
	if config.OCR.Timeout == 0 {
		config.OCR.Timeout = 60 * time.Second
	}

	if config.Vision.CallDelay == 0 {
		config.Vision.CallDelay = 8 * time.Second
	}
	if config.Vision.ErrorDelay == 0 {
		config.Vision.ErrorDelay = 5 * time.Second
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 5
	}

	if config.Eval.Backend == "" {
		config.Eval.Backend = "heuristic"
	}
	if config.Eval.LogPath == "" {
		config.Eval.LogPath = "rag_metrics_log.csv"
	}
	if config.Eval.GraderTimeout == 0 {
		config.Eval.GraderTimeout = 30 * time.Second
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GEMINI_API"); key != "" {
		config.LLM.Vision.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_NEW"); key != "" {
		config.LLM.Text.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
		config.Embedder.BaseURL = baseURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.DatabaseURL = dbURL
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		config.Store.QdrantURL = qdrantURL
	}
	if qdrantKey := os.Getenv("QDRANT_API"); qdrantKey != "" {
		config.Store.QdrantAPIKey = qdrantKey
	}
	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if level := os.Getenv("MRAG_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
