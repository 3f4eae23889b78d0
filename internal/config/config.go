package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-search/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed payload.yaml
var payloadYAML []byte

type Config struct {
	Web       WebConfig
	Embedding EmbeddingConfig
	Detector  DetectorConfig
	Index     IndexConfig
	Database  DatabaseConfig
	Limits    LimitsConfig
	Storage   StorageConfig
	Log       LogConfig
	Payload   PayloadConfig
}

type WebConfig struct {
	Host           string
	Port           int
	PublicURL      string   // base URL used when rendering query image links (e.g., https://faces.example.com)
	AllowedOrigins []string // extra CORS origins, localhost is always allowed
}

type EmbeddingConfig struct {
	URL             string // DeepFace API base URL, defaults to http://localhost:5005
	Model           string // defaults to Facenet512
	DetectorBackend string // defaults to retinaface
	Concurrency     int    // ceiling of in-flight calls, <= 0 disables the limit
	TimeoutMS       int    // per-call timeout in milliseconds
}

// Timeout returns the per-call timeout as a duration.
func (c *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type DetectorConfig struct {
	URL           string  // face detection server, defaults to the embedding URL
	MinConfidence float64 // detections below this score are dropped
}

type IndexConfig struct {
	Backend  string // "hnsw" (default) or "postgres"
	HNSWPath string // path to persist the HNSW index (optional, in-memory only when empty)
	Dim      int    // embedding dimension, defaults to 512
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type LimitsConfig struct {
	MaxImageBytes  int
	MaxSearchLimit int
	MaxSearchPage  int
	EmbeddingDim   int // length required of client-supplied embeddings, same as Index.Dim
}

type StorageConfig struct {
	QueryImageDir string // directory for best-effort query image copies, disabled when empty
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// PayloadConfig lists, per canonical payload field, the upstream field names
// accepted for it in priority order.
type PayloadConfig struct {
	Fields map[string][]string `yaml:"fields"`
}

// envInt reads an environment variable and parses it as an integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return defaultVal
}

// envPositiveInt is envInt that also rejects zero and negative values.
func envPositiveInt(key string, defaultVal int) int {
	if n := envInt(key, defaultVal); n > 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var payload PayloadConfig
	if err := yaml.Unmarshal(payloadYAML, &payload); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded payload.yaml: " + err.Error())
	}

	embeddingURL := envString("DEEPFACE_API_URL", "http://localhost:5005")
	dim := envPositiveInt("EMBEDDING_DIM", constants.DefaultEmbeddingDim)

	return &Config{
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envPositiveInt("WEB_PORT", 8080),
			PublicURL:      strings.TrimSuffix(os.Getenv("WEB_PUBLIC_URL"), "/"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Embedding: EmbeddingConfig{
			URL:             embeddingURL,
			Model:           envString("DEEPFACE_MODEL", constants.DefaultEmbeddingModel),
			DetectorBackend: envString("DEEPFACE_DETECTOR_BACKEND", constants.DefaultDetectorBackend),
			Concurrency:     envInt("DEEPFACE_CONCURRENCY", constants.DefaultEmbeddingConcurrency),
			TimeoutMS:       envPositiveInt("DEEPFACE_TIMEOUT_MS", constants.DefaultEmbeddingTimeoutMS),
		},
		Detector: DetectorConfig{
			URL:           envString("FACE_DETECTOR_URL", embeddingURL),
			MinConfidence: envFloat("FACE_MIN_CONFIDENCE", constants.DefaultMinFaceConfidence),
		},
		Index: IndexConfig{
			Backend:  envString("INDEX_BACKEND", "hnsw"),
			HNSWPath: os.Getenv("HNSW_INDEX_PATH"),
			Dim:      dim,
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envPositiveInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envPositiveInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Limits: LimitsConfig{
			MaxImageBytes:  envPositiveInt("MAX_IMAGE_BYTES", constants.DefaultMaxImageBytes),
			MaxSearchLimit: envPositiveInt("SEARCH_MAX_LIMIT", constants.DefaultMaxSearchLimit),
			MaxSearchPage:  envPositiveInt("SEARCH_MAX_PAGE", constants.DefaultMaxSearchPage),
			EmbeddingDim:   dim,
		},
		Storage: StorageConfig{
			QueryImageDir: os.Getenv("QUERY_IMAGE_DIR"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Payload: payload,
	}
}

// Synonyms returns the accepted upstream field names for a canonical payload field.
func (c *PayloadConfig) Synonyms(field string) []string {
	return c.Fields[field]
}
