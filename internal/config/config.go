package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Ai       AIConfig
	Coach    CoachConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	EmbedTopic         string
}

type DatabaseConfig struct {
	Connection string
}

type AIConfig struct {
	LLMProvider       string // "zhipu" or "ollama"
	LLMModel          string // e.g. "glm-4-flash", "qwen2.5"
	ZhipuAPIKey       string
	ZhipuBaseURL      string
	EmbeddingProvider string // "zhipu" or "ollama"
	OllamaBaseURL     string
	OllamaEmbedModel  string
}

// CoachConfig tunes the conversation core: citation budget, lock timing
// and retrieval depth.
type CoachConfig struct {
	MaxCitations    int
	LockTTLMillis   int
	LockWaitMillis  int
	TopKDefault     int
	InterviewTopK   int
	ChunkSize       int
	ChunkOverlap    int
	SampleSeed      int64
	StreamBufferLen int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			EmbedTopic:         getEnv("EMBED_EVIDENCE_TOPIC_NAME", "EMBED_EVIDENCE"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "zhipu"),
			LLMModel:          getEnv("LLM_MODEL", "glm-4-flash"),
			ZhipuAPIKey:       getEnv("ZHIPU_API_KEY", ""),
			ZhipuBaseURL:      getEnv("ZHIPU_BASE_URL", "https://open.bigmodel.cn/api/paas/v4"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "zhipu"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaEmbedModel:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Coach: CoachConfig{
			MaxCitations:    getEnvAsInt("COACH_MAX_CITATIONS", 3),
			LockTTLMillis:   getEnvAsInt("COACH_LOCK_TTL_MS", 15000),
			LockWaitMillis:  getEnvAsInt("COACH_LOCK_WAIT_MS", 3000),
			TopKDefault:     getEnvAsInt("COACH_TOP_K", 5),
			InterviewTopK:   getEnvAsInt("COACH_INTERVIEW_TOP_K", 12),
			ChunkSize:       getEnvAsInt("COACH_CHUNK_SIZE", 800),
			ChunkOverlap:    getEnvAsInt("COACH_CHUNK_OVERLAP", 80),
			SampleSeed:      int64(getEnvAsInt("COACH_SAMPLE_SEED", 0)),
			StreamBufferLen: getEnvAsInt("COACH_STREAM_BUFFER", 64),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}
