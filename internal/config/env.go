package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds process settings that come from the environment rather than the
// render config file.
type Env struct {
	Port          string
	ConfigPath    string
	LogLevel      string
	LogFormat     string
	OpenAIKey     string
	OpenAIBaseURL string
	SpeechModel   string
	AlignerAddr   string
	ImageDir      string
	SupabaseURL   string
	SupabaseKey   string
	StatusTable   string
	StorageBucket string
	Workers       string
}

// LoadEnv reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func LoadEnv(files ...string) Env {
	// Missing .env files are normal outside local development.
	_ = godotenv.Load(files...)

	return Env{
		Port:          getenv("PORT", "8080"),
		ConfigPath:    os.Getenv("ASSEMBLER_CONFIG"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		SpeechModel:   getenv("SPEECH_MODEL", "gpt-4o-mini-tts"),
		AlignerAddr:   os.Getenv("ALIGNER_GRPC_ADDR"),
		ImageDir:      getenv("IMAGE_DIR", "./assets/images"),
		SupabaseURL:   os.Getenv("SUPABASE_URL"),
		SupabaseKey:   os.Getenv("SUPABASE_SERVICE_KEY"),
		StatusTable:   getenv("STATUS_TABLE", "render_job_statuses"),
		StorageBucket: os.Getenv("STORAGE_BUCKET"),
		Workers:       getenv("WORKERS", "2"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
