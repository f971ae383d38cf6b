package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents daemon configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	SettingsPath   string
	StoragePath    string
	DocumentPath   string
	DocumentWidth  int
	DocumentHeight int
	GeminiAPIKey   string
	BatchDelay     time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. GEMINI_API_KEY, when set, overrides the api_key held
// in the settings file; DOCUMENT_PATH optionally seeds the in-memory canvas
// from a PNG instead of starting blank.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		SettingsPath:     getEnv("SETTINGS_PATH", "data/settings.json"),
		StoragePath:      getEnv("STORAGE_PATH", "data/images"),
		DocumentPath:     os.Getenv("DOCUMENT_PATH"),
		DocumentWidth:    getEnvInt("DOCUMENT_WIDTH", 1024),
		DocumentHeight:   getEnvInt("DOCUMENT_HEIGHT", 1024),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		BatchDelay:       time.Millisecond * time.Duration(getEnvInt("BATCH_DELAY_MS", 1500)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		AllowedOrigins:   splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
