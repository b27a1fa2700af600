package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location, overridable with MARKETGEN_CONFIG.
const ConfigPath = "config.yaml"

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	StoreDriver string `yaml:"storeDriver"`
	DatabaseURL string `yaml:"databaseURL"`

	MinioEndpoint       string `yaml:"minioEndpoint"`
	MinioAccessKey      string `yaml:"minioAccessKey"`
	MinioSecretKey      string `yaml:"minioSecretKey"`
	MinioBucket         string `yaml:"minioBucket"`
	MinioUseSSL         bool   `yaml:"minioUseSSL"`
	ObjectPublicBaseURL string `yaml:"objectPublicBaseURL"`

	TextProvider   string `yaml:"textProvider"`
	OpenAIBaseURL  string `yaml:"openaiBaseURL"`
	OpenAIAPIKey   string `yaml:"openaiAPIKey"`
	OpenAIModel    string `yaml:"openaiModel"`
	GeminiAPIKey   string `yaml:"geminiAPIKey"`
	GeminiModel    string `yaml:"geminiModel"`
	OllamaBaseURL  string `yaml:"ollamaBaseURL"`
	OllamaModel    string `yaml:"ollamaModel"`
	CogViewAPIKey  string `yaml:"cogviewAPIKey"`
	CogViewModel   string `yaml:"cogviewModel"`
	ForgeAPIURL    string `yaml:"forgeAPIURL"`
	ForgeAPIKey    string `yaml:"forgeAPIKey"`
	HTTPTimeoutSec int    `yaml:"httpTimeoutSeconds"`

	OwnerOpenID       string            `yaml:"ownerOpenID"`
	JWTPrivateKeyPath string            `yaml:"jwtPrivateKeyPath"`
	JWTPublicKeyPath  string            `yaml:"jwtPublicKeyPath"`
	JWTKeyID          string            `yaml:"jwtKeyId"`
	JWTVerifyKeys     map[string]string `yaml:"jwtVerifyKeys"`
	JWTIssuer         string            `yaml:"jwtIssuer"`
	JWTAudience       string            `yaml:"jwtAudience"`
	SessionTTL        string            `yaml:"sessionTTL"`
	SessionCookieName string            `yaml:"sessionCookieName"`

	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	GenerateRateLimitPerMinute int      `yaml:"generateRateLimitPerMinute"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	MaxUploadBytes             int64    `yaml:"maxUploadBytes"`
	CORSAllowedOrigins         []string `yaml:"corsAllowedOrigins"`
}

// Path returns the config path from MARKETGEN_CONFIG or the default.
func Path() string {
	if v := strings.TrimSpace(os.Getenv("MARKETGEN_CONFIG")); v != "" {
		return v
	}
	return ConfigPath
}

// Load reads config from path (defaults to config.yaml). A .env file in the
// working directory is loaded first so its values act as environment overrides.
func Load(path string) (FileConfig, error) {
	_ = godotenv.Load()

	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.CogViewAPIKey, "ZHIPU_API_KEY")
	setString(&cfg.ForgeAPIURL, "FORGE_API_URL")
	setString(&cfg.ForgeAPIKey, "FORGE_API_KEY")
	setString(&cfg.OwnerOpenID, "OWNER_OPEN_ID")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.TextProvider == "" {
		cfg.TextProvider = "openai"
	}
	if cfg.SessionCookieName == "" {
		cfg.SessionCookieName = "app_session_id"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 * 1024 * 1024
	}
	if cfg.HTTPTimeoutSec <= 0 {
		cfg.HTTPTimeoutSec = 180
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("config: unknown storeDriver %q", cfg.StoreDriver)
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: minioAccessKey and minioSecretKey are required")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml)")
	}
	switch strings.ToLower(cfg.TextProvider) {
	case "openai":
		if cfg.OpenAIBaseURL == "" || cfg.OpenAIModel == "" {
			return errors.New("config: openaiBaseURL and openaiModel are required for textProvider openai")
		}
	case "gemini":
		if cfg.GeminiAPIKey == "" || cfg.GeminiModel == "" {
			return errors.New("config: geminiAPIKey and geminiModel are required for textProvider gemini")
		}
	case "ollama":
		if cfg.OllamaModel == "" {
			return errors.New("config: ollamaModel is required for textProvider ollama")
		}
	default:
		return fmt.Errorf("config: unknown textProvider %q", cfg.TextProvider)
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set in config.yaml)")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	return nil
}

// ParseSessionTTL parses the session lifetime, defaulting to 365 days.
func ParseSessionTTL(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 365 * 24 * time.Hour, nil
	}
	ttl, err := time.ParseDuration(raw)
	if err != nil || ttl <= 0 {
		return 0, fmt.Errorf("config: invalid sessionTTL %q", raw)
	}
	return ttl, nil
}

// HTTPTimeout returns the outbound provider timeout.
func (c FileConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
