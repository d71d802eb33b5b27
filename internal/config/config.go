package config

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/spf13/viper"
)

type R2Config struct {
	AccountID       string `mapstructure:"R2_ACCOUNT_ID"`
	AccessKeyID     string `mapstructure:"R2_ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"R2_SECRET_ACCESS_KEY"`
	BucketName      string `mapstructure:"R2_BUCKET_NAME"`
	Region          string `mapstructure:"R2_REGION"`
	// Endpoint overrides the Cloudflare endpoint derived from AccountID (MinIO, AWS, ...).
	Endpoint string `mapstructure:"R2_ENDPOINT"`
}

type SMTPConfig struct {
	Host        string        `mapstructure:"SMTP_HOST"`
	Port        int           `mapstructure:"SMTP_PORT"`
	User        string        `mapstructure:"SMTP_USER"`
	Pass        string        `mapstructure:"SMTP_PASS"`
	From        string        `mapstructure:"MAIL_FROM"`
	Workers     int           `mapstructure:"MAIL_WORKERS"`
	QueueSize   int           `mapstructure:"MAIL_QUEUE_SIZE"`
	SendTimeout time.Duration `mapstructure:"MAIL_SEND_TIMEOUT"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type AdminConfig struct {
	Username string `mapstructure:"ADMIN_USERNAME"`
	Email    string `mapstructure:"ADMIN_EMAIL"`
	Password string `mapstructure:"ADMIN_PASSWORD"`
}

type Config struct {
	DB_URL      string        `mapstructure:"DB_URL"`
	Port        string        `mapstructure:"PORT"`
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	TokenTTL    time.Duration `mapstructure:"TOKEN_TTL"`
	Environment string        `mapstructure:"ENV"`
	LogLevel    string        `mapstructure:"LOG_LEVEL"`

	StorageDriver  string `mapstructure:"STORAGE_DRIVER"`
	StorageRoot    string `mapstructure:"STORAGE_ROOT"`
	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`
	MaxJSONBytes   int64  `mapstructure:"MAX_JSON_BYTES"`

	PasswordHasher          string        `mapstructure:"PASSWORD_HASHER"`
	ActivationMaxAttempts   int           `mapstructure:"ACTIVATION_MAX_ATTEMPTS"`
	ActivationAttemptWindow time.Duration `mapstructure:"ACTIVATION_ATTEMPT_WINDOW"`

	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	R2    R2Config    `mapstructure:",squash"`
	SMTP  SMTPConfig  `mapstructure:",squash"`
	Redis RedisConfig `mapstructure:",squash"`
	Admin AdminConfig `mapstructure:",squash"`
}

// devJWTSecret keeps local runs working without a .env; production refuses it.
const devJWTSecret = "not-so-secret-now-is-it?"

var defaults = map[string]any{
	"DB_URL":                    "",
	"PORT":                      "8080",
	"JWT_SECRET":                devJWTSecret,
	"TOKEN_TTL":                 time.Hour,
	"ENV":                       "development",
	"LOG_LEVEL":                 "info",
	"STORAGE_DRIVER":            "local",
	"STORAGE_ROOT":              "storage",
	"MAX_UPLOAD_BYTES":          int64(10 << 20),
	"MAX_JSON_BYTES":            int64(50 << 20),
	"PASSWORD_HASHER":           "bcrypt",
	"ACTIVATION_MAX_ATTEMPTS":   5,
	"ACTIVATION_ATTEMPT_WINDOW": 15 * time.Minute,
	"CORS_ORIGINS":              []string{"http://localhost:5173", "http://localhost:8080"},
	"R2_ACCOUNT_ID":             "",
	"R2_ACCESS_KEY_ID":          "",
	"R2_SECRET_ACCESS_KEY":      "",
	"R2_BUCKET_NAME":            "",
	"R2_REGION":                 "auto",
	"R2_ENDPOINT":               "",
	"SMTP_HOST":                 "",
	"SMTP_PORT":                 587,
	"SMTP_USER":                 "",
	"SMTP_PASS":                 "",
	"MAIL_FROM":                 "",
	"MAIL_WORKERS":              2,
	"MAIL_QUEUE_SIZE":           64,
	"MAIL_SEND_TIMEOUT":         30 * time.Second,
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"ADMIN_USERNAME":            "ADMIN",
	"ADMIN_EMAIL":               "admin@esigned.local",
	"ADMIN_PASSWORD":            "1qaz@WSX",
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No", envFile, "file found")
	}

	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case "local":
	case "r2":
		if c.R2.BucketName == "" {
			return fmt.Errorf("STORAGE_DRIVER=r2 requires R2_BUCKET_NAME")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.PasswordHasher {
	case "bcrypt", "argon2id":
	default:
		return fmt.Errorf("unknown PASSWORD_HASHER %q", c.PasswordHasher)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == devJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set to a non-default value when ENV=production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// String masks secrets so the config can be logged at startup.
func (c *Config) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "env=%s port=%s log_level=%s ", c.Environment, c.Port, c.LogLevel)
	fmt.Fprintf(&sb, "db_url=%s jwt_secret=%s ", mask(c.DB_URL), mask(c.JWTSecret))
	fmt.Fprintf(&sb, "storage=%s root=%s bucket=%s ", c.StorageDriver, c.StorageRoot, c.R2.BucketName)
	fmt.Fprintf(&sb, "smtp=%s:%d smtp_pass=%s ", c.SMTP.Host, c.SMTP.Port, mask(c.SMTP.Pass))
	fmt.Fprintf(&sb, "redis=%s hasher=%s", c.Redis.Addr, c.PasswordHasher)
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}

func (c *Config) CorsOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   c.CorsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}
}
