package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/parisxmas/TenderDesk/internal/intake"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr        string   `yaml:"http_addr"`
	UploadRoot      string   `yaml:"upload_root"`
	UploadCategory  string   `yaml:"upload_category"`
	MaxFileBytes    int64    `yaml:"max_file_bytes"`
	MaxFiles        int      `yaml:"max_files"`
	MaxFieldBytes   int64    `yaml:"max_field_bytes"`
	MaxRequestBytes int64    `yaml:"max_request_bytes"`
	AllowedTypes    []string `yaml:"allowed_types"`
	DefaultCurrency string   `yaml:"default_currency"`
	StrictCoercion  bool     `yaml:"strict_coercion"`
	HashWorkers     int      `yaml:"hash_workers"`
	DBDriver        string   `yaml:"db_driver"`
	DBDSN           string   `yaml:"db_dsn"`
	JWTSecret       string   `yaml:"jwt_secret"`
	WriteRoles      []string `yaml:"write_roles"`
	LogLevel        string   `yaml:"log_level"`
	LogFormat       string   `yaml:"log_format"`
	GelfAddr        string   `yaml:"gelf_addr"`
	MetricsEnabled  bool     `yaml:"metrics_enabled"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		UploadRoot:      "uploads",
		UploadCategory:  intake.DefaultCategory,
		MaxFileBytes:    intake.DefaultMaxFileBytes,
		MaxFiles:        intake.DefaultMaxFiles,
		MaxFieldBytes:   intake.DefaultMaxFieldBytes,
		DefaultCurrency: intake.DefaultCurrency,
		HashWorkers:     intake.DefaultHashWorkers,
		DBDriver:        "sqlite",
		DBDSN:           "tenders.db",
		JWTSecret:       "tenderdesk-dev-secret-change-me",
		LogLevel:        "info",
		LogFormat:       "text",
		MetricsEnabled:  true,
	}
}

// Load layers defaults, the optional YAML file at path and TENDER_*
// environment variables, in that order. A .env file in the working
// directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = getEnv("TENDER_ADDR", c.HTTPAddr)
	c.UploadRoot = getEnv("TENDER_UPLOAD_ROOT", c.UploadRoot)
	c.UploadCategory = getEnv("TENDER_UPLOAD_CATEGORY", c.UploadCategory)
	c.MaxFileBytes = getEnvInt64("TENDER_MAX_FILE_BYTES", c.MaxFileBytes)
	c.MaxFiles = getEnvInt("TENDER_MAX_FILES", c.MaxFiles)
	c.MaxFieldBytes = getEnvInt64("TENDER_MAX_FIELD_BYTES", c.MaxFieldBytes)
	c.MaxRequestBytes = getEnvInt64("TENDER_MAX_REQUEST_BYTES", c.MaxRequestBytes)
	if v := getEnv("TENDER_ALLOWED_TYPES", ""); v != "" {
		c.AllowedTypes = splitList(v)
	}
	c.DefaultCurrency = getEnv("TENDER_DEFAULT_CURRENCY", c.DefaultCurrency)
	c.StrictCoercion = getEnvBool("TENDER_STRICT_COERCION", c.StrictCoercion)
	c.HashWorkers = getEnvInt("TENDER_HASH_WORKERS", c.HashWorkers)
	c.DBDriver = getEnv("TENDER_DB_DRIVER", c.DBDriver)
	c.DBDSN = getEnv("TENDER_DB_DSN", c.DBDSN)
	c.JWTSecret = getEnv("TENDER_JWT_SECRET", c.JWTSecret)
	if v := getEnv("TENDER_WRITE_ROLES", ""); v != "" {
		c.WriteRoles = splitList(v)
	}
	c.LogLevel = getEnv("TENDER_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("TENDER_LOG_FORMAT", c.LogFormat)
	c.GelfAddr = getEnv("TENDER_GELF_ADDR", c.GelfAddr)
	c.MetricsEnabled = getEnvBool("TENDER_METRICS", c.MetricsEnabled)
}

func (c *Config) Validate() error {
	var errs []error
	if c.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("max_file_bytes must be positive"))
	}
	if c.MaxFiles <= 0 {
		errs = append(errs, errors.New("max_files must be positive"))
	}
	if c.MaxFieldBytes <= 0 {
		errs = append(errs, errors.New("max_field_bytes must be positive"))
	}
	if c.MaxRequestBytes < 0 {
		errs = append(errs, errors.New("max_request_bytes must not be negative"))
	}
	if c.HashWorkers <= 0 {
		errs = append(errs, errors.New("hash_workers must be positive"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown db_driver %q", c.DBDriver))
	}
	if strings.TrimSpace(c.UploadRoot) == "" {
		errs = append(errs, errors.New("upload_root is required"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// IntakeOptions converts the config into pipeline options.
func (c *Config) IntakeOptions() intake.Options {
	return intake.Options{
		UploadRoot:      c.UploadRoot,
		Category:        c.UploadCategory,
		MaxFileBytes:    c.MaxFileBytes,
		MaxFiles:        c.MaxFiles,
		MaxFieldBytes:   c.MaxFieldBytes,
		MaxRequestBytes: c.MaxRequestBytes,
		AllowedTypes:    c.AllowedTypes,
		DefaultCurrency: c.DefaultCurrency,
		StrictCoercion:  c.StrictCoercion,
		HashWorkers:     c.HashWorkers,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
