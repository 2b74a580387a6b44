// Package config resolves runtime settings: defaults, then an optional TOML
// file, then .env and the process environment. Command-line flags are
// applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"devassist/internal/trace"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "devassist.toml"

type Config struct {
	WorkspaceRoot    string       `toml:"workspace"`
	Provider         string       `toml:"provider"`
	Model            string       `toml:"model"`
	APIKey           string       `toml:"api_key"`
	BaseURL          string       `toml:"base_url"`
	MaxSteps         int          `toml:"max_steps"`
	MaxFileSize      int64        `toml:"max_file_size"`
	MaxFilesScanned  int          `toml:"max_files_scanned"`
	MaxLinesRead     int          `toml:"max_lines_read"`
	ParallelTools    bool         `toml:"parallel_tools"`
	RespectGitignore bool         `toml:"respect_gitignore"`
	RetryAttempts    int          `toml:"retry_attempts"`
	RPS              float64      `toml:"rps"`
	Listen           string       `toml:"listen"`
	CORSOrigins      []string     `toml:"cors_origins"`
	Trace            trace.Config `toml:"trace"`
}

func Default() Config {
	return Config{
		WorkspaceRoot:   ".",
		Provider:        "openai",
		MaxSteps:        20,
		MaxFileSize:     300_000,
		MaxFilesScanned: 300,
		MaxLinesRead:    100,
		RetryAttempts:   3,
		Listen:          ":8080",
	}
}

// Load builds the configuration. path may be empty, in which case
// DefaultFile is used if present. The workspace root and the provider key
// fallback are left to Finalize, which runs after flags.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	cfg.WorkspaceRoot = firstNonEmpty(env("DEVASSIST_WORKSPACE"), env("MCP_WORKSPACE"), cfg.WorkspaceRoot)
	cfg.Provider = firstNonEmpty(env("DEVASSIST_PROVIDER"), cfg.Provider)
	cfg.Model = firstNonEmpty(env("DEVASSIST_MODEL"), cfg.Model)
	cfg.APIKey = firstNonEmpty(env("DEVASSIST_API_KEY"), cfg.APIKey)
	cfg.BaseURL = firstNonEmpty(env("DEVASSIST_BASE_URL"), cfg.BaseURL)
	cfg.Listen = firstNonEmpty(env("DEVASSIST_LISTEN"), cfg.Listen)
	if raw := env("DEVASSIST_CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	var errs []error
	setInt(&cfg.MaxSteps, "DEVASSIST_MAX_STEPS", &errs)
	setInt64(&cfg.MaxFileSize, "DEVASSIST_MAX_FILE_SIZE", &errs)
	setInt(&cfg.MaxFilesScanned, "DEVASSIST_MAX_FILES", &errs)
	setInt(&cfg.MaxLinesRead, "DEVASSIST_MAX_LINES", &errs)
	setInt(&cfg.RetryAttempts, "DEVASSIST_RETRY", &errs)
	setBool(&cfg.ParallelTools, "DEVASSIST_PARALLEL_TOOLS", &errs)
	setBool(&cfg.RespectGitignore, "DEVASSIST_GITIGNORE", &errs)
	if raw := env("DEVASSIST_RPS"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEVASSIST_RPS: %w", err))
		} else {
			cfg.RPS = v
		}
	}

	t := &cfg.Trace
	t.Dir = firstNonEmpty(env("DEVASSIST_TRACE_DIR"), t.Dir)
	t.PostgresDSN = firstNonEmpty(env("DEVASSIST_TRACE_PG_DSN"), t.PostgresDSN)
	t.S3.Endpoint = firstNonEmpty(env("DEVASSIST_TRACE_S3_ENDPOINT"), t.S3.Endpoint)
	t.S3.Region = firstNonEmpty(env("DEVASSIST_TRACE_S3_REGION"), t.S3.Region)
	t.S3.AccessKey = firstNonEmpty(env("DEVASSIST_TRACE_S3_ACCESS_KEY"), t.S3.AccessKey)
	t.S3.SecretKey = firstNonEmpty(env("DEVASSIST_TRACE_S3_SECRET_KEY"), t.S3.SecretKey)
	t.S3.Bucket = firstNonEmpty(env("DEVASSIST_TRACE_S3_BUCKET"), t.S3.Bucket)
	setBool(&t.S3.UseSSL, "DEVASSIST_TRACE_S3_USE_SSL", &errs)
	return errors.Join(errs...)
}

func providerKey(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "groq":
		return env("GROQ_API_KEY")
	case "gemini":
		return firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"))
	case "openai", "":
		return env("OPENAI_API_KEY")
	}
	return ""
}

// Finalize resolves the workspace root to an absolute directory, falls back
// to the provider's own key variable when no key was set, and checks the
// numeric bounds. It runs after flags so the key matches the final provider.
func (c *Config) Finalize() error {
	if c.APIKey == "" {
		c.APIKey = providerKey(c.Provider)
	}
	root := firstNonEmpty(c.WorkspaceRoot, ".")
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("workspace %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("workspace %s is not a directory", root)
	}
	c.WorkspaceRoot = abs
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	if c.MaxFileSize <= 0 || c.MaxFilesScanned <= 0 || c.MaxLinesRead <= 0 {
		return fmt.Errorf("file limits must be positive")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setInt(dst *int, key string, errs *[]error) {
	raw := env(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func setInt64(dst *int64, key string, errs *[]error) {
	raw := env(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func setBool(dst *bool, key string, errs *[]error) {
	raw := env(key)
	if raw == "" {
		return
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
