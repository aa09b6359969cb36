package config

import (
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

type Tools struct {
	FFmpeg      string `toml:"ffmpeg"`
	FFprobe     string `toml:"ffprobe"`
	Ghostscript string `toml:"ghostscript"`
	Upscaler    string `toml:"upscaler"`
	Soffice     string `toml:"soffice"`
	// Packaged selects the bundled tool layout. Unset means detect it from
	// the presence of <exe dir>/resources.
	Packaged *bool `toml:"packaged"`
}

type Slim struct {
	BitratePrecheck bool `toml:"bitrate_precheck"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Locale struct {
	Default string `toml:"default"`
}

type API struct {
	Port               int    `toml:"port"`
	MaxFileSize        int64  `toml:"max_file_size"`
	StoragePath        string `toml:"storage_path"`
	MasterKey          string `toml:"master_key"`
	RetentionHours     int    `toml:"retention_hours"`
	CleanupIntervalMin int    `toml:"cleanup_interval_minutes"`
}

type Queue struct {
	RedisAddr string `toml:"redis_addr"`
	PoolSize  int    `toml:"pool_size"`
}

type History struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type Worker struct {
	Concurrency int    `toml:"concurrency"`
	TmpDir      string `toml:"tmp_dir"`
	LockFile    string `toml:"lock_file"`
	MaxRetries  int    `toml:"max_retries"`
}

// Config holds every setting shared by the CLI, the API and the worker.
// Timeouts are in seconds, keyed by dispatcher operation name.
type Config struct {
	Tools    Tools          `toml:"tools"`
	Slim     Slim           `toml:"slim"`
	Log      Log            `toml:"log"`
	Locale   Locale         `toml:"locale"`
	API      API            `toml:"api"`
	Queue    Queue          `toml:"queue"`
	History  History        `toml:"history"`
	Worker   Worker         `toml:"worker"`
	Timeouts map[string]int `toml:"timeouts"`
}

// Load reads an optional .env, then the TOML file at path (or
// MEDIAFORGE_CONFIG, or ./mediaforge.toml), then MEDIAFORGE_* overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}

	applyEnv(&cfg)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path == "" {
		path = os.Getenv("MEDIAFORGE_CONFIG")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("stat config: %w", err)
		}
		return path, nil
	}

	info, err := os.Stat("mediaforge.toml")
	switch {
	case err == nil && !info.IsDir():
		return "mediaforge.toml", nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("stat config: %w", err)
	}
	return "", nil
}

func applyEnv(c *Config) {
	c.Tools.FFmpeg = envStr("MEDIAFORGE_FFMPEG", c.Tools.FFmpeg)
	c.Tools.FFprobe = envStr("MEDIAFORGE_FFPROBE", c.Tools.FFprobe)
	c.Tools.Ghostscript = envStr("MEDIAFORGE_GS", c.Tools.Ghostscript)
	c.Tools.Upscaler = envStr("MEDIAFORGE_UPSCALER", c.Tools.Upscaler)
	c.Tools.Soffice = envStr("MEDIAFORGE_SOFFICE", c.Tools.Soffice)
	if v := os.Getenv("MEDIAFORGE_PACKAGED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tools.Packaged = &b
		}
	}

	c.Slim.BitratePrecheck = envBool("MEDIAFORGE_SLIM_PRECHECK", c.Slim.BitratePrecheck)

	c.Log.Level = envStr("MEDIAFORGE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("MEDIAFORGE_LOG_FORMAT", c.Log.Format)
	c.Locale.Default = envStr("MEDIAFORGE_LOCALE", c.Locale.Default)

	c.API.Port = envInt("MEDIAFORGE_API_PORT", c.API.Port)
	c.API.MaxFileSize = envInt64("MEDIAFORGE_MAX_FILE_SIZE", c.API.MaxFileSize)
	c.API.StoragePath = envStr("MEDIAFORGE_STORAGE_PATH", c.API.StoragePath)
	c.API.MasterKey = envStr("ENCRYPTION_MASTER_KEY", c.API.MasterKey)
	c.API.MasterKey = envStr("MEDIAFORGE_MASTER_KEY", c.API.MasterKey)
	c.API.RetentionHours = envInt("MEDIAFORGE_FILE_RETENTION_HOURS", c.API.RetentionHours)
	c.API.CleanupIntervalMin = envInt("MEDIAFORGE_CLEANUP_INTERVAL_MINUTES", c.API.CleanupIntervalMin)

	c.Queue.RedisAddr = envStr("MEDIAFORGE_REDIS_ADDR", c.Queue.RedisAddr)
	c.Queue.PoolSize = envInt("MEDIAFORGE_REDIS_POOL_SIZE", c.Queue.PoolSize)

	c.History.Driver = envStr("MEDIAFORGE_HISTORY_DRIVER", c.History.Driver)
	c.History.DSN = envStr("MEDIAFORGE_HISTORY_DSN", c.History.DSN)

	c.Worker.Concurrency = envInt("MEDIAFORGE_WORKER_CONCURRENCY", c.Worker.Concurrency)
	c.Worker.TmpDir = envStr("MEDIAFORGE_TMP_DIR", c.Worker.TmpDir)
	c.Worker.LockFile = envStr("MEDIAFORGE_LOCK_FILE", c.Worker.LockFile)
	c.Worker.MaxRetries = envInt("MEDIAFORGE_MAX_RETRIES", c.Worker.MaxRetries)

	for op, secs := range c.Timeouts {
		key := "MEDIAFORGE_TIMEOUT_" + strings.ToUpper(strings.ReplaceAll(op, "-", "_"))
		c.Timeouts[op] = envInt(key, secs)
	}
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	c.API.StoragePath = expandHome(c.API.StoragePath)
	c.Worker.TmpDir = expandHome(c.Worker.TmpDir)
	c.Worker.LockFile = expandHome(c.Worker.LockFile)
	if c.History.Driver == "sqlite" {
		c.History.DSN = expandHome(c.History.DSN)
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("log.format must be auto, json or console, got %q", c.Log.Format)
	}
	switch c.History.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("history.driver must be sqlite or postgres, got %q", c.History.Driver)
	}
	if strings.TrimSpace(c.History.DSN) == "" {
		return errors.New("history.dsn must be set")
	}
	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}
	if c.API.MaxFileSize <= 0 {
		return errors.New("api.max_file_size must be positive")
	}
	for op, secs := range c.Timeouts {
		if secs <= 0 {
			return fmt.Errorf("timeouts.%s must be positive", op)
		}
	}
	return nil
}

// MasterKeyBytes decodes the hex master key. Only the API and the worker need
// it, so Load does not require it.
func (c *Config) MasterKeyBytes() ([]byte, error) {
	if c.API.MasterKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_MASTER_KEY is required (generate with: openssl rand -hex 32)")
	}
	key, err := hex.DecodeString(c.API.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_MASTER_KEY must be valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_MASTER_KEY must be 64 hex chars (32 bytes), got %d bytes", len(key))
	}
	return key, nil
}

func (c *Config) TimeoutFor(operation string) time.Duration {
	if secs, ok := c.Timeouts[operation]; ok {
		return secDuration(secs)
	}
	return 5 * time.Minute
}

func (c *Config) RetentionPeriod() time.Duration {
	return time.Duration(c.API.RetentionHours) * time.Hour
}

// CreateSample writes a commented sample configuration file.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func secDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
