package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration loaded from an optional YAML file and
// environment variables.
type Config struct {
	Port string `yaml:"port"`

	Converter struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"converter"`

	Camera struct {
		SnapshotURL  string `yaml:"snapshot_url"`
		MaxDimension int    `yaml:"max_dimension"`
	} `yaml:"camera"`

	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`
	MaxImageBytes      int64         `yaml:"max_image_bytes"`
	WebDir             string        `yaml:"web_dir"`
}

const (
	defaultPort          = "8080"
	defaultConverterURL  = "http://35.153.182.117:3000"
	defaultTimeout       = 120 * time.Second
	defaultIdleTimeout   = 30 * time.Minute
	defaultMaxImageBytes = 20 << 20
	defaultWebDir        = "./internal/web"
)

// Load reads configuration from the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			log.Fatalf("load config %s: %v", path, err)
		}
	}
	applyEnv(&cfg)
	return cfg
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	var cfg Config
	cfg.Port = defaultPort
	cfg.Converter.BaseURL = defaultConverterURL
	cfg.Converter.Timeout = defaultTimeout
	cfg.SessionIdleTimeout = defaultIdleTimeout
	cfg.MaxImageBytes = defaultMaxImageBytes
	cfg.WebDir = defaultWebDir
	return cfg
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Converter.BaseURL = getEnv("CONVERTER_BASE_URL", cfg.Converter.BaseURL)
	cfg.Converter.Timeout = getDuration("CONVERTER_TIMEOUT", cfg.Converter.Timeout)
	cfg.Camera.SnapshotURL = getEnv("CAMERA_SNAPSHOT_URL", cfg.Camera.SnapshotURL)
	cfg.Camera.MaxDimension = getInt("CAMERA_MAX_DIMENSION", cfg.Camera.MaxDimension)
	cfg.SessionIdleTimeout = getDuration("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)
	cfg.MaxImageBytes = int64(getInt("MAX_IMAGE_BYTES", int(cfg.MaxImageBytes)))
	cfg.WebDir = getEnv("WEB_DIR", cfg.WebDir)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, raw, err)
		return fallback
	}
	return v
}

// getDuration accepts Go durations ("90s") or a plain number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: ignoring %s=%q: not a duration", key, raw)
	return fallback
}
