package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is read from the working directory when --config is not given.
const DefaultFile = "facesweep.yaml"

type Config struct {
	Known  string `yaml:"known"`
	Images string `yaml:"images"`
	Output string `yaml:"output"`

	Tolerance  float64  `yaml:"tolerance"`
	Cores      int      `yaml:"cores"`
	Extensions []string `yaml:"extensions"`

	Engine       string `yaml:"engine"` // dlib or python
	Models       string `yaml:"models"` // dlib model directory
	CNN          bool   `yaml:"cnn"`
	PythonWorker string `yaml:"python_worker"`

	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // PostgreSQL connection URL, empty disables the run ledger
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Output:       "output",
		Tolerance:    0.6,
		Engine:       "dlib",
		Models:       "models",
		PythonWorker: "python/worker.py",
	}
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat is envInt for positive floats.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
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

// Load layers the built-in defaults, the YAML file at path and the
// environment, in that order. An empty path reads DefaultFile if it exists.
// Command-line flags are applied on top by the caller.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.Known = envString("FACESWEEP_KNOWN", cfg.Known)
	cfg.Images = envString("FACESWEEP_IMAGES", cfg.Images)
	cfg.Output = envString("FACESWEEP_OUTPUT", cfg.Output)
	cfg.Models = envString("FACESWEEP_MODELS", cfg.Models)
	cfg.Engine = envString("FACESWEEP_ENGINE", cfg.Engine)
	cfg.Tolerance = envFloat("FACESWEEP_TOLERANCE", cfg.Tolerance)
	cfg.Cores = envInt("FACESWEEP_CORES", cfg.Cores)
	cfg.Database.URL = envString("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.URL == "" {
		cfg.Database.URL = postgresFromEnv()
	}

	return cfg, cfg.Validate()
}

// postgresFromEnv builds a connection string from the POSTGRES_* variables
// used by the docker-compose setup.
func postgresFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return ""
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate rejects settings that cannot produce a run.
func (c *Config) Validate() error {
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", c.Tolerance)
	}
	if c.Cores < 0 {
		return fmt.Errorf("cores must not be negative, got %d", c.Cores)
	}
	switch c.Engine {
	case "dlib", "python":
	default:
		return fmt.Errorf("unknown engine %q (want dlib or python)", c.Engine)
	}
	for i, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Extensions[i] = ext
	}
	return nil
}
