package config

import (
	"os"
	"runtime"
	"strconv"

	"goexact/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Engine    EngineConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Output    OutputConfig
	Profiling ProfilingConfig
	LogLevel  string
}

// EngineConfig holds exact-test defaults
type EngineConfig struct {
	GridPoints int     // points in the default nuisance grid
	GridWindow float64 // relative half-width around x/n
	Workers    int     // concurrent grid evaluations
	Tolerance  float64 // comparison harness pass/fail threshold
	ScanFloor  float64 // Fisher p-value at which cell scans stop
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port string
}

// DatabaseConfig holds database connection settings. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL string
}

// OutputConfig holds file outputs
type OutputConfig struct {
	ResultsFile string // CSV appended to by grid maximisations
	ExportDir   string // spreadsheet exports of cell scans
}

// ProfilingConfig holds pprof server settings
type ProfilingConfig struct {
	Enabled bool
	Port    string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Engine:   loadEngineConfig(),
		Server:   ServerConfig{Port: getEnvOrDefault("PORT", "8080")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Output: OutputConfig{
			ResultsFile: os.Getenv("RESULTS_FILE"),
			ExportDir:   os.Getenv("EXPORT_DIR"),
		},
		Profiling: ProfilingConfig{
			Enabled: os.Getenv("PPROF_ENABLED") == "true",
			Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		GridPoints: getEnvIntOrDefault("EXACT_GRID_POINTS", 100),
		GridWindow: getEnvFloatOrDefault("EXACT_GRID_WINDOW", 0.1),
		Workers:    getEnvIntOrDefault("EXACT_WORKERS", runtime.NumCPU()),
		Tolerance:  getEnvFloatOrDefault("EXACT_TOLERANCE", 1e-9),
		ScanFloor:  getEnvFloatOrDefault("EXACT_SCAN_FLOOR", 1e-10),
	}
}

func validateConfig(config *Config) error {
	e := config.Engine
	if e.GridPoints < 1 {
		return errors.ConfigInvalid("EXACT_GRID_POINTS must be at least 1")
	}
	if e.GridWindow < 0 || e.GridWindow >= 1 {
		return errors.ConfigInvalid("EXACT_GRID_WINDOW must lie in [0, 1)")
	}
	if e.Workers < 1 {
		return errors.ConfigInvalid("EXACT_WORKERS must be at least 1")
	}
	if e.Tolerance < 0 {
		return errors.ConfigInvalid("EXACT_TOLERANCE must be non-negative")
	}
	if e.ScanFloor <= 0 || e.ScanFloor >= 1 {
		return errors.ConfigInvalid("EXACT_SCAN_FLOOR must lie in (0, 1)")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("PORT is required")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
