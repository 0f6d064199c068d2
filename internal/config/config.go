package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/enterstudio/subscription-manager/internal/config/validate"
	"github.com/enterstudio/subscription-manager/internal/utils/logger"
	"github.com/enterstudio/subscription-manager/internal/utils/security"
	"gopkg.in/yaml.v3"
	sigsyaml "sigs.k8s.io/yaml"
)

// GlobalConfig holds essential tool-level configuration parameters
type GlobalConfig struct {
	CertDir     string `yaml:"cert_dir" json:"cert_dir"`                             // Directory of installed product certificates (default: /etc/pki/product)
	ProductDb   string `yaml:"product_db" json:"product_db"`                         // Path of the product ID database file (default: /var/lib/rhsm/productid.js)
	ReposFile   string `yaml:"repos_file" json:"repos_file"`                         // Repository inventory consumed by the metadata transport
	CacheDir    string `yaml:"cache_dir" json:"cache_dir"`                           // Per-repository artifact download directory
	InstallRoot string `yaml:"install_root,omitempty" json:"install_root,omitempty"` // Alternative root for rpmdb queries (empty = live system)
	Workers     int    `yaml:"workers" json:"workers"`                               // Concurrent artifact download workers (1-100, default: 4)
	CacheOnly   bool   `yaml:"cache_only" json:"cache_only"`                         // Reuse downloaded artifacts instead of fetching

	Logging LoggingConfig `yaml:"logging" json:"logging"` // Logging behavior settings
}

// LoggingConfig controls basic logging behavior
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`                   // Log verbosity level: debug, info (default), warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // Optional log file path for teeing output to disk
}

var (
	globalInstance *GlobalConfig
	globalMutex    sync.RWMutex
	once           sync.Once
)

var log = logger.Logger()

// SetGlobal sets the global config instance (call once at startup in main.go)
func SetGlobal(config *GlobalConfig) {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalInstance = config
}

// Global returns the global config instance
func Global() *GlobalConfig {
	once.Do(func() {
		globalMutex.Lock()
		defer globalMutex.Unlock()
		if globalInstance == nil {
			globalInstance = DefaultGlobalConfig()
		}
	})

	globalMutex.RLock()
	defer globalMutex.RUnlock()
	return globalInstance
}

// DefaultGlobalConfig returns a GlobalConfig with sensible defaults
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		CertDir:   "/etc/pki/product",
		ProductDb: "/var/lib/rhsm/productid.js",
		ReposFile: "/etc/productid-reconciler/repos.yml",
		CacheDir:  "/var/cache/productid-reconciler",
		Workers:   4,

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FindConfigFile looks for a configuration file in the conventional
// locations and returns the first that exists, or the empty string.
func FindConfigFile() string {
	candidates := []string{
		"productid-reconciler.yml",
		"/etc/productid-reconciler/config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".productid-reconciler", "config.yml"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// LoadGlobalConfig loads configuration from the specified path
func LoadGlobalConfig(configPath string) (*GlobalConfig, error) {
	// Start with defaults
	config := DefaultGlobalConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		if errors.Is(err, os.ErrPermission) {
			log.Warnf("Config file %s is not accessible (%v); using defaults", configPath, err)
			return config, nil
		}
		log.Errorf("Error accessing config file %s: %v", configPath, err)
		return nil, fmt.Errorf("accessing config file %s: %w", configPath, err)
	}

	// Load and merge config file values with symlink protection
	data, err := security.SafeReadFile(configPath, security.RejectSymlinks)
	if err != nil {
		log.Errorf("Error reading config file %s: %v", configPath, err)
		return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
	}

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		// Convert the raw document to JSON and validate it against the
		// schema before unmarshaling, so unknown keys are caught.
		jsonData, err := sigsyaml.YAMLToJSON(data)
		if err != nil {
			log.Errorf("Error converting config to JSON for validation: %v", err)
			return nil, fmt.Errorf("converting config to JSON for validation: %w", err)
		}
		if err := validate.ValidateConfigJSON(jsonData); err != nil {
			log.Errorf("Schema validation failed: %v", err)
			return nil, fmt.Errorf("schema validation failed: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			log.Errorf("Error parsing YAML config: %v", err)
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}

	default:
		log.Errorf("Unsupported config file format: %s", ext)
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml)", ext)
	}

	if err := config.Validate(); err != nil {
		log.Errorf("Config validation failed: %v", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// SaveGlobalConfig saves the configuration to the specified path
func (gc *GlobalConfig) SaveGlobalConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			log.Errorf("Failed to create config directory: %v", err)
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(gc)
	if err != nil {
		log.Errorf("Error marshaling config to YAML: %v", err)
		return fmt.Errorf("marshaling config to YAML: %w", err)
	}

	if err := security.SafeWriteFile(configPath, data, 0644, security.RejectSymlinks); err != nil {
		log.Errorf("Failed to write config to %s: %v", configPath, err)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Infof("Saved configuration to %s", configPath)
	return nil
}

// Validate checks the configuration values for consistency
func (gc *GlobalConfig) Validate() error {
	if gc.Workers < 1 || gc.Workers > 100 {
		return fmt.Errorf("workers must be between 1 and 100, got %d", gc.Workers)
	}
	if strings.TrimSpace(gc.CertDir) == "" {
		return fmt.Errorf("cert_dir must not be empty")
	}
	if strings.TrimSpace(gc.ProductDb) == "" {
		return fmt.Errorf("product_db must not be empty")
	}
	if strings.TrimSpace(gc.CacheDir) == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	return nil
}

// Convenience accessors for the global singleton

func CertDir() string {
	return Global().CertDir
}

func ProductDbPath() string {
	return Global().ProductDb
}

func ReposFile() string {
	return Global().ReposFile
}

func CacheDir() string {
	return Global().CacheDir
}

func InstallRoot() string {
	return Global().InstallRoot
}

func Workers() int {
	return Global().Workers
}

func CacheOnly() bool {
	return Global().CacheOnly
}
