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
)

const (
	DefaultMongoURI      = "mongodb://localhost:27017/"
	DefaultDatabase      = "wekan"
	DefaultLogLevel      = "info"
	DefaultBucket        = "attachments"
	DefaultOutputDir     = "attachments"
	DefaultLedgerSuffix  = "-ledger.db"
	DefaultProgressEvery = 100

	configFileName = ".wekan-attachments.toml"
	dotEnvFileName = ".env"

	configDirEnvKey          = "WEKAN_ATTACHMENTS_CONFIG_DIR"
	trustProjectConfigEnvKey = "WEKAN_ATTACHMENTS_TRUST_PROJECT_CONFIG"

	mongoURIEnvKey      = "WEKAN_MONGO_URI"
	wekanMongoURLEnvKey = "MONGO_URL"
	databaseEnvKey      = "WEKAN_DB"
	outputDirEnvKey     = "WEKAN_EXPORT_DIR"
)

// ExportConfig defines settings for the GridFS exporter.
type ExportConfig struct {
	OutputDir  string `toml:"output_dir"`
	Ledger     bool   `toml:"ledger"`
	LedgerPath string `toml:"ledger_path"`
}

// MigrateConfig defines settings for the CollectionFS migration.
type MigrateConfig struct {
	ProgressEvery int `toml:"progress_every"`
}

// Config defines runtime configuration for wekan-attachments.
type Config struct {
	MongoURI                 string        `toml:"mongo_uri"`
	Database                 string        `toml:"database"`
	// Bucket is the GridFS bucket the exporter reads and the migrator writes.
	Bucket                   string        `toml:"bucket"`
	LogLevel                 string        `toml:"log_level"`
	Export                   ExportConfig  `toml:"export"`
	Migrate                  MigrateConfig `toml:"migrate"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// ErrUntrustedProjectConfig is returned when a write targets a project config
// file that Load would ignore.
var ErrUntrustedProjectConfig = errors.New("project config is ignored unless " + trustProjectConfigEnvKey + "=true")

// LedgerFile returns the configured ledger path, or a hidden file beside
// outputDir. The export directory itself only ever holds exported files.
func (e ExportConfig) LedgerFile(outputDir string) string {
	if strings.TrimSpace(e.LedgerPath) != "" {
		return e.LedgerPath
	}
	dir, err := filepath.Abs(outputDir)
	if err != nil {
		dir = filepath.Clean(outputDir)
	}
	parent, base := filepath.Split(dir)
	if base == "" {
		return filepath.Join(dir, "."+DefaultOutputDir+DefaultLedgerSuffix)
	}
	return filepath.Join(parent, "."+base+DefaultLedgerSuffix)
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		MongoURI: DefaultMongoURI,
		Database: DefaultDatabase,
		LogLevel: DefaultLogLevel,
		Bucket:   DefaultBucket,
		Export: ExportConfig{
			OutputDir:  "",
			Ledger:     true,
			LedgerPath: "",
		},
		Migrate: MigrateConfig{
			ProgressEvery: DefaultProgressEvery,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

// loadDotEnv reads a .env file from dir into the process environment.
// Variables that are already set win over the file.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, dotEnvFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"mongo_uri",
	"database",
	"log_level",
	"bucket",
	"export.output_dir",
	"export.ledger",
	"export.ledger_path",
	"migrate.progress_every",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "mongo_uri":
		return c.MongoURI, nil
	case "database":
		return c.Database, nil
	case "log_level":
		return c.LogLevel, nil
	case "bucket":
		return c.Bucket, nil
	case "export.output_dir":
		return c.Export.OutputDir, nil
	case "export.ledger":
		return strconv.FormatBool(c.Export.Ledger), nil
	case "export.ledger_path":
		return c.Export.LedgerPath, nil
	case "migrate.progress_every":
		return strconv.Itoa(c.Migrate.ProgressEvery), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetPath returns the file that config writes should go to. The project file
// is only returned when Load reads it.
func SetPath(project bool) (string, error) {
	if !project {
		return GlobalPath()
	}
	if _, ok := overrideConfigPath(); !ok && !trustProjectConfig() {
		return "", ErrUntrustedProjectConfig
	}
	return ProjectPath()
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files, the working directory .env file and
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	cwd, cwdErr := os.Getwd()
	if cwdErr == nil {
		if err := loadDotEnv(cwd); err != nil {
			return nil, err
		}
	}

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() && cwdErr == nil {
			projectPath := filepath.Join(cwd, configFileName)
			info, statErr := os.Stat(projectPath)
			switch {
			case statErr == nil && !info.IsDir():
				if err := loadFile(projectPath, &cfg); err != nil {
					return nil, err
				}
				cfg.TrustedProjectConfigPath = projectPath
			case statErr != nil && !os.IsNotExist(statErr):
				return nil, statErr
			}
		}
	}

	if uri := os.Getenv(wekanMongoURLEnvKey); uri != "" {
		cfg.MongoURI = uri
	}
	if uri := os.Getenv(mongoURIEnvKey); uri != "" {
		cfg.MongoURI = uri
	}
	if db := os.Getenv(databaseEnvKey); db != "" {
		cfg.Database = db
	}
	if dir := os.Getenv(outputDirEnvKey); dir != "" {
		cfg.Export.OutputDir = dir
	}

	cfg.normalize(cwd)

	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "migrate.progress_every":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "export.ledger":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "mongo_uri":
		if !strings.HasPrefix(value, "mongodb://") && !strings.HasPrefix(value, "mongodb+srv://") {
			return nil, fmt.Errorf("%s must start with mongodb:// or mongodb+srv://", key)
		}
		return value, nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalize(cwd string) {
	c.MongoURI = strings.TrimSpace(c.MongoURI)
	if c.MongoURI == "" {
		c.MongoURI = DefaultMongoURI
	}
	c.Database = strings.TrimSpace(c.Database)
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if strings.TrimSpace(c.Bucket) == "" {
		c.Bucket = DefaultBucket
	}
	if c.Export.OutputDir == "" && cwd != "" {
		c.Export.OutputDir = filepath.Join(cwd, DefaultOutputDir)
	}
	if c.Migrate.ProgressEvery <= 0 {
		c.Migrate.ProgressEvery = DefaultProgressEvery
	}
}
