package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		configDirEnvKey,
		trustProjectConfigEnvKey,
		mongoURIEnvKey,
		wekanMongoURLEnvKey,
		databaseEnvKey,
		outputDirEnvKey,
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MongoURI != "mongodb://localhost:27017/" {
		t.Fatalf("expected default mongo uri, got %q", cfg.MongoURI)
	}
	if cfg.Database != "wekan" {
		t.Fatalf("expected database 'wekan', got %q", cfg.Database)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
	if cfg.Bucket != "attachments" {
		t.Fatalf("expected bucket 'attachments', got %q", cfg.Bucket)
	}
	if !cfg.Export.Ledger {
		t.Fatal("expected export ledger enabled by default")
	}
	if cfg.Migrate.ProgressEvery != 100 {
		t.Fatalf("expected progress every 100, got %d", cfg.Migrate.ProgressEvery)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte(`mongo_uri = "mongodb://db:27019/"
database = "boards"
log_level = "warn"

[export]
output_dir = "/srv/export"
ledger = false

[migrate]
progress_every = 25
`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MongoURI != "mongodb://db:27019/" || cfg.Database != "boards" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected top-level values: %+v", cfg)
	}
	if cfg.Export.OutputDir != "/srv/export" || cfg.Export.Ledger {
		t.Fatalf("unexpected export values: %+v", cfg.Export)
	}
	if cfg.Bucket != DefaultBucket {
		t.Fatalf("expected bucket default preserved, got %q", cfg.Bucket)
	}
	if cfg.Migrate.ProgressEvery != 25 {
		t.Fatalf("expected progress_every 25, got %d", cfg.Migrate.ProgressEvery)
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := Default()
	if err := loadFile("/nonexistent/path/.wekan-attachments.toml", &cfg); err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Database != DefaultDatabase {
		t.Fatalf("defaults should be preserved")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFileName)
	if err := os.WriteFile(path, []byte("mongo_uri = \n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg := Default()
	if err := loadFile(path, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsAllowedKey(t *testing.T) {
	for _, key := range AllowedKeys() {
		if !IsAllowedKey(key) {
			t.Fatalf("expected %q to be allowed", key)
		}
	}
	if IsAllowedKey("invalid") {
		t.Fatal("expected 'invalid' to not be allowed")
	}
}

func TestGetKey(t *testing.T) {
	cfg := Config{
		MongoURI: "mongodb://test:1234/",
		Database: "boards",
		LogLevel: "warn",
		Bucket:   "files",
		Export: ExportConfig{
			OutputDir:  "/tmp/out",
			Ledger:     false,
			LedgerPath: "/tmp/ledger.db",
		},
		Migrate: MigrateConfig{ProgressEvery: 7},
	}

	expected := map[string]string{
		"mongo_uri":              "mongodb://test:1234/",
		"database":               "boards",
		"log_level":              "warn",
		"bucket":                 "files",
		"export.output_dir":      "/tmp/out",
		"export.ledger":          "false",
		"export.ledger_path":     "/tmp/ledger.db",
		"migrate.progress_every": "7",
	}
	for key, want := range expected {
		val, err := cfg.Get(key)
		if err != nil || val != want {
			t.Fatalf("expected %s=%q, got %q (err: %v)", key, want, val, err)
		}
	}
	if _, err := cfg.Get("invalid"); err == nil {
		t.Fatal("expected error for invalid key")
	}
}

func TestLedgerFile(t *testing.T) {
	tests := []struct {
		name      string
		export    ExportConfig
		outputDir string
		want      string
	}{
		{name: "beside output dir", outputDir: "/srv/export/attachments", want: "/srv/export/.attachments-ledger.db"},
		{name: "trailing slash", outputDir: "/srv/export/files/", want: "/srv/export/.files-ledger.db"},
		{name: "filesystem root", outputDir: "/", want: "/.attachments-ledger.db"},
		{name: "configured path", export: ExportConfig{LedgerPath: "/var/lib/ledger.db"}, outputDir: "/out", want: "/var/lib/ledger.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.export.LedgerFile(tt.outputDir)
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
			if tt.export.LedgerPath == "" && filepath.Dir(got) == filepath.Clean(tt.outputDir) && tt.outputDir != "/" {
				t.Fatalf("ledger %q must not live inside the export directory", got)
			}
		})
	}
}

func TestLedgerFileRelativeOutputDir(t *testing.T) {
	workspace := t.TempDir()
	chdirTemp(t, workspace)
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	got := ExportConfig{}.LedgerFile("attachments")
	if want := filepath.Join(wd, ".attachments-ledger.db"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSetPath(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	workspace := t.TempDir()
	chdirTemp(t, workspace)
	t.Setenv("HOME", homeDir)

	path, err := SetPath(false)
	if err != nil {
		t.Fatalf("global set path: %v", err)
	}
	if path != filepath.Join(homeDir, configFileName) {
		t.Fatalf("expected home config, got %q", path)
	}

	if _, err := SetPath(true); !errors.Is(err, ErrUntrustedProjectConfig) {
		t.Fatalf("expected untrusted project error, got %v", err)
	}

	t.Setenv(trustProjectConfigEnvKey, "true")
	path, err = SetPath(true)
	if err != nil {
		t.Fatalf("trusted project set path: %v", err)
	}
	wd, _ := os.Getwd()
	if path != filepath.Join(wd, configFileName) {
		t.Fatalf("expected project config, got %q", path)
	}
}

func TestSetThenLoadRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		project bool
		trusted string
	}{
		{name: "global", project: false},
		{name: "trusted project", project: true, trusted: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			chdirTemp(t, t.TempDir())
			t.Setenv("HOME", t.TempDir())
			t.Setenv(trustProjectConfigEnvKey, tt.trusted)

			path, err := SetPath(tt.project)
			if err != nil {
				t.Fatalf("set path: %v", err)
			}
			if err := SetKey(path, "database", "wekan_prod"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := SetKey(path, "bucket", "uploads"); err != nil {
				t.Fatalf("set bucket: %v", err)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			for key, want := range map[string]string{"database": "wekan_prod", "bucket": "uploads"} {
				got, err := cfg.Get(key)
				if err != nil || got != want {
					t.Fatalf("expected %s=%q after set, got %q (err: %v)", key, want, got, err)
				}
			}
		})
	}
}

func TestSetKeyCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.toml")
	if err := SetKey(path, "database", "boards"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "boards" {
		t.Fatalf("expected 'boards', got %q", cfg.Database)
	}
}

func TestSetKeyUpdatesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "existing.toml")
	if err := os.WriteFile(path, []byte("database = \"old\"\nmongo_uri = \"mongodb://keep:27017/\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := SetKey(path, "database", "new"); err != nil {
		t.Fatalf("set: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "new" {
		t.Fatalf("expected 'new', got %q", cfg.Database)
	}
	if cfg.MongoURI != "mongodb://keep:27017/" {
		t.Fatalf("expected preserved mongo_uri, got %q", cfg.MongoURI)
	}
}

func TestSetKeyValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.toml")
	if err := SetKey(path, "invalid_key", "value"); err == nil {
		t.Fatal("expected error for invalid key")
	}
	if err := SetKey(path, "migrate.progress_every", "0"); err == nil {
		t.Fatal("expected error for non-positive progress_every")
	}
	if err := SetKey(path, "export.ledger", "maybe"); err == nil {
		t.Fatal("expected error for non-bool ledger")
	}
	if err := SetKey(path, "mongo_uri", "http://localhost"); err == nil {
		t.Fatal("expected error for non-mongo uri")
	}
}

func TestSetNestedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested.toml")
	if err := SetKey(path, "migrate.progress_every", "321"); err != nil {
		t.Fatalf("set nested key: %v", err)
	}
	if err := SetKey(path, "export.ledger", "false"); err != nil {
		t.Fatalf("set nested bool: %v", err)
	}

	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Migrate.ProgressEvery != 321 {
		t.Fatalf("expected progress_every 321, got %d", cfg.Migrate.ProgressEvery)
	}
	if cfg.Export.Ledger {
		t.Fatal("expected ledger disabled")
	}
}

func TestConfigDirOverridePaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(configDirEnvKey, dir)

	globalPath, err := GlobalPath()
	if err != nil {
		t.Fatalf("global path: %v", err)
	}
	if globalPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected global path: %s", globalPath)
	}

	projectPath, err := ProjectPath()
	if err != nil {
		t.Fatalf("project path: %v", err)
	}
	if projectPath != filepath.Join(dir, configFileName) {
		t.Fatalf("unexpected project path: %s", projectPath)
	}
}

func TestLoadConfigDirOverride(t *testing.T) {
	clearEnv(t)
	configDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(configDir, configFileName), []byte("database = \"fromdir\"\n"), 0644); err != nil {
		t.Fatalf("write override config: %v", err)
	}

	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("database = \"project\"\n"), 0644); err != nil {
		t.Fatalf("write workspace config: %v", err)
	}
	chdirTemp(t, workspace)
	t.Setenv(configDirEnvKey, configDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "fromdir" {
		t.Fatalf("expected config-dir database, got %q", cfg.Database)
	}
	wd, _ := os.Getwd()
	if cfg.Export.OutputDir != filepath.Join(wd, DefaultOutputDir) {
		t.Fatalf("expected default output dir under workspace, got %q", cfg.Export.OutputDir)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	chdirTemp(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv(wekanMongoURLEnvKey, "mongodb://wekan-url:27017/wekan")
	t.Setenv(databaseEnvKey, "other")
	t.Setenv(outputDirEnvKey, "/tmp/export")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MongoURI != "mongodb://wekan-url:27017/wekan" {
		t.Fatalf("expected MONGO_URL override, got %q", cfg.MongoURI)
	}
	if cfg.Database != "other" {
		t.Fatalf("expected database override, got %q", cfg.Database)
	}
	if cfg.Export.OutputDir != "/tmp/export" {
		t.Fatalf("expected output dir override, got %q", cfg.Export.OutputDir)
	}

	t.Setenv(mongoURIEnvKey, "mongodb://explicit:27017/")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MongoURI != "mongodb://explicit:27017/" {
		t.Fatalf("expected WEKAN_MONGO_URI to win over MONGO_URL, got %q", cfg.MongoURI)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	workspace := t.TempDir()
	if err := os.WriteFile(filepath.Join(workspace, ".env"), []byte("WEKAN_DB=fromdotenv\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	chdirTemp(t, workspace)
	t.Setenv("HOME", t.TempDir())
	// godotenv never overrides variables that are already present, so make
	// sure the key is absent rather than empty.
	os.Unsetenv(databaseEnvKey)
	t.Cleanup(func() { os.Unsetenv(databaseEnvKey) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "fromdotenv" {
		t.Fatalf("expected database from .env, got %q", cfg.Database)
	}
}

func TestLoadFallsBackToDefaultLogLevelWhenConfiguredEmpty(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("log_level = \"\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	chdirTemp(t, t.TempDir())
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected default log level %q, got %q", DefaultLogLevel, cfg.LogLevel)
	}
}

func TestLoadIgnoresProjectConfigByDefault(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	workspace := t.TempDir()

	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("database = \"global\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("database = \"project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdirTemp(t, workspace)
	t.Setenv("HOME", homeDir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "global" {
		t.Fatalf("expected global database, got %q", cfg.Database)
	}
	if cfg.TrustedProjectConfigPath != "" {
		t.Fatalf("expected no trusted project config path, got %q", cfg.TrustedProjectConfigPath)
	}
}

func TestLoadAppliesProjectConfigWhenTrusted(t *testing.T) {
	clearEnv(t)
	homeDir := t.TempDir()
	workspace := t.TempDir()

	if err := os.WriteFile(filepath.Join(homeDir, configFileName), []byte("database = \"global\"\n"), 0o644); err != nil {
		t.Fatalf("write home config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workspace, configFileName), []byte("database = \"project\"\n"), 0o644); err != nil {
		t.Fatalf("write project config: %v", err)
	}
	chdirTemp(t, workspace)
	t.Setenv("HOME", homeDir)
	t.Setenv(trustProjectConfigEnvKey, "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database != "project" {
		t.Fatalf("expected trusted project database, got %q", cfg.Database)
	}
	if cfg.TrustedProjectConfigPath == "" {
		t.Fatal("expected trusted project config path to be recorded")
	}
}
