package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolateEnv points every location and override at a temp dir so the
// developer's real configuration never leaks into a test.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv(EnvRegistryURL, "")
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvStorePath, "")
	t.Setenv(EnvTimeout, "")
	t.Setenv(EnvSentryDSN, "")
	return dir
}

func TestLoadFile_FileNotFound(t *testing.T) {
	values, err := LoadFile(t.TempDir())
	if err != nil {
		t.Fatalf("LoadFile() returned error for missing file: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("expected empty map, got %v", values)
	}
}

func TestLoadFile_InvalidLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	content := `# comment

noequalssign
=missingkey
Registry_URL = https://example.test
timeout=
`
	if err := os.WriteFile(filepath.Join(dir, "config"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	values, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("expected 1 value, got %d: %v", len(values), values)
	}
	if got := values["registry_url"]; got != "https://example.test" {
		t.Errorf("values[registry_url] = %q, want %q", got, "https://example.test")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := isolateEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.RegistryURL != DefaultRegistryURL {
		t.Errorf("RegistryURL = %q, want %q", cfg.RegistryURL, DefaultRegistryURL)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
	wantData := filepath.Join(dir, "data", "datapkg")
	if cfg.DataDir != wantData {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, wantData)
	}
	if cfg.AuthFile() != filepath.Join(wantData, "auth.json") {
		t.Errorf("AuthFile() = %q", cfg.AuthFile())
	}
	if roots := cfg.StoreRoots(); len(roots) != 1 || roots[0] != filepath.Join(wantData, "packages") {
		t.Errorf("StoreRoots() = %v", roots)
	}
}

func TestLoad_Layering(t *testing.T) {
	dir := isolateEnv(t)

	configDir := filepath.Join(dir, "cfg")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	file := "registry_url=https://file.test/\ntimeout=30s\ndata_dir=/from/file\n"
	if err := os.WriteFile(filepath.Join(configDir, "config"), []byte(file), 0644); err != nil {
		t.Fatal(err)
	}

	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DATAPKG_DATA_DIR=/from/dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv(EnvDataDir) })
	os.Unsetenv(EnvDataDir)

	t.Setenv(EnvStorePath, "/shared/a"+string(os.PathListSeparator)+"/shared/b")

	cfg, err := Load(Options{ConfigDir: configDir, EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.RegistryURL != "https://file.test" {
		t.Errorf("RegistryURL = %q, want trailing slash trimmed file value", cfg.RegistryURL)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout)
	}
	if cfg.DataDir != "/from/dotenv" {
		t.Errorf("DataDir = %q, want dotenv value to beat the config file", cfg.DataDir)
	}
	roots := cfg.StoreRoots()
	if len(roots) != 3 || roots[1] != "/shared/a" || roots[2] != "/shared/b" {
		t.Errorf("StoreRoots() = %v", roots)
	}
}

func TestLoad_EnvBeatsDotEnv(t *testing.T) {
	dir := isolateEnv(t)
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("DATAPKG_URL=https://dotenv.test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvRegistryURL, "https://env.test")

	cfg, err := Load(Options{ConfigDir: dir, EnvFile: envFile})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RegistryURL != "https://env.test" {
		t.Errorf("RegistryURL = %q, want environment value", cfg.RegistryURL)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	dir := isolateEnv(t)
	if _, err := Load(Options{ConfigDir: dir, EnvFile: filepath.Join(dir, "absent.env")}); err != nil {
		t.Fatalf("Load() with missing env file: %v", err)
	}
}

func TestLoad_InvalidTimeout(t *testing.T) {
	dir := isolateEnv(t)
	t.Setenv(EnvTimeout, "soon")

	if _, err := Load(Options{ConfigDir: dir}); err == nil {
		t.Fatal("Load() should reject an unparseable timeout")
	}
}
