package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// chdir moves the test into a temp directory so Load() picks up (or misses)
// the config.yaml written there.
func chdir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})
	return tmpDir
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := chdir(t)
	writeConfig(t, dir, `
port: "3443"
env: "test"
agent:
  default_row_cap: 500
state:
  database: "datapilot_test"
`)

	t.Setenv("PORT", "4443")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}

	// YAML value survives where no env override exists.
	if cfg.Agent.DefaultRowCap != 500 {
		t.Errorf("expected DefaultRowCap=500 (from yaml), got %d", cfg.Agent.DefaultRowCap)
	}
	if cfg.State.Database != "datapilot_test" {
		t.Errorf("expected State.Database=datapilot_test (from yaml), got %s", cfg.State.Database)
	}
}

func TestLoad_MissingConfigFileUsesEnvAndDefaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default Port=8080, got %s", cfg.Port)
	}
	if cfg.Agent.DefaultRowCap != 1000 {
		t.Errorf("expected default DefaultRowCap=1000, got %d", cfg.Agent.DefaultRowCap)
	}
	if cfg.Session.MaxPerUser != 20 {
		t.Errorf("expected default MaxPerUser=20, got %d", cfg.Session.MaxPerUser)
	}
	if cfg.LLM.Enabled() {
		t.Error("expected LLM disabled by default")
	}
	if cfg.Redis.Enabled() {
		t.Error("expected Redis disabled by default")
	}
	if cfg.MCP.Enabled {
		t.Error("expected MCP disabled by default")
	}
}

func TestLoad_DatasourceFromEnv(t *testing.T) {
	chdir(t)

	t.Setenv("RELATIONAL_POOL_MAX", "20")
	t.Setenv("RELATIONAL_POOL_MIN", "3")
	t.Setenv("DATASOURCE_CONNECTION_TTL_MINUTES", "15")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Datasource.PoolMaxConns != 20 {
		t.Errorf("expected PoolMaxConns=20 (from env), got %d", cfg.Datasource.PoolMaxConns)
	}
	if cfg.Datasource.PoolMinConns != 3 {
		t.Errorf("expected PoolMinConns=3 (from env), got %d", cfg.Datasource.PoolMinConns)
	}
	if got := cfg.Datasource.ConnectionTTL().Minutes(); got != 15 {
		t.Errorf("expected ConnectionTTL=15m (from env), got %v", got)
	}
}

func TestLoad_JWKSEndpointsParsed(t *testing.T) {
	chdir(t)

	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")
	t.Setenv("JWKS_ENDPOINTS", "https://issuer.one=https://issuer.one/jwks.json, https://issuer.two=https://issuer.two/keys")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Auth.JWKSEndpoints) != 2 {
		t.Fatalf("expected 2 JWKS endpoints, got %d", len(cfg.Auth.JWKSEndpoints))
	}
	if cfg.Auth.JWKSEndpoints["https://issuer.one"] != "https://issuer.one/jwks.json" {
		t.Errorf("unexpected endpoint map: %v", cfg.Auth.JWKSEndpoints)
	}
}

func TestLoad_VerificationNeedsKeyMaterial(t *testing.T) {
	chdir(t)

	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error when verification is on without a secret or JWKS endpoints")
	}
	if !strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
		t.Errorf("expected error to name the missing settings, got: %v", err)
	}
}

func TestLoad_UnknownProviderRejected(t *testing.T) {
	chdir(t)

	t.Setenv("LLM_PROVIDER", "cohere")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for unknown llm provider")
	}
}

func TestLoad_RowCapMustBePositive(t *testing.T) {
	chdir(t)

	t.Setenv("DEFAULT_ROW_CAP", "0")

	_, err := Load("test-version")
	if err == nil {
		t.Fatal("expected error for non-positive row cap")
	}
}

func TestRedisAddr(t *testing.T) {
	c := RedisConfig{Host: "cache.internal", Port: 6380}
	if c.Addr() != "cache.internal:6380" {
		t.Errorf("unexpected addr %s", c.Addr())
	}
}
