package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("TX_MAX_ATTEMPTS", "zero")
	t.Setenv("BALANCE_CACHE_TTL_SECONDS", "-4")
	t.Setenv("NODE_ID", "7")

	cfg := Load()
	if cfg.TxMaxAttempts != 5 {
		t.Fatalf("expected default TX_MAX_ATTEMPTS 5, got %d", cfg.TxMaxAttempts)
	}
	if cfg.BalanceCacheTTLSeconds != 30 {
		t.Fatalf("expected default cache ttl 30, got %d", cfg.BalanceCacheTTLSeconds)
	}
	if cfg.NodeID != 7 {
		t.Fatalf("expected node id 7, got %d", cfg.NodeID)
	}
}

func TestLoadMergesDotenvWithoutOverridingEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "KASBON_CFG_TEST_BRANCH=north-branch\nPORT=9999\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("PORT", "8181")
	_ = os.Unsetenv("KASBON_CFG_TEST_BRANCH")
	t.Cleanup(func() { _ = os.Unsetenv("KASBON_CFG_TEST_BRANCH") })

	cfg := Load()
	if cfg.Port != "8181" {
		t.Fatalf("expected environment PORT to win, got %q", cfg.Port)
	}
	if got := os.Getenv("KASBON_CFG_TEST_BRANCH"); got != "north-branch" {
		t.Fatalf("expected dotenv value to be merged, got %q", got)
	}
}
