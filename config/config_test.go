package config

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("PIXEL_CHAT_DATA_DIR", tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.UserName == "" {
		t.Fatalf("expected non-empty user name")
	}
	if firstCfg.Backend != BackendFreeHost {
		t.Fatalf("expected default backend %q, got %q", BackendFreeHost, firstCfg.Backend)
	}
	if firstCfg.HostBaseURL != DefaultHostBaseURL {
		t.Fatalf("expected default host URL %q, got %q", DefaultHostBaseURL, firstCfg.HostBaseURL)
	}
	if firstCfg.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Fatalf("expected default poll interval %d, got %d", DefaultPollIntervalSeconds, firstCfg.PollIntervalSeconds)
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.UserName != firstCfg.UserName {
		t.Fatalf("expected stable user name, got %q then %q", firstCfg.UserName, secondCfg.UserName)
	}
	if secondCfg.IdentityPath != firstCfg.IdentityPath {
		t.Fatalf("expected stable identity path, got %q then %q", firstCfg.IdentityPath, secondCfg.IdentityPath)
	}
	if secondCfg.SearchTag != firstCfg.SearchTag {
		t.Fatalf("expected stable search tag, got %q then %q", firstCfg.SearchTag, secondCfg.SearchTag)
	}
}

func TestLoadOrCreateNormalizesBackendFromMinioEndpoint(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("PIXEL_CHAT_DATA_DIR", tempDir)

	cfgPath := filepath.Join(tempDir, "config.json")
	if err := EnsureDataDirectories(tempDir); err != nil {
		t.Fatalf("EnsureDataDirectories failed: %v", err)
	}

	partial := &ClientConfig{
		UserName:  "legacy",
		SearchTag: "LegacyTag",
		Minio: MinioConfig{
			Endpoint:  "localhost:9000",
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Bucket:    "pixelchat",
		},
	}
	if err := Save(cfgPath, partial); err != nil {
		t.Fatalf("Save partial config failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.Backend != BackendMinio {
		t.Fatalf("expected minio endpoint to select backend %q, got %q", BackendMinio, cfg.Backend)
	}
	if cfg.SearchTag != "LegacyTag" {
		t.Fatalf("expected existing tag to be retained, got %q", cfg.SearchTag)
	}
	if cfg.PollIntervalSeconds != DefaultPollIntervalSeconds {
		t.Fatalf("expected missing poll interval to default to %d, got %d", DefaultPollIntervalSeconds, cfg.PollIntervalSeconds)
	}
	if cfg.IdentityPath == "" {
		t.Fatalf("expected identity path to be filled in")
	}
}
