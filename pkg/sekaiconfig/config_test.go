package sekaiconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

const sampleYAML = `
proxy: ""
jp_sekai_cookie_url: "https://example.test/cookie"
git:
  enabled: false
backend:
  host: 0.0.0.0
  port: 9999
  sekai_user_jwt_signing_key: dev-key
servers:
  jp:
    enabled: true
    master_dir: /tmp/master/jp
    api_url: https://jp.example.test
    aes_key_hex: "00112233445566778899aabbccddeeff"
    aes_iv_hex: "ffeeddccbbaa99887766554433221100"
  tw:
    enabled: false
    api_url: https://tw.example.test
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesServersMap(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv(configPathEnv, path)
	t.Setenv(secretsFileEnv, "")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.SekaiUserJWTSigningKey != "dev-key" {
		t.Fatalf("SigningKey = %q, want dev-key", cfg.Backend.SekaiUserJWTSigningKey)
	}

	jp, ok := cfg.RegionConfig(sekairegion.JP)
	if !ok {
		t.Fatal("expected jp region to be enabled")
	}
	if jp.APIURL != "https://jp.example.test" {
		t.Fatalf("jp.APIURL = %q", jp.APIURL)
	}

	if _, ok := cfg.RegionConfig(sekairegion.TW); ok {
		t.Fatal("expected tw region to be disabled")
	}
}

func TestLoadOverlaysSecrets(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	t.Setenv(configPathEnv, path)

	secretsPath := filepath.Join(filepath.Dir(path), "secrets.env")
	if err := os.WriteFile(secretsPath, []byte("SEKAI_JWT_SIGNING_KEY=overridden\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(secretsFileEnv, secretsPath)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.SekaiUserJWTSigningKey != "overridden" {
		t.Fatalf("SigningKey = %q, want overridden", cfg.Backend.SekaiUserJWTSigningKey)
	}
}
