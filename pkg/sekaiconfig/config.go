// Package sekaiconfig loads the process-wide YAML configuration file,
// optionally overlaying secrets from a sibling .env-style file so that
// deployments can keep credentials out of the checked-in YAML, grounded on
// the teacher's env-tag configuration idiom (pkg/atlas/config.go) adapted to
// this project's YAML-plus-region-map shape (original_source/src/config.rs).
package sekaiconfig

import (
	"os"

	"github.com/hashicorp/go-envparse"
	"gopkg.in/yaml.v3"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/harlog"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisync"
)

const (
	defaultConfigPath = "haruki-sekai-configs.yaml"
	configPathEnv     = "CONFIG_PATH"
	secretsFileEnv     = "CONFIG_SECRETS_FILE"
)

// RedisConfig describes the optional redis-backed cache backend.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     uint16 `yaml:"port"`
	Password string `yaml:"password"`
}

// BackendConfig describes the public HTTP surface (pkg/sekaiapi).
type BackendConfig struct {
	Host                   string   `yaml:"host"`
	Port                   uint16   `yaml:"port"`
	SSL                    bool     `yaml:"ssl"`
	SSLCert                string   `yaml:"ssl_cert"`
	SSLKey                 string   `yaml:"ssl_key"`
	LogLevel               string   `yaml:"log_level"`
	SekaiUserJWTSigningKey string   `yaml:"sekai_user_jwt_signing_key"`
	EnableTrustProxy       bool     `yaml:"enable_trust_proxy"`
	TrustedProxies         []string `yaml:"trusted_proxies"`
	ProxyHeader            string   `yaml:"proxy_header"`
}

// DatabaseConfig describes the authorization-store backend (pkg/authstore).
type DatabaseConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	MaxConnections uint32 `yaml:"max_connections"`
}

// Config is the root of the YAML configuration file.
type Config struct {
	Proxy            string                                    `yaml:"proxy"`
	JPSekaiCookieURL string                                    `yaml:"jp_sekai_cookie_url"`
	Git              sekaisync.GitConfig                       `yaml:"git"`
	Redis            RedisConfig                               `yaml:"redis"`
	Backend          BackendConfig                              `yaml:"backend"`
	Database         DatabaseConfig                             `yaml:"database"`
	Harlog           harlog.Config                               `yaml:"harlog"`
	AppHashSources   []sekaisync.AppHashSource                  `yaml:"apphash_sources"`
	AssetUpdaters    []sekaisync.AssetUpdaterServer              `yaml:"asset_updater_servers"`
	Servers          map[sekairegion.Region]sekaiengine.Config `yaml:"servers"`
}

// Load reads and parses the config file named by CONFIG_PATH (defaulting to
// haruki-sekai-configs.yaml), then overlays any secrets from the file named
// by CONFIG_SECRETS_FILE if set. The secrets file uses KEY=VALUE lines
// (parsed with hashicorp/go-envparse) and currently only supplies
// backend.sekai_user_jwt_signing_key and database.dsn, via the
// SEKAI_JWT_SIGNING_KEY and SEKAI_DATABASE_DSN keys, so that those two
// values can be kept out of the checked-in YAML.
func Load() (*Config, error) {
	path := os.Getenv(configPathEnv)
	if path == "" {
		path = defaultConfigPath
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperror.New(apperror.KindIoError, "open config file %q: %v", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, apperror.New(apperror.KindParseError, "parse config file %q: %v", path, err)
	}

	if secretsPath := os.Getenv(secretsFileEnv); secretsPath != "" {
		if err := overlaySecrets(&cfg, secretsPath); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func overlaySecrets(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperror.New(apperror.KindIoError, "open secrets file %q: %v", path, err)
	}
	defer f.Close()

	secrets, err := envparse.Parse(f)
	if err != nil {
		return apperror.New(apperror.KindParseError, "parse secrets file %q: %v", path, err)
	}

	if v, ok := secrets["SEKAI_JWT_SIGNING_KEY"]; ok && v != "" {
		cfg.Backend.SekaiUserJWTSigningKey = v
	}
	if v, ok := secrets["SEKAI_DATABASE_DSN"]; ok && v != "" {
		cfg.Database.DSN = v
	}
	return nil
}

// RegionConfig returns the named region's server config and whether it is
// present and enabled.
func (c *Config) RegionConfig(region sekairegion.Region) (sekaiengine.Config, bool) {
	rc, ok := c.Servers[region]
	return rc, ok && rc.Enabled
}
