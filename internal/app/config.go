package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/raysh454/sitescore/internal/auditor"
	"github.com/raysh454/sitescore/internal/linkcheck"
	"github.com/raysh454/sitescore/internal/logging"
	"github.com/raysh454/sitescore/internal/storage/linkcache"
)

// EnvPrefix prefixes every environment override, e.g. SITESCORE_DATA_DIR.
const EnvPrefix = "SITESCORE"

// Config is the runtime configuration shared by the CLI and the API server.
type Config struct {
	// DataDir holds projects/, audits.db, link-cache.db and the legacy
	// crawls/ and reports/ directories.
	DataDir string `mapstructure:"data_dir"`

	LinkCache LinkCacheConfig  `mapstructure:"link_cache"`
	LinkCheck linkcheck.Config `mapstructure:"link_check"`
	Rules     RulesConfig      `mapstructure:"rules"`
	Audit     auditor.Config   `mapstructure:"audit"`
	Log       logging.Config   `mapstructure:"log"`
	Server    ServerConfig     `mapstructure:"server"`
}

type LinkCacheConfig struct {
	TTLDays int `mapstructure:"ttl_days"`
}

// TTL converts TTLDays, falling back to the cache default.
func (c LinkCacheConfig) TTL() time.Duration {
	if c.TTLDays <= 0 {
		return linkcache.DefaultTTL
	}
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// RulesConfig selects rules by id pattern. Disable wins over enable.
type RulesConfig struct {
	Enable  []string `mapstructure:"enable"`
	Disable []string `mapstructure:"disable"`
}

type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig returns a Config populated with local defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir:   "~/.config/sitescore",
		LinkCache: LinkCacheConfig{TTLDays: 7},
		LinkCheck: linkcheck.DefaultConfig(),
		Audit:     auditor.DefaultConfig(),
		Log:       logging.Config{Level: "info"},
		Server:    ServerConfig{ListenAddr: ":8080"},
	}
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("link_cache.ttl_days", def.LinkCache.TTLDays)
	v.SetDefault("link_check.concurrency", def.LinkCheck.Concurrency)
	v.SetDefault("link_check.timeout", def.LinkCheck.Timeout)
	v.SetDefault("rules.enable", []string{})
	v.SetDefault("rules.disable", []string{})
	v.SetDefault("audit.concurrency", def.Audit.Concurrency)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("server.listen_addr", def.Server.ListenAddr)
}

// Load reads configuration from defaults, an optional YAML file, a .env file
// and SITESCORE_* environment variables, later sources winning. An empty
// path searches ./sitescore.yaml and ./config/sitescore.yaml.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sitescore")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	dir, err := expandPath(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("expand data_dir: %w", err)
	}
	cfg.DataDir = dir
	return cfg, nil
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
