package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	Storage struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"storage"`

	// PublicURL is the base URL under which this server is reachable by the
	// document server, used to build download and callback links.
	PublicURL string `mapstructure:"public_url"`

	DocumentServer struct {
		SiteURL       string        `mapstructure:"site_url"`
		ConverterPath string        `mapstructure:"converter_path"`
		CommandPath   string        `mapstructure:"command_path"`
		Timeout       time.Duration `mapstructure:"timeout"`
		PollInterval  time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"document_server"`

	Token struct {
		Enable        bool          `mapstructure:"enable"`
		UseForRequest bool          `mapstructure:"use_for_request"`
		Secret        string        `mapstructure:"secret"`
		Header        string        `mapstructure:"header"`
		HeaderPrefix  string        `mapstructure:"header_prefix"`
		ExpiresIn     time.Duration `mapstructure:"expires_in"`
		Algorithm     string        `mapstructure:"algorithm"`
	} `mapstructure:"token"`

	Cache struct {
		Backend       string        `mapstructure:"backend"` // memory | redis
		RedisAddr     string        `mapstructure:"redis_addr"`
		RedisPassword string        `mapstructure:"redis_password"`
		TTL           time.Duration `mapstructure:"ttl"`
	} `mapstructure:"cache"`

	Meta struct {
		Backend     string `mapstructure:"backend"` // filesystem | postgres
		PostgresDSN string `mapstructure:"postgres_dsn"`
	} `mapstructure:"meta"`

	Files struct {
		Edited    []string `mapstructure:"edited"`
		Viewed    []string `mapstructure:"viewed"`
		Converted []string `mapstructure:"converted"`
		MaxSize   int64    `mapstructure:"max_size"`
	} `mapstructure:"files"`
}

// Load reads configuration from the given file (yaml), applying TRACKD_*
// environment overrides and defaults. An empty path loads defaults and
// environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TRACKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Token.Enable && strings.TrimSpace(cfg.Token.Secret) == "" {
		return nil, fmt.Errorf("token.secret is required when token.enable is set")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("storage.root", "./storage")
	v.SetDefault("public_url", "http://localhost:8080")
	v.SetDefault("document_server.site_url", "http://localhost/")
	v.SetDefault("document_server.converter_path", "ConvertService.ashx")
	v.SetDefault("document_server.command_path", "coauthoring/CommandService.ashx")
	v.SetDefault("document_server.timeout", 30*time.Second)
	v.SetDefault("document_server.poll_interval", time.Second)
	v.SetDefault("token.header", "Authorization")
	v.SetDefault("token.header_prefix", "Bearer ")
	v.SetDefault("token.expires_in", 5*time.Minute)
	v.SetDefault("token.algorithm", "HS256")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("meta.backend", "filesystem")
	v.SetDefault("files.edited", []string{".docx", ".xlsx", ".pptx", ".txt", ".csv"})
	v.SetDefault("files.viewed", []string{".pdf", ".djvu", ".xps"})
	v.SetDefault("files.converted", []string{
		".doc", ".docm", ".dot", ".dotx", ".dotm", ".odt", ".fodt", ".ott",
		".rtf", ".mht", ".html", ".htm", ".epub", ".fb2", ".xls", ".xlsm",
		".xlt", ".xltx", ".xltm", ".ods", ".fods", ".ots", ".pps", ".ppsx",
		".ppsm", ".ppt", ".pptm", ".pot", ".potx", ".potm", ".odp", ".fodp",
		".otp",
	})
	v.SetDefault("files.max_size", int64(1<<26))
}
