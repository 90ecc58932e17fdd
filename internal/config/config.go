package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Source types understood by the registry.
const (
	SourceWeasyl       = "weasyl"
	SourceFurryNetwork = "furrynetwork"
	SourceFeed         = "feed"
	SourceStaging      = "staging"
	SourceArchive      = "archive"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Paging   PagingConfig   `mapstructure:"paging"`
	Export   ExportConfig   `mapstructure:"export"`
	Sources  []SourceConfig `mapstructure:"sources"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	URL             string        `mapstructure:"url"` // full postgres URL, wins over the fields above
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	LocalPath string `mapstructure:"local_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

// PagingConfig holds defaults for bulk retrieval.
type PagingConfig struct {
	MaxEmptyRounds       int  `mapstructure:"max_empty_rounds"`
	ReturnPartialOnError bool `mapstructure:"return_partial_on_error"`
}

type ExportConfig struct {
	Workers         int           `mapstructure:"workers"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	RetryCount      int           `mapstructure:"retry_count"`
	MaxMediaBytes   int64         `mapstructure:"max_media_bytes"`
}

// SourceConfig configures one gallery source. Which fields apply depends on
// Type. Secrets may reference environment variables as ${NAME}.
type SourceConfig struct {
	ID            string  `mapstructure:"id"`
	Type          string  `mapstructure:"type"`
	Name          string  `mapstructure:"name"`
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	Username      string  `mapstructure:"username"`
	Character     string  `mapstructure:"character"`
	Status        string  `mapstructure:"status"`
	URL           string  `mapstructure:"url"`
	Path          string  `mapstructure:"path"`
	ArchiveOf     string  `mapstructure:"archive_of"` // archive: only items exported from this source
	BatchSize     int     `mapstructure:"batch_size"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("database.password", "DATABASE_PASSWORD")
	_ = v.BindEnv("storage.type", "STORAGE_TYPE")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	_ = v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	_ = v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	_ = v.BindEnv("storage.public_url", "STORAGE_PUBLIC_URL")
	_ = v.BindEnv("server.port", "PORT")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Sources {
		cfg.Sources[i].APIKey = os.ExpandEnv(cfg.Sources[i].APIKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/artsync.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "artsync")
	v.SetDefault("database.dbname", "artsync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./data/export")
	v.SetDefault("storage.bucket", "artsync")
	v.SetDefault("paging.max_empty_rounds", 1)
	v.SetDefault("paging.return_partial_on_error", false)
	v.SetDefault("export.workers", 4)
	v.SetDefault("export.download_timeout", 60*time.Second)
	v.SetDefault("export.retry_count", 2)
	v.SetDefault("export.max_media_bytes", 64<<20)
}

// Validate checks the source list for unusable entries.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, s := range c.Sources {
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}

		switch s.Type {
		case SourceWeasyl:
			if s.APIKey == "" && s.Username == "" {
				return fmt.Errorf("source %q: weasyl needs api_key or username", s.ID)
			}
		case SourceFurryNetwork:
			if s.Character == "" {
				return fmt.Errorf("source %q: furrynetwork needs character", s.ID)
			}
		case SourceFeed:
			if s.URL == "" {
				return fmt.Errorf("source %q: feed needs url", s.ID)
			}
		case SourceStaging:
			if s.Path == "" {
				return fmt.Errorf("source %q: staging needs path", s.ID)
			}
		case SourceArchive:
		default:
			return fmt.Errorf("source %q: unknown type %q", s.ID, s.Type)
		}
	}
	return nil
}

// Source returns the source with the given ID.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return SourceConfig{}, false
}
