package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Log       `mapstructure:"log"       validate:"required"`
	Telemetry Telemetry `mapstructure:"telemetry" validate:"required"`
	Download  Download  `mapstructure:"download"`
	Extract   Extract   `mapstructure:"extract"`
	Parse     Parse     `mapstructure:"parse"`
}

type Log struct {
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogDir   string `mapstructure:"log_dir"`
}

type Telemetry struct {
	Enabled     bool              `mapstructure:"enabled"`
	Exporter    string            `mapstructure:"exporter"     validate:"oneof=otlp stdout none"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"     validate:"omitempty,oneof=grpc http"`
	Insecure    bool              `mapstructure:"insecure"`
	Headers     map[string]string `mapstructure:"headers"`
	ServiceName string            `mapstructure:"service_name" validate:"required"`
}

type Download struct {
	Enabled             bool          `mapstructure:"enabled"`
	ManifestURL         string        `mapstructure:"manifest_url"         validate:"required_if=Enabled true,omitempty,url"`
	Directory           string        `mapstructure:"directory"            validate:"required"`
	Timeout             time.Duration `mapstructure:"timeout"              validate:"gt=0"`
	MaxRetries          int           `mapstructure:"max_retries"          validate:"min=0,max=10"`
	ConcurrentDownloads int           `mapstructure:"concurrent_downloads" validate:"min=1,max=30"`
	SkipExists          bool          `mapstructure:"skip_exists"`
	VerifySHA1          bool          `mapstructure:"verify_sha1"`
}

type Extract struct {
	Enabled            bool `mapstructure:"enabled"`
	DeleteAfterExtract bool `mapstructure:"delete_after_extract"`
	XMLOnly            bool `mapstructure:"xml_only"`
}

type Parse struct {
	Enabled    bool   `mapstructure:"enabled"`
	InputDir   string `mapstructure:"input_dir"   validate:"required"`
	Output     string `mapstructure:"output"      validate:"required"`
	Format     string `mapstructure:"format"      validate:"oneof=csv arrow"`
	Workers    int    `mapstructure:"workers"     validate:"min=1,max=64"`
	Charset    string `mapstructure:"charset"`
	SkipErrors bool   `mapstructure:"skip_errors"`
	Limit      int    `mapstructure:"limit"       validate:"min=0"`
	BufferSize int    `mapstructure:"buffer_size" validate:"min=0"`
}

// Load reads configuration from cfgFile (or the default search path),
// GRANT_* environment variables and defaults, then validates it.
func Load(cfgFile string) (Config, error) {
	return LoadWith(viper.New(), cfgFile)
}

// LoadWith is Load on a caller supplied viper instance, typically one with
// command line flags already bound.
func LoadWith(v *viper.Viper, cfgFile string) (Config, error) {
	v.AutomaticEnv()
	v.SetEnvPrefix("GRANT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.grant-processor")
		v.AddConfigPath("/etc/grant-processor")
		v.SetConfigType("yaml")
	}

	v.SetDefault("log.log_level", "info")
	v.SetDefault("log.log_dir", "logs")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.exporter", "none")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "grant-processor")
	v.SetDefault("download.enabled", false)
	v.SetDefault("download.directory", "data")
	v.SetDefault("download.timeout", 30*time.Second)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.concurrent_downloads", 4)
	v.SetDefault("download.skip_exists", true)
	v.SetDefault("extract.enabled", true)
	v.SetDefault("extract.xml_only", true)
	v.SetDefault("parse.enabled", true)
	v.SetDefault("parse.input_dir", "data")
	v.SetDefault("parse.output", "grants.csv")
	v.SetDefault("parse.format", "csv")
	v.SetDefault("parse.workers", 4)
	v.SetDefault("parse.charset", "utf-8")
	v.SetDefault("parse.limit", 10)

	err := v.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config read error: %w", err)
		}
		// Not found is ok, use defaults/env
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal error: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint == "" {
		return Config{}, fmt.Errorf("telemetry.endpoint is required when using otlp exporter")
	}
	return cfg, nil
}
