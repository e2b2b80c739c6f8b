package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	HTTP struct {
		ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	} `mapstructure:"http" yaml:"http"`

	Database struct {
		URL string `mapstructure:"url" yaml:"-"` // Never serialize credentials
	} `mapstructure:"database" yaml:"database"`

	Import struct {
		Workers             int     `mapstructure:"workers" yaml:"workers"`
		QueueCapacity       int     `mapstructure:"queue_capacity" yaml:"queue_capacity"`
		ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
		UploadDirectory     string  `mapstructure:"upload_directory" yaml:"upload_directory"`
	} `mapstructure:"import" yaml:"import"`

	Categorization struct {
		AutoApplyThreshold int `mapstructure:"auto_apply_threshold" yaml:"auto_apply_threshold"`
	} `mapstructure:"categorization" yaml:"categorization"`

	AI struct {
		Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
		Model   string `mapstructure:"model" yaml:"model"`
		APIKey  string `mapstructure:"api_key" yaml:"-"` // Never serialize API key
	} `mapstructure:"ai" yaml:"ai"`
}

// InitializeConfig initializes Viper configuration with hierarchical loading:
// defaults, then an optional config file, then environment variables.
func InitializeConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.invoice-import")
	v.AddConfigPath(".invoice-import")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INVOICE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			Logger.Warnf("Error reading config file %s: %v", v.ConfigFileUsed(), err)
		}
		// Missing config file is fine, defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("http.listen_addr", ":8080")

	v.SetDefault("database.url", "")

	v.SetDefault("import.workers", 3)
	v.SetDefault("import.queue_capacity", 100)
	v.SetDefault("import.confidence_threshold", 0.7)
	v.SetDefault("import.upload_directory", "data/uploads")

	v.SetDefault("categorization.auto_apply_threshold", 3)

	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.api_key", "")
}
