package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgerhound/ledgerhound/internal/common"
)

// Settings is the typed view of the application configuration.
type Settings struct {
	Database DatabaseSettings `mapstructure:"database"`
	Oracle   OracleSettings   `mapstructure:"oracle"`
	Vendors  VendorSettings   `mapstructure:"vendors"`
	Pipeline PipelineSettings `mapstructure:"pipeline"`
	Ingest   IngestSettings   `mapstructure:"ingest"`
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

// OracleSettings configures the external classification service.
type OracleSettings struct {
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
	RateLimit  int           `mapstructure:"rate_limit"`
}

// VendorSettings holds the resolution thresholds.
type VendorSettings struct {
	AcceptThreshold float64 `mapstructure:"accept_threshold"`
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// PipelineSettings tunes batch processing.
type PipelineSettings struct {
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Workers      int           `mapstructure:"workers"`
}

// IngestSettings configures statement parsing.
type IngestSettings struct {
	DefaultCurrency string `mapstructure:"default_currency"`
}

// SetDefaults registers every default on v. Called before reading the
// config file so missing keys fall back sensibly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/ledgerhound/ledgerhound.db")

	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("oracle.retry_delay", time.Second)
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.rate_limit", 60)

	v.SetDefault("vendors.accept_threshold", 0.80)
	v.SetDefault("vendors.review_threshold", 0.60)

	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.batch_timeout", 10*time.Minute)

	v.SetDefault("ingest.default_currency", "DKK")
}

// Load unmarshals and validates the settings.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	s.Database.Path = ExpandPath(s.Database.Path)

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.Vendors.AcceptThreshold <= 0 || s.Vendors.AcceptThreshold > 1 {
		return fmt.Errorf("%w: vendors.accept_threshold must be in (0,1]", common.ErrInvalidConfig)
	}
	if s.Vendors.ReviewThreshold <= 0 || s.Vendors.ReviewThreshold >= s.Vendors.AcceptThreshold {
		return fmt.Errorf("%w: vendors.review_threshold must be in (0, accept_threshold)", common.ErrInvalidConfig)
	}
	if s.Pipeline.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1", common.ErrInvalidConfig)
	}
	if s.Oracle.MaxRetries < 1 {
		return fmt.Errorf("%w: oracle.max_retries must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}
