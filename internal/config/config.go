package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Ingest IngestConfig `yaml:"ingest" mapstructure:"ingest"`
	Index  IndexConfig  `yaml:"index" mapstructure:"index"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For the sqlite driver
// DatabaseURL is the database file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// IngestConfig configures the upstream data sync pipeline.
type IngestConfig struct {
	DatabaseURL      string `yaml:"database_url" mapstructure:"database_url"`
	TempDir          string `yaml:"temp_dir" mapstructure:"temp_dir"`
	CitiesFile       string `yaml:"cities_file" mapstructure:"cities_file"`
	MeteostatBaseURL string `yaml:"meteostat_base_url" mapstructure:"meteostat_base_url"`
	MeteostatMirror  string `yaml:"meteostat_mirror" mapstructure:"meteostat_mirror"`
	WorldBankBaseURL string `yaml:"worldbank_base_url" mapstructure:"worldbank_base_url"`
	SVIURL           string `yaml:"svi_url" mapstructure:"svi_url"`
	SVIReleaseMonth  int    `yaml:"svi_release_month" mapstructure:"svi_release_month"`
}

// IndexConfig configures composite scoring.
type IndexConfig struct {
	Thresholds  ThresholdConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Concurrency int             `yaml:"concurrency" mapstructure:"concurrency"`
}

// ThresholdConfig holds the category cut points on the 0-1 composite scale.
type ThresholdConfig struct {
	LowMax      float64 `yaml:"low_max" mapstructure:"low_max"`
	ModerateMax float64 `yaml:"moderate_max" mapstructure:"moderate_max"`
	HighMax     float64 `yaml:"high_max" mapstructure:"high_max"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestDatabaseURL returns the ingest connection string, falling back to
// the store URL when no dedicated one is set.
func (c *Config) IngestDatabaseURL() string {
	if c.Ingest.DatabaseURL != "" {
		return c.Ingest.DatabaseURL
	}
	return c.Store.DatabaseURL
}

// Validate checks the fields required by the given command mode.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "ingest":
		if c.IngestDatabaseURL() == "" {
			problems = append(problems, "ingest.database_url or store.database_url is required")
		}
		if c.Ingest.SVIReleaseMonth < 1 || c.Ingest.SVIReleaseMonth > 12 {
			problems = append(problems, "ingest.svi_release_month must be between 1 and 12")
		}
	case "store":
		problems = append(problems, c.storeProblems()...)
	case "index":
		problems = append(problems, c.storeProblems()...)
		if c.Index.Concurrency < 1 || c.Index.Concurrency > 64 {
			problems = append(problems, "index.concurrency must be between 1 and 64")
		}
	default:
		return eris.Errorf("config: unknown mode: %s", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLIMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("ingest.temp_dir", "/tmp/climate-ingest")
	v.SetDefault("ingest.cities_file", "cities.yaml")
	v.SetDefault("ingest.meteostat_base_url", "https://bulk.meteostat.net/v2")
	v.SetDefault("ingest.worldbank_base_url", "https://api.worldbank.org/v2")
	v.SetDefault("ingest.svi_url", "https://www.atsdr.cdc.gov/placeandhealth/svi/data/SVI2020_US_county.csv")
	v.SetDefault("ingest.svi_release_month", 10)
	v.SetDefault("index.thresholds.low_max", 0.25)
	v.SetDefault("index.thresholds.moderate_max", 0.45)
	v.SetDefault("index.thresholds.high_max", 0.65)
	v.SetDefault("index.concurrency", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
