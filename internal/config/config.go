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
	Sensors   SensorsConfig   `yaml:"sensors" mapstructure:"sensors"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	OSRM      OSRMConfig      `yaml:"osrm" mapstructure:"osrm"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SensorsConfig selects where sensor telemetry comes from.
type SensorsConfig struct {
	// Driver is one of "api", "postgres", or "xlsx".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	XLSXPath    string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	XLSXSheet   string `yaml:"xlsx_sheet" mapstructure:"xlsx_sheet"`
}

// OverpassConfig configures the OpenStreetMap feature lookup.
type OverpassConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// ShapefilePath switches the feature provider to a local shapefile for
	// offline deployments. Empty uses the Overpass API.
	ShapefilePath string `yaml:"shapefile_path" mapstructure:"shapefile_path"`
}

// OSRMConfig configures the routing backend.
type OSRMConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Profile     string `yaml:"profile" mapstructure:"profile"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NominatimConfig configures reverse geocoding of chosen safe zones.
type NominatimConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig selects the ring-search profile and buffer policy.
type SearchConfig struct {
	// Profile is a built-in name ("fine", "coarse") or one defined in
	// ProfilesPath.
	Profile      string `yaml:"profile" mapstructure:"profile"`
	ProfilesPath string `yaml:"profiles_path" mapstructure:"profiles_path"`
	// BufferPolicy is "lenient" or "aggressive".
	BufferPolicy string `yaml:"buffer_policy" mapstructure:"buffer_policy"`
}

// CacheConfig configures the persistent feature cache.
type CacheConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	TTLMins  int    `yaml:"ttl_mins" mapstructure:"ttl_mins"`
	Disabled bool   `yaml:"disabled" mapstructure:"disabled"`
}

// ServerConfig configures the HTTP evaluation server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EVAC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sensors.driver", "api")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 8)
	v.SetDefault("osrm.base_url", "https://router.project-osrm.org")
	v.SetDefault("osrm.profile", "driving")
	v.SetDefault("osrm.timeout_secs", 10)
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "evac-cli/1.0")
	v.SetDefault("search.profile", "fine")
	v.SetDefault("search.buffer_policy", "lenient")
	v.SetDefault("cache.ttl_mins", 15)
	v.SetDefault("server.port", 8080)
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
