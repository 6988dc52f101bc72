package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/wildfire-cli/internal/engine"
	"github.com/sells-group/wildfire-cli/internal/enrich"
	"github.com/sells-group/wildfire-cli/internal/export"
)

// Config holds the full application configuration.
type Config struct {
	Workspace WorkspaceConfig  `yaml:"workspace" mapstructure:"workspace"`
	Inputs    InputsConfig     `yaml:"inputs" mapstructure:"inputs"`
	Region    RegionConfig     `yaml:"region" mapstructure:"region"`
	Buffer    BufferConfig     `yaml:"buffer" mapstructure:"buffer"`
	Join      JoinConfig       `yaml:"join" mapstructure:"join"`
	Export    ExportConfig     `yaml:"export" mapstructure:"export"`
	Present   PresentConfig    `yaml:"present" mapstructure:"present"`
	Fetch     FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Metrics   MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Monitor   MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// WorkspaceConfig locates the workspace database. An empty Dir uses the
// export directory.
type WorkspaceConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	Name        string `yaml:"name" mapstructure:"name"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// InputsConfig holds the three dataset references: local paths, zip
// archives, or http(s)/ftp URLs.
type InputsConfig struct {
	Events    string `yaml:"events" mapstructure:"events"`
	Regions   string `yaml:"regions" mapstructure:"regions"`
	Ownership string `yaml:"ownership" mapstructure:"ownership"`
}

// RegionConfig holds the attribute predicate that selects the region of interest.
type RegionConfig struct {
	Predicate string `yaml:"predicate" mapstructure:"predicate"`
	View      string `yaml:"view" mapstructure:"view"`
}

// BufferConfig configures the buffer tiers.
type BufferConfig struct {
	DistancesKM []float64 `yaml:"distances_km" mapstructure:"distances_km"`
	Segments    int       `yaml:"segments" mapstructure:"segments"`
	Prefix      string    `yaml:"prefix" mapstructure:"prefix"`
}

// JoinConfig configures the ownership join.
type JoinConfig struct {
	Operation       string `yaml:"operation" mapstructure:"operation"`
	CategoryField   string `yaml:"category_field" mapstructure:"category_field"`
	DefaultCategory string `yaml:"default_category" mapstructure:"default_category"`
}

// ExportConfig configures the tabular exports.
type ExportConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// PresentConfig configures layer registration. An empty DatabaseURL
// disables PostGIS publishing.
type PresentConfig struct {
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`
	LayerFile   string `yaml:"layer_file" mapstructure:"layer_file"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// FetchConfig configures remote input downloads.
type FetchConfig struct {
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries     int    `yaml:"retries" mapstructure:"retries"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MetricsConfig configures the Prometheus textfile. Empty disables it.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// MonitoringConfig configures run alerts. An empty WebhookURL disables them.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// ServerConfig configures the layer server.
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
	v.SetEnvPrefix("WILDFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workspace.name", "wildfire_output.db")
	v.SetDefault("workspace.concurrency", 0)
	v.SetDefault("inputs.events", "")
	v.SetDefault("inputs.regions", "")
	v.SetDefault("inputs.ownership", "")
	v.SetDefault("region.predicate", "")
	v.SetDefault("region.view", enrich.DefaultViewName)
	v.SetDefault("buffer.distances_km", enrich.DefaultDistancesKM)
	v.SetDefault("buffer.segments", 64)
	v.SetDefault("buffer.prefix", enrich.DefaultPrefix)
	v.SetDefault("join.operation", string(engine.JoinOneToOne))
	v.SetDefault("join.category_field", enrich.DefaultCategoryField)
	v.SetDefault("join.default_category", enrich.NotInPADUS)
	v.SetDefault("export.dir", "output")
	v.SetDefault("export.formats", []string{string(export.FormatCSV)})
	v.SetDefault("present.manifest", "map.yaml")
	v.SetDefault("present.layer_file", enrich.DefaultLayerFile)
	v.SetDefault("present.database_url", "")
	v.SetDefault("present.schema", "wildfire")
	v.SetDefault("fetch.cache_dir", ".cache/wildfire")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.retries", 3)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
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

// WorkspaceDir returns the directory holding the workspace database.
func (c *Config) WorkspaceDir() string {
	if c.Workspace.Dir != "" {
		return c.Workspace.Dir
	}
	return c.Export.Dir
}

// ExportFormats parses the configured export formats.
func (c *Config) ExportFormats() ([]export.Format, error) {
	formats := make([]export.Format, 0, len(c.Export.Formats))
	for _, s := range c.Export.Formats {
		f, err := export.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		formats = append(formats, f)
	}
	return formats, nil
}

// Validate reports every configuration error for a pipeline run at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(msg string) { problems = append(problems, msg) }

	if c.Inputs.Events == "" {
		add("inputs.events is required")
	}
	if c.Inputs.Regions == "" {
		add("inputs.regions is required")
	}
	if c.Inputs.Ownership == "" {
		add("inputs.ownership is required")
	}
	if strings.TrimSpace(c.Region.Predicate) == "" {
		add("region.predicate is required")
	}
	if c.Export.Dir == "" {
		add("export.dir is required")
	}
	if _, err := enrich.PlanTiers(c.Buffer.Prefix, c.Buffer.DistancesKM); err != nil {
		add("buffer.distances_km: " + err.Error())
	}
	if c.Buffer.Segments != 0 && c.Buffer.Segments < 3 {
		add("buffer.segments must be at least 3")
	}
	if _, err := engine.ParseJoinOperation(c.Join.Operation); err != nil {
		add("join.operation: " + err.Error())
	}
	if len(c.Export.Formats) == 0 {
		add("export.formats must name at least one format")
	}
	if _, err := c.ExportFormats(); err != nil {
		add("export.formats: " + err.Error())
	}
	if err := c.Store.validate(); err != nil {
		add(err.Error())
	}
	if c.Monitor.FailureRateThreshold < 0 || c.Monitor.FailureRateThreshold > 1 {
		add("monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "console" {
		add("log.format must be json or console")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case "", "sqlite":
		return nil
	case "postgres":
		if s.DatabaseURL == "" {
			return eris.New("store.database_url is required for the postgres driver")
		}
		return nil
	default:
		return eris.Errorf("store.driver must be sqlite or postgres, got %q", s.Driver)
	}
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
