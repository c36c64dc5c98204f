package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"SignalView/pkg/util"
)

// Source kinds.
const (
	SourceDelta      = "delta"
	SourceListing    = "listing"
	SourceClickHouse = "clickhouse"
)

// Storage backends for object based sources.
const (
	StorageAzure = "azure"
	StorageLocal = "local"
)

// ErrInvalid marks configuration errors detected before any fetch.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Source   SourceConfig   `yaml:"source"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Signals  struct {
		BuyThreshold  float64 `yaml:"buy_threshold" default:"0.60" validate:"gte=0,lte=1"`
		SellThreshold float64 `yaml:"sell_threshold" default:"0.40" validate:"gte=0,lte=1"`
	} `yaml:"signals"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		Table            string        `yaml:"table"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"signalview"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled    bool          `yaml:"enabled"`
		Brokers    []string      `yaml:"brokers"`
		Topic      string        `yaml:"topic" default:"predictions.commits"`
		GroupID    string        `yaml:"group_id" default:"signalview"`
		FromStart  bool          `yaml:"from_beginning"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		BufferSize int           `yaml:"buffer_size" default:"16"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
	} `yaml:"kafka"`
	Stream struct {
		Interval time.Duration `yaml:"interval" default:"30s"`
	} `yaml:"stream"`
}

// SourceConfig describes where predictions live. It is turned into a
// models.SourceDescriptor by the DI layer.
type SourceConfig struct {
	Kind           string   `yaml:"kind" default:"delta" validate:"oneof=delta listing clickhouse"`
	Name           string   `yaml:"name" default:"predictions" validate:"required"`
	Storage        string   `yaml:"storage" default:"azure" validate:"oneof=azure local"`
	Account        string   `yaml:"account"`
	AccountKey     string   `yaml:"account_key"`
	Container      string   `yaml:"container" default:"datalake"`
	Prefix         string   `yaml:"prefix"`
	LocalRoot      string   `yaml:"local_root" default:"data"`
	OrderingColumn string   `yaml:"ordering_column" default:"event_time_ts" validate:"required"`
	Columns        []string `yaml:"columns"`
	FileExtension  string   `yaml:"file_extension" default:".parquet"`
	LogDir         string   `yaml:"log_dir" default:"_delta_log"`
}

type SnapshotConfig struct {
	RowCap                 int           `yaml:"row_cap" default:"2000"`
	Lookback               time.Duration `yaml:"lookback"`
	CacheTTL               time.Duration `yaml:"cache_ttl" default:"30s"`
	FileBudget             int           `yaml:"file_budget" default:"50"`
	FileBudgetWithLookback int           `yaml:"file_budget_with_lookback" default:"100"`
	FetchTimeout           time.Duration `yaml:"fetch_timeout" default:"20s"`
	TrustWriteOrder        bool          `yaml:"trust_write_order"`
	DisplayRows            int           `yaml:"display_rows" default:"50"`
}

// DefaultColumns is the logical schema of the predictions table.
var DefaultColumns = []string{
	"symbol", "interval", "event_time_ts", "proba_up", "pred_up", "model_run_id", "scoring_time",
}

var validate = validator.New()

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	c.Source.Columns = append([]string(nil), DefaultColumns...)
	return &c
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	c.Source.Columns = nil
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Source.Columns) == 0 {
		c.Source.Columns = append([]string(nil), DefaultColumns...)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A missing file is tolerated so that a pure env deployment works.
func LoadWithEnv(path string) (*Config, error) {
	var c *Config
	if _, statErr := os.Stat(path); statErr == nil {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	} else {
		c = Default()
	}

	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment lookup function.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("SOURCE_KIND"); v != "" {
		c.Source.Kind = v
	}
	if v := getenv("STORAGE_ACCOUNT"); v != "" {
		c.Source.Account = v
	}
	if v := getenv("CONTAINER"); v != "" {
		c.Source.Container = v
	}
	if v := getenv("PARQUET_PREFIX"); v != "" {
		c.Source.Prefix = v
		if getenv("SOURCE_KIND") == "" {
			c.Source.Kind = SourceListing
		}
	}
	if v := getenv("PRED_DELTA_PATH"); v != "" {
		container, prefix := SplitDeltaPath(v)
		if container != "" {
			c.Source.Container = container
		}
		c.Source.Prefix = prefix
		if getenv("SOURCE_KIND") == "" {
			c.Source.Kind = SourceDelta
		}
	}
	c.Signals.BuyThreshold = util.ParseFloatDefault(getenv("PROBA_BUY"), c.Signals.BuyThreshold)
	c.Signals.SellThreshold = util.ParseFloatDefault(getenv("PROBA_SELL"), c.Signals.SellThreshold)
	c.Snapshot.RowCap = util.ParseIntDefault(getenv("N_ROWS"), c.Snapshot.RowCap)
	if h := util.ParseIntDefault(getenv("LOOKBACK_HOURS"), -1); h >= 0 {
		c.Snapshot.Lookback = time.Duration(h) * time.Hour
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			c.Redis.Port = util.ParseIntDefault(port, c.Redis.Port)
		}
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
}

// SplitDeltaPath turns "az://container/some/prefix" into ("container", "some/prefix").
func SplitDeltaPath(p string) (string, string) {
	for _, scheme := range []string{"az://", "abfs://", "abfss://"} {
		if strings.HasPrefix(p, scheme) {
			rest := strings.TrimPrefix(p, scheme)
			container, prefix, _ := strings.Cut(rest, "/")
			// abfs form: container@account.dfs.core.windows.net
			container, _, _ = strings.Cut(container, "@")
			return container, strings.Trim(prefix, "/")
		}
	}
	return "", strings.Trim(p, "/")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Signals.SellThreshold >= c.Signals.BuyThreshold {
		return fmt.Errorf("%w: signals.sell_threshold (%.2f) must be below signals.buy_threshold (%.2f)",
			ErrInvalid, c.Signals.SellThreshold, c.Signals.BuyThreshold)
	}
	if c.Snapshot.RowCap <= 0 {
		return fmt.Errorf("%w: snapshot.row_cap must be positive, got %d", ErrInvalid, c.Snapshot.RowCap)
	}
	if c.Snapshot.FileBudget <= 0 || c.Snapshot.FileBudgetWithLookback <= 0 {
		return fmt.Errorf("%w: snapshot file budgets must be positive", ErrInvalid)
	}
	if c.Snapshot.Lookback < 0 {
		return fmt.Errorf("%w: snapshot.lookback cannot be negative", ErrInvalid)
	}
	if c.Snapshot.CacheTTL <= 0 {
		return fmt.Errorf("%w: snapshot.cache_ttl must be positive", ErrInvalid)
	}
	if !contains(c.Source.Columns, c.Source.OrderingColumn) {
		return fmt.Errorf("%w: source.columns must include ordering column %q", ErrInvalid, c.Source.OrderingColumn)
	}
	switch c.Source.Kind {
	case SourceDelta, SourceListing:
		if c.Source.Storage == StorageAzure && (c.Source.Account == "" || c.Source.Container == "") {
			return fmt.Errorf("%w: source.account and source.container are required for azure storage", ErrInvalid)
		}
	case SourceClickHouse:
		if c.ClickHouse.Host == "" || c.ClickHouse.Table == "" {
			return fmt.Errorf("%w: clickhouse.host and clickhouse.table are required", ErrInvalid)
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers cannot be empty when kafka is enabled", ErrInvalid)
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
