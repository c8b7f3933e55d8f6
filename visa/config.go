package visa

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Operation backends. BackendLocal runs the operations against Store;
// the others forward them to BackendURL.
const (
	BackendLocal = "local"
	BackendREST  = "rest"
	BackendRPC   = "rpc"
)

// Config is a configuration for the payment service and its admin tool.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	ISO8583Addr string `mapstructure:"iso8583_addr"`

	Store      string         `mapstructure:"store"`
	DBDSN      string         `mapstructure:"db_dsn"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	DynamoDB   DynamoDBConfig `mapstructure:"dynamodb"`

	Backend    string `mapstructure:"backend"`
	BackendURL string `mapstructure:"backend_url"`

	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	LogLevel       string        `mapstructure:"log_level"`
	MetricsEnabled bool          `mapstructure:"metrics_enabled"`

	// Card generation for visa-admin.
	BINPrefix    string         `mapstructure:"bin_prefix"`
	CardProduct  string         `mapstructure:"card_product"`
	ProductYears map[string]int `mapstructure:"product_years"`
	AuthKey      string         `mapstructure:"auth_key"`
}

type DynamoDBConfig struct {
	Region   string `mapstructure:"region"`
	Table    string `mapstructure:"table"`
	Endpoint string `mapstructure:"endpoint"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:    "localhost:8080",
		ISO8583Addr: "localhost:8583",
		Store:       StoreMemory,
		SQLitePath:  "visa.db",
		DynamoDB: DynamoDBConfig{
			Region: "us-east-1",
			Table:  "visa",
		},
		Backend:        BackendLocal,
		SessionTTL:     30 * time.Minute,
		LogLevel:       "info",
		MetricsEnabled: true,
		BINPrefix:      "421234",
		CardProduct:    "debit",
		ProductYears:   map[string]int{"credit": 3, "debit": 5},
	}
}

// LoadConfig layers, lowest first: defaults, the YAML file at path (or
// $VISA_CONFIG when path is empty), and VISA_* environment variables such
// as VISA_HTTP_ADDR or VISA_DYNAMODB_TABLE.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("iso8583_addr", def.ISO8583Addr)
	v.SetDefault("store", def.Store)
	v.SetDefault("db_dsn", def.DBDSN)
	v.SetDefault("sqlite_path", def.SQLitePath)
	v.SetDefault("dynamodb.region", def.DynamoDB.Region)
	v.SetDefault("dynamodb.table", def.DynamoDB.Table)
	v.SetDefault("dynamodb.endpoint", def.DynamoDB.Endpoint)
	v.SetDefault("backend", def.Backend)
	v.SetDefault("backend_url", def.BackendURL)
	v.SetDefault("session_ttl", def.SessionTTL)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)
	v.SetDefault("bin_prefix", def.BINPrefix)
	v.SetDefault("card_product", def.CardProduct)
	v.SetDefault("product_years", def.ProductYears)
	v.SetDefault("auth_key", def.AuthKey)

	v.SetEnvPrefix("VISA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("VISA_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings a backend needs before anything is opened.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
	case BackendREST, BackendRPC:
		if c.BackendURL == "" {
			return fmt.Errorf("backend_url is required for %s backend", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unsupported backend %q", c.Backend)
	}

	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("db_dsn is required for postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for sqlite store")
		}
	case StoreDynamoDB:
		if c.DynamoDB.Table == "" {
			return fmt.Errorf("dynamodb.table is required for dynamodb store")
		}
	default:
		return fmt.Errorf("unsupported store %q", c.Store)
	}
	return nil
}
