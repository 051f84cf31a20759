package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Backends the invoice store can run on.
const (
	BackendDynamoDB = "dynamodb"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config holds all service configuration.
type Config struct {
	App            AppConfig
	Log            LogConfig
	Store          StoreConfig
	Queue          QueueConfig
	WebSocket      WebSocketConfig
	Engine         EngineConfig
	Reconciliation ReconciliationConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// StoreConfig selects the invoice store backend and its connection settings.
type StoreConfig struct {
	Backend          string
	InvoicesTable    string
	PaymentsTable    string
	ConnectionsTable string
	MongoURI         string
	MongoDatabase    string
}

// QueueConfig holds the SQS queue used for scheduled settlements. An empty URL disables scheduling.
type QueueConfig struct {
	URL string
}

// WebSocketConfig holds the API Gateway management endpoint used to push progress.
// An empty endpoint disables publishing.
type WebSocketConfig struct {
	Endpoint string
}

// EngineConfig bounds each consolidation run.
type EngineConfig struct {
	PageSize       int
	MaxPages       int
	MaxInvoices    int
	MaxSearchUnits int
}

type ReconciliationConfig struct {
	BatchSize int
}

// Load reads configuration from SETTLE_ prefixed environment variables
// (e.g. SETTLE_STORE_INVOICES_TABLE), then applies defaults and validates.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Store: StoreConfig{
			Backend:          strings.ToLower(v.GetString("store.backend")),
			InvoicesTable:    v.GetString("store.invoices_table"),
			PaymentsTable:    v.GetString("store.payments_table"),
			ConnectionsTable: v.GetString("store.connections_table"),
			MongoURI:         v.GetString("store.mongo_uri"),
			MongoDatabase:    v.GetString("store.mongo_database"),
		},
		Queue: QueueConfig{
			URL: v.GetString("queue.url"),
		},
		WebSocket: WebSocketConfig{
			Endpoint: v.GetString("websocket.endpoint"),
		},
		Engine: EngineConfig{
			PageSize:       v.GetInt("engine.page_size"),
			MaxPages:       v.GetInt("engine.max_pages"),
			MaxInvoices:    v.GetInt("engine.max_invoices"),
			MaxSearchUnits: v.GetInt("engine.max_search_units"),
		},
		Reconciliation: ReconciliationConfig{
			BatchSize: v.GetInt("reconciliation.batch_size"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invoice-settlement"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
		if cfg.App.Env == "development" {
			cfg.Log.Format = "console"
		}
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendDynamoDB
	}
	if cfg.Store.MongoDatabase == "" {
		cfg.Store.MongoDatabase = "settlement"
	}
	if cfg.Engine.PageSize == 0 {
		cfg.Engine.PageSize = 5
	}
	if cfg.Engine.MaxPages == 0 {
		cfg.Engine.MaxPages = 40
	}
	if cfg.Engine.MaxInvoices == 0 {
		cfg.Engine.MaxInvoices = 200
	}
	if cfg.Engine.MaxSearchUnits == 0 {
		cfg.Engine.MaxSearchUnits = 200000
	}
	if cfg.Reconciliation.BatchSize == 0 {
		cfg.Reconciliation.BatchSize = 100
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.InvoicesTable == "" || c.Store.PaymentsTable == "" {
			return fmt.Errorf("store.invoices_table and store.payments_table are required for the dynamodb backend")
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("store.mongo_uri is required for the mongo backend")
		}
	case BackendMemory:
		if c.App.Env == "production" {
			return fmt.Errorf("the memory backend cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if c.Engine.PageSize < 0 || c.Engine.MaxPages < 0 || c.Engine.MaxInvoices < 0 || c.Engine.MaxSearchUnits < 0 {
		return fmt.Errorf("engine limits must be positive")
	}
	if c.Engine.MaxInvoices < c.Engine.PageSize {
		return fmt.Errorf("engine.max_invoices (%d) cannot be smaller than engine.page_size (%d)",
			c.Engine.MaxInvoices, c.Engine.PageSize)
	}
	if c.Reconciliation.BatchSize < 0 {
		return fmt.Errorf("reconciliation.batch_size cannot be negative")
	}
	return nil
}
