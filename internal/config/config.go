// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/oceanprotocol/pdr-utils/internal/models"
	"github.com/oceanprotocol/pdr-utils/internal/subgraph"
	"github.com/oceanprotocol/pdr-utils/pkg/utils"
)

// MaxPageSize is the hard page limit of the subgraph service
const MaxPageSize = subgraph.MaxPageSize

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Subgraph  SubgraphConfig  `mapstructure:"subgraph"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Refresher RefresherConfig `mapstructure:"refresher"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// SubgraphConfig contains subgraph discovery configuration
type SubgraphConfig struct {
	URL               string        `mapstructure:"url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	PageSize          int           `mapstructure:"page_size"`
	OwnerAddrsList    string        `mapstructure:"owner_addrs"`         // comma separated
	DefaultOwnerAddrs []string      `mapstructure:"default_owner_addrs"` // always allowed
	PairFilter        string        `mapstructure:"pair_filter"`         // comma separated
	TimeframeFilter   string        `mapstructure:"timeframe_filter"`    // comma separated
	SourceFilter      string        `mapstructure:"source_filter"`       // comma separated
}

// RPCConfig contains JSON-RPC node configuration
type RPCConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	ReceiptPoll    time.Duration `mapstructure:"receipt_poll"`
}

// WalletConfig contains the signing key and contract artifacts location
type WalletConfig struct {
	PrivateKey  string `mapstructure:"private_key"`
	AddressFile string `mapstructure:"address_file"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// RefresherConfig contains periodic discovery configuration
type RefresherConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"` // cron spec
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NotifyConfig contains the contract change webhook configuration
type NotifyConfig struct {
	WebhookURL    string            `mapstructure:"webhook_url"` // empty disables notifications
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	RetryAttempts int               `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration     `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("PDR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Variable names shared with the rest of the predictoor tooling
	v.BindEnv("subgraph.url", "SUBGRAPH_URL", "PDR_SUBGRAPH_URL")
	v.BindEnv("subgraph.owner_addrs", "OWNER_ADDRS", "PDR_SUBGRAPH_OWNER_ADDRS")
	v.BindEnv("subgraph.pair_filter", "PAIR_FILTER", "PDR_SUBGRAPH_PAIR_FILTER")
	v.BindEnv("subgraph.timeframe_filter", "TIMEFRAME_FILTER", "PDR_SUBGRAPH_TIMEFRAME_FILTER")
	v.BindEnv("subgraph.source_filter", "SOURCE_FILTER", "PDR_SUBGRAPH_SOURCE_FILTER")
	v.BindEnv("rpc.node_url", "RPC_URL", "PDR_RPC_NODE_URL")
	v.BindEnv("wallet.private_key", "PRIVATE_KEY", "PDR_WALLET_PRIVATE_KEY")
	v.BindEnv("wallet.address_file", "ADDRESS_FILE", "PDR_WALLET_ADDRESS_FILE")
	v.BindEnv("storage.connection_string", "DATABASE_URL", "PDR_STORAGE_CONNECTION_STRING")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "pdr-utils")
	v.SetDefault("app.version", "0.1.0")
	v.SetDefault("app.environment", "development")

	// Subgraph defaults
	v.SetDefault("subgraph.url", "")
	v.SetDefault("subgraph.request_timeout", "1500ms")
	v.SetDefault("subgraph.page_size", MaxPageSize)
	v.SetDefault("subgraph.owner_addrs", "")
	v.SetDefault("subgraph.default_owner_addrs", []string{})
	v.SetDefault("subgraph.pair_filter", "")
	v.SetDefault("subgraph.timeframe_filter", "")
	v.SetDefault("subgraph.source_filter", "")

	// RPC defaults
	v.SetDefault("rpc.node_url", "")
	v.SetDefault("rpc.chain_id", 0) // 0 asks the node
	v.SetDefault("rpc.request_timeout", "30s")
	v.SetDefault("rpc.retry_attempts", 3)
	v.SetDefault("rpc.retry_delay", "2s")
	v.SetDefault("rpc.receipt_poll", "1s")

	// Wallet defaults
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.address_file", "")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/contracts.db")
	v.SetDefault("storage.max_connections", 10)
	v.SetDefault("storage.max_idle_time", "15m")

	// Refresher defaults
	v.SetDefault("refresher.enabled", true)
	v.SetDefault("refresher.schedule", "@every 5m")
	v.SetDefault("refresher.cache_ttl", "10m")

	// Notification defaults
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.retry_attempts", 3)
	v.SetDefault("notify.retry_delay", "1s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Subgraph.URL == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Subgraph URL is required", "set SUBGRAPH_URL")
	}
	if c.Subgraph.PageSize <= 0 || c.Subgraph.PageSize > MaxPageSize {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid subgraph page size",
			fmt.Sprintf("must be within 1..%d, got %d", MaxPageSize, c.Subgraph.PageSize))
	}
	if c.Subgraph.RequestTimeout <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Subgraph request timeout must be positive", "")
	}
	if c.Wallet.PrivateKey != "" && !strings.HasPrefix(c.Wallet.PrivateKey, "0x") {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Private key must start with 0x hex prefix", "")
	}
	if c.Notify.WebhookURL != "" && !strings.HasPrefix(c.Notify.WebhookURL, "http") {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Webhook URL must be http(s)", c.Notify.WebhookURL)
	}
	switch strings.ToLower(c.Storage.Type) {
	case "sqlite", "postgres", "postgresql":
	default:
		return utils.NewAppError(utils.ErrCodeConfiguration, "Unsupported storage type", c.Storage.Type)
	}
	return nil
}

// ValidateChain checks the settings needed to talk to contracts
func (c *Config) ValidateChain() error {
	if c.RPC.NodeURL == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "RPC URL is required", "set RPC_URL")
	}
	if c.Wallet.PrivateKey == "" {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Private key is required", "set PRIVATE_KEY")
	}
	return nil
}

// OwnerAddrs returns the owner allow-list: the configured defaults followed by
// the OWNER_ADDRS entries, without duplicates.
func (s *SubgraphConfig) OwnerAddrs() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(s.DefaultOwnerAddrs))

	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, addr := range s.DefaultOwnerAddrs {
		add(addr)
	}
	for _, addr := range utils.SplitList(s.OwnerAddrsList) {
		add(addr)
	}
	return out
}

// FilterSpec builds the metadata filter from the pair/timeframe/source lists.
// Every value is hex encoded the same way the values are stored on-chain.
func (s *SubgraphConfig) FilterSpec() models.FilterSpec {
	return models.FilterSpec{
		models.FilterCategoryPair:      utils.HexifyList(s.PairFilter),
		models.FilterCategoryTimeframe: utils.HexifyList(s.TimeframeFilter),
		models.FilterCategorySource:    utils.HexifyList(s.SourceFilter),
	}
}
