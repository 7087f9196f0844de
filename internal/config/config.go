// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/dexkeep/keeperbot/internal/apperror"
)

// Config holds all keeper configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Account   AccountConfig   `mapstructure:"account"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Arbitrage ArbitrageConfig `mapstructure:"arbitrage"`
	Maker     MakerConfig     `mapstructure:"maker"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// ChainConfig holds chain node and contract configuration.
type ChainConfig struct {
	WebSocketURL   string        `mapstructure:"websocket_url"`
	HTTPURL        string        `mapstructure:"http_url"`
	ChainID        uint64        `mapstructure:"chain_id"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	ConfirmPollInterval time.Duration `mapstructure:"confirm_poll_interval"`

	// Contract addresses of the on-chain primitives the keepers drive.
	ExchangeAddress string `mapstructure:"exchange_address"` // order book DEX
	VaultAddress    string `mapstructure:"vault_address"`    // collateral vault engine
	PoolAddress     string `mapstructure:"pool_address"`     // fixed-rate mint/redeem pool
	OracleAddress   string `mapstructure:"oracle_address"`   // reference price oracle
	BatchAddress    string `mapstructure:"batch_address"`    // batching executor (atomic mode)

	// System asset symbols, resolved against the asset registry.
	StablecoinSymbol string `mapstructure:"stablecoin_symbol"`
	CollateralSymbol string `mapstructure:"collateral_symbol"`

	// Tokens to register with the asset registry at boot. Entries win
	// over the built-in mainnet list on symbol collisions, so a config
	// can re-point a symbol on any chain.
	Tokens []TokenConfig `mapstructure:"tokens"`

	// Gas pricing strategy: node | fixed | increasing.
	GasStrategy      string        `mapstructure:"gas_strategy"`
	GasPriceWei      int64         `mapstructure:"gas_price_wei"`
	GasInitialWei    int64         `mapstructure:"gas_initial_wei"`
	GasIncreaseWei   int64         `mapstructure:"gas_increase_wei"`
	GasIncreaseEvery time.Duration `mapstructure:"gas_increase_every"`
	GasMaxWei        int64         `mapstructure:"gas_max_wei"`
}

// ExchangeAddressHex returns the exchange address as common.Address.
func (c *ChainConfig) ExchangeAddressHex() common.Address {
	return common.HexToAddress(c.ExchangeAddress)
}

// VaultAddressHex returns the vault engine address as common.Address.
func (c *ChainConfig) VaultAddressHex() common.Address {
	return common.HexToAddress(c.VaultAddress)
}

// PoolAddressHex returns the mint/redeem pool address as common.Address.
func (c *ChainConfig) PoolAddressHex() common.Address {
	return common.HexToAddress(c.PoolAddress)
}

// OracleAddressHex returns the oracle address as common.Address.
func (c *ChainConfig) OracleAddressHex() common.Address {
	return common.HexToAddress(c.OracleAddress)
}

// BatchAddressHex returns the batching executor address as common.Address.
func (c *ChainConfig) BatchAddressHex() common.Address {
	return common.HexToAddress(c.BatchAddress)
}

// TokenConfig describes one token for the asset registry.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Name     string `mapstructure:"name"`
	Address  string `mapstructure:"address"`
	Decimals uint8  `mapstructure:"decimals"`
}

// AddressHex returns the token contract address as common.Address.
func (t *TokenConfig) AddressHex() common.Address {
	return common.HexToAddress(t.Address)
}

// AccountConfig identifies the operating account. PrivateKey is
// required for keepers that submit transactions; read-only tooling may
// leave it empty.
type AccountConfig struct {
	Address    string `mapstructure:"address"`
	PrivateKey string `mapstructure:"private_key"`
}

// AddressHex returns the account address as common.Address.
func (c *AccountConfig) AddressHex() common.Address {
	return common.HexToAddress(c.Address)
}

// FeedConfig holds the external price feed configuration.
type FeedConfig struct {
	HTTPURL      string        `mapstructure:"http_url"`
	WebSocketURL string        `mapstructure:"websocket_url"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`

	// Symbols the feed client subscribes to, e.g. "WETHUSD".
	Symbols []string `mapstructure:"symbols"`
	// QuoteSymbol is the currency the feed quotes in.
	QuoteSymbol string `mapstructure:"quote_symbol"`
	// TargetPrice converts feed quotes into stablecoin terms: it is the
	// feed currency price of one stablecoin (the system's target price).
	TargetPrice float64 `mapstructure:"target_price"`
}

// Enabled reports whether any feed endpoint is configured.
func (c *FeedConfig) Enabled() bool {
	return c.HTTPURL != "" || c.WebSocketURL != ""
}

// TargetPriceDecimal returns the target price as a decimal, defaulting to 1.
func (c *FeedConfig) TargetPriceDecimal() decimal.Decimal {
	if c.TargetPrice <= 0 {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(c.TargetPrice)
}

// ArbitrageConfig holds arbitrage keeper configuration.
type ArbitrageConfig struct {
	BaseAsset     string   `mapstructure:"base_asset"`
	Pairs         []string `mapstructure:"pairs"`
	MinProfit     float64  `mapstructure:"min_profit"`
	MaxEngagement float64  `mapstructure:"max_engagement"`
	Mode          string   `mapstructure:"mode"` // sequential | atomic
}

// MinProfitDecimal returns the minimum profit threshold in base asset units.
func (c *ArbitrageConfig) MinProfitDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfit)
}

// MaxEngagementDecimal returns the maximum entry amount in base asset units.
func (c *ArbitrageConfig) MaxEngagementDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxEngagement)
}

// BandConfig describes one order band for a (pair, side) combination.
type BandConfig struct {
	Pair      string  `mapstructure:"pair"`
	Side      string  `mapstructure:"side"` // buy | sell
	MinAmount float64 `mapstructure:"min_amount"`
	MaxAmount float64 `mapstructure:"max_amount"`
	MinMargin float64 `mapstructure:"min_margin"`
	AvgMargin float64 `mapstructure:"avg_margin"`
	MaxMargin float64 `mapstructure:"max_margin"`
}

// MinAmountDecimal returns the band's minimum total amount.
func (b *BandConfig) MinAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(b.MinAmount)
}

// MaxAmountDecimal returns the band's maximum total amount.
func (b *BandConfig) MaxAmountDecimal() decimal.Decimal {
	return decimal.NewFromFloat(b.MaxAmount)
}

// MinMarginDecimal returns the band's minimum margin.
func (b *BandConfig) MinMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(b.MinMargin)
}

// AvgMarginDecimal returns the band's target margin for new orders.
func (b *BandConfig) AvgMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(b.AvgMargin)
}

// MaxMarginDecimal returns the band's maximum margin.
func (b *BandConfig) MaxMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(b.MaxMargin)
}

// MakerConfig holds market-maker keeper configuration.
type MakerConfig struct {
	Bands       []BandConfig `mapstructure:"bands"`
	RoundPlaces int32        `mapstructure:"round_places"`
}

// VaultConfig holds bite/top-up keeper configuration.
type VaultConfig struct {
	MinTopUpMargin    float64 `mapstructure:"min_top_up_margin"`
	TargetTopUpMargin float64 `mapstructure:"target_top_up_margin"`
}

// MinTopUpMarginDecimal returns the ratio slack below which a cup is topped up.
func (c *VaultConfig) MinTopUpMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinTopUpMargin)
}

// TargetTopUpMarginDecimal returns the ratio slack a top-up aims for.
func (c *VaultConfig) TargetTopUpMarginDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TargetTopUpMargin)
}

// LoopConfig holds the strategy loop cadence.
type LoopConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	MaxErrors int           `mapstructure:"max_errors"`
}

// JournalConfig holds the optional trade journal settings.
type JournalConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DatabaseURL string `mapstructure:"database_url"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"service_name"`
	TraceProvider  string            `mapstructure:"trace_provider"`
	OTLPEndpoint   string            `mapstructure:"otlp_endpoint"`
	OTLPHeaders    map[string]string `mapstructure:"otlp_headers"`
	PrometheusPort int               `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads the yaml config file and applies KEEPER_* environment
// overrides on top. Validation failures are fatal here rather than at
// first use.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("KEEPER")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No file is fine, env vars alone can carry a deployment.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "invalid configuration")
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "KEEPER_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "KEEPER_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "KEEPER_LOG_LEVEL", "LOG_LEVEL")

	// Chain
	v.BindEnv("chain.websocket_url", "KEEPER_CHAIN_WS_URL", "ETH_WS_URL")
	v.BindEnv("chain.http_url", "KEEPER_CHAIN_HTTP_URL", "ETH_HTTP_URL")
	v.BindEnv("chain.chain_id", "KEEPER_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("chain.exchange_address", "KEEPER_EXCHANGE_ADDRESS")
	v.BindEnv("chain.vault_address", "KEEPER_VAULT_ADDRESS")
	v.BindEnv("chain.pool_address", "KEEPER_POOL_ADDRESS")
	v.BindEnv("chain.oracle_address", "KEEPER_ORACLE_ADDRESS")
	v.BindEnv("chain.batch_address", "KEEPER_BATCH_ADDRESS")
	v.BindEnv("chain.gas_strategy", "KEEPER_GAS_STRATEGY")
	v.BindEnv("chain.gas_price_wei", "KEEPER_GAS_PRICE_WEI")

	// Account
	v.BindEnv("account.address", "KEEPER_ACCOUNT_ADDRESS", "ETH_FROM")
	v.BindEnv("account.private_key", "KEEPER_PRIVATE_KEY", "ETH_PRIVATE_KEY")

	// Feed
	v.BindEnv("feed.http_url", "KEEPER_FEED_HTTP_URL")
	v.BindEnv("feed.websocket_url", "KEEPER_FEED_WS_URL")
	v.BindEnv("feed.symbols", "KEEPER_FEED_SYMBOLS")
	v.BindEnv("feed.quote_symbol", "KEEPER_FEED_QUOTE_SYMBOL")
	v.BindEnv("feed.target_price", "KEEPER_FEED_TARGET_PRICE")

	// Arbitrage
	v.BindEnv("arbitrage.base_asset", "KEEPER_BASE_ASSET")
	v.BindEnv("arbitrage.min_profit", "KEEPER_MIN_PROFIT")
	v.BindEnv("arbitrage.max_engagement", "KEEPER_MAX_ENGAGEMENT")
	v.BindEnv("arbitrage.mode", "KEEPER_EXECUTION_MODE")

	// Loop
	v.BindEnv("loop.interval", "KEEPER_LOOP_INTERVAL")
	v.BindEnv("loop.max_errors", "KEEPER_MAX_ERRORS")

	// Journal
	v.BindEnv("journal.enabled", "KEEPER_JOURNAL_ENABLED")
	v.BindEnv("journal.database_url", "KEEPER_JOURNAL_DATABASE_URL", "DATABASE_URL")

	// Telemetry
	v.BindEnv("telemetry.enabled", "KEEPER_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "KEEPER_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.trace_provider", "KEEPER_OTEL_TRACE_PROVIDER")
	v.BindEnv("telemetry.otlp_endpoint", "KEEPER_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "keeperbot")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	// Chain defaults
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.max_reconnects", 0) // infinite
	v.SetDefault("chain.initial_backoff", "1s")
	v.SetDefault("chain.max_backoff", "30s")
	v.SetDefault("chain.rate_limit_rps", 20)
	v.SetDefault("chain.rate_limit_burst", 40)
	v.SetDefault("chain.confirmation_timeout", "4m")
	v.SetDefault("chain.confirm_poll_interval", "2s")
	v.SetDefault("chain.gas_strategy", "node")
	v.SetDefault("chain.gas_max_wei", 500_000_000_000) // 500 gwei
	v.SetDefault("chain.stablecoin_symbol", "DAI")
	v.SetDefault("chain.collateral_symbol", "PETH")

	// Feed defaults
	v.SetDefault("feed.stale_timeout", "30s")
	v.SetDefault("feed.quote_symbol", "USD")
	v.SetDefault("feed.target_price", 1.0)

	// Arbitrage defaults
	v.SetDefault("arbitrage.base_asset", "DAI")
	v.SetDefault("arbitrage.pairs", []string{"WETH-DAI"})
	v.SetDefault("arbitrage.min_profit", 1)
	v.SetDefault("arbitrage.max_engagement", 1000)
	v.SetDefault("arbitrage.mode", "sequential")

	// Maker defaults
	v.SetDefault("maker.round_places", 2)

	// Loop defaults
	v.SetDefault("loop.interval", "15s")
	v.SetDefault("loop.max_errors", 100)

	// Journal defaults
	v.SetDefault("journal.enabled", false)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "keeperbot")
	v.SetDefault("telemetry.trace_provider", "otlp_grpc")
	v.SetDefault("telemetry.prometheus_port", 9090)

	// Health defaults
	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration. Violations are configuration
// errors and fatal at startup.
func (c *Config) Validate() error {
	if c.Chain.HTTPURL == "" {
		return fmt.Errorf("chain.http_url is required")
	}
	if c.Account.Address != "" && !common.IsHexAddress(c.Account.Address) {
		return fmt.Errorf("invalid account.address: %s", c.Account.Address)
	}
	if c.Account.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(c.Account.PrivateKey, "0x"))
		if err != nil {
			return fmt.Errorf("invalid account.private_key: %w", err)
		}
		derived := crypto.PubkeyToAddress(key.PublicKey)
		if c.Account.Address == "" {
			c.Account.Address = derived.Hex()
		} else if derived != c.Account.AddressHex() {
			return fmt.Errorf("account.address %s does not match account.private_key", c.Account.Address)
		}
	}

	for _, addr := range []struct {
		name  string
		value string
	}{
		{"chain.exchange_address", c.Chain.ExchangeAddress},
		{"chain.vault_address", c.Chain.VaultAddress},
		{"chain.pool_address", c.Chain.PoolAddress},
		{"chain.oracle_address", c.Chain.OracleAddress},
		{"chain.batch_address", c.Chain.BatchAddress},
	} {
		if addr.value != "" && !common.IsHexAddress(addr.value) {
			return fmt.Errorf("invalid %s: %s", addr.name, addr.value)
		}
	}

	for i, tok := range c.Chain.Tokens {
		if tok.Symbol == "" {
			return fmt.Errorf("chain.tokens[%d]: symbol is required", i)
		}
		if !common.IsHexAddress(tok.Address) {
			return fmt.Errorf("chain.tokens[%d] (%s): invalid address %q", i, tok.Symbol, tok.Address)
		}
		if tok.Decimals > 30 {
			return fmt.Errorf("chain.tokens[%d] (%s): decimals out of range", i, tok.Symbol)
		}
	}

	switch c.Chain.GasStrategy {
	case "node":
	case "fixed":
		if c.Chain.GasPriceWei <= 0 {
			return fmt.Errorf("chain.gas_price_wei must be positive for fixed gas strategy")
		}
	case "increasing":
		if c.Chain.GasInitialWei <= 0 || c.Chain.GasIncreaseWei <= 0 || c.Chain.GasIncreaseEvery <= 0 {
			return fmt.Errorf("increasing gas strategy requires gas_initial_wei, gas_increase_wei and gas_increase_every")
		}
	default:
		return fmt.Errorf("unknown chain.gas_strategy: %s", c.Chain.GasStrategy)
	}

	switch c.Arbitrage.Mode {
	case "sequential":
	case "atomic":
		if c.Chain.BatchAddress == "" {
			return fmt.Errorf("atomic execution mode requires chain.batch_address")
		}
	default:
		return fmt.Errorf("unknown arbitrage.mode: %s", c.Arbitrage.Mode)
	}

	if c.Arbitrage.MaxEngagement <= 0 {
		return fmt.Errorf("arbitrage.max_engagement must be positive")
	}

	for i, band := range c.Maker.Bands {
		if err := validateBand(band); err != nil {
			return fmt.Errorf("maker.bands[%d]: %w", i, err)
		}
	}

	if c.Vault.MinTopUpMargin < 0 || c.Vault.TargetTopUpMargin < c.Vault.MinTopUpMargin {
		return fmt.Errorf("vault top-up margins must satisfy 0 <= min <= target")
	}

	if c.Loop.Interval <= 0 {
		return fmt.Errorf("loop.interval must be positive")
	}

	if c.Journal.Enabled && c.Journal.DatabaseURL == "" {
		return fmt.Errorf("journal.database_url is required when journal is enabled")
	}

	if c.Telemetry.Enabled {
		switch c.Telemetry.TraceProvider {
		case "otlp_grpc", "otlp_http", "zipkin":
			if c.Telemetry.OTLPEndpoint == "" {
				return fmt.Errorf("telemetry.otlp_endpoint is required for trace provider %s", c.Telemetry.TraceProvider)
			}
		case "console", "none", "":
		default:
			return fmt.Errorf("unknown telemetry.trace_provider: %s", c.Telemetry.TraceProvider)
		}
	}

	return nil
}

func validateBand(b BandConfig) error {
	if b.Pair == "" {
		return fmt.Errorf("pair is required")
	}
	if b.Side != "buy" && b.Side != "sell" {
		return fmt.Errorf("side must be buy or sell, got %q", b.Side)
	}
	if b.MinAmount <= 0 || b.MaxAmount < b.MinAmount {
		return fmt.Errorf("amounts must satisfy 0 < min_amount <= max_amount")
	}
	if b.MinMargin < 0 || b.AvgMargin < b.MinMargin || b.MaxMargin < b.AvgMargin {
		return fmt.Errorf("margins must satisfy 0 <= min_margin <= avg_margin <= max_margin")
	}
	return nil
}
