package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Gateway modes.
const (
	GatewayGov    = "gov"
	GatewayMock   = "mock"
	GatewayDirect = "direct"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (VERISTORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Pool     PoolConfig
	Gateway  GatewayConfig
	Delivery DeliveryConfig
	Throttle ThrottleConfig
	Operator OperatorConfig
	Graceful GracefulConfig
}

// PoolConfig controls code stock.
type PoolConfig struct {
	Seed      int    `default:"10" usage:"Codes generated per active catalog key at startup"`
	Replenish bool   `default:"true" usage:"Generate fresh codes when a key runs short"`
	StockDir  string `default:"" usage:"Directory with provisioned <family>_<sku>.gz stock files" flag:"stock-dir"`
	// Replenishing takes keep Seed codes in stock, so MinStock must not
	// exceed Seed.
	MinStock int `default:"1" usage:"Readiness fails while any active key holds fewer codes"`

	LedgerCapacity uint    `default:"1000000" usage:"Codes per stage of the issued-code ledger, which grows a stage when full"`
	LedgerFPR      float64 `default:"0.000001" usage:"False-positive rate of the first ledger stage"`
}

// GatewayConfig selects and configures the payment gateway.
type GatewayConfig struct {
	Mode        string        `default:"direct" usage:"Payment gateway: gov, mock or direct"`
	BaseURL     string        `default:"" usage:"GovCheckout API base URL" flag:"gateway-base-url"`
	APIKey      string        `default:"" usage:"GovCheckout API key (VERISTORE_GATEWAY_API_KEY)" flag:"gateway-api-key"`
	MDABranch   string        `default:"" usage:"GovCheckout MDA branch code"`
	RedirectURL string        `default:"" usage:"URL buyers return to after checkout"`
	PostURL     string        `default:"" usage:"URL the gateway posts payment callbacks to"`
	Timeout     time.Duration `default:"15s" usage:"Gateway request timeout"`
	PublicURL   string        `default:"" usage:"Public base URL used in mock checkout links"`
}

// DeliveryConfig controls the delivery outbox.
type DeliveryConfig struct {
	OutboxSize int `default:"100" usage:"Deliveries kept for GET /api/deliveries"`
}

// ThrottleConfig limits how often one client may settle invoices.
type ThrottleConfig struct {
	Max    int           `default:"30" usage:"Max settle requests per client per window, 0 disables"`
	Window time.Duration `default:"1m" usage:"Throttle window duration"`
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP. Enable
	// only behind a proxy that overwrites them.
	TrustProxyHeaders bool `default:"false" usage:"Key throttled clients by proxy headers instead of the peer address"`
}

// OperatorConfig guards operator routes such as GET /api/deliveries.
type OperatorConfig struct {
	KeyHashes []string `usage:"Hex SHA-256 hashes of accepted operator API keys" flag:"operator-key-hashes"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "VERISTORE",
		Files:     []string{"config.yaml", "/etc/veristore/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	c.Gateway.Mode = strings.ToLower(strings.TrimSpace(c.Gateway.Mode))
	switch c.Gateway.Mode {
	case GatewayGov:
		if c.Gateway.APIKey == "" {
			return errors.New("gateway API key is required in gov mode: set VERISTORE_GATEWAY_API_KEY")
		}
	case GatewayMock, GatewayDirect:
	default:
		return errors.Errorf("unknown gateway mode %q", c.Gateway.Mode)
	}
	if c.Pool.Seed < 0 {
		return errors.Errorf("pool seed must not be negative, got %d", c.Pool.Seed)
	}
	if c.Pool.Replenish && c.Pool.MinStock > c.Pool.Seed {
		return errors.Errorf("pool min stock %d exceeds seed %d: readiness would fail after every sale", c.Pool.MinStock, c.Pool.Seed)
	}
	if c.Pool.LedgerFPR <= 0 || c.Pool.LedgerFPR >= 1 {
		return errors.Errorf("pool ledger false-positive rate must be in (0, 1), got %v", c.Pool.LedgerFPR)
	}
	if c.Throttle.Max > 0 && c.Throttle.Window <= 0 {
		return errors.New("throttle window must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the platform-provided PORT variable (Railway,
// Render, etc.) onto the listen address.
func (c *Config) applyPlatformDefaults() {
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
