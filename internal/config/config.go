package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultNetwork    = "base"
	defaultMode       = "mainnet"
	defaultAlgorithm  = "fastest"
	defaultCurrency   = "USD"
	defaultBackend    = "file"
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"
	defaultPriceTTL   = 60

	configFile  = "config.json"
	walletsFile = "wallets.json"

	envPrefix = "W3DEPLOY"
)

// Store backends accepted by store_backend.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// DefaultDir returns the config directory used when none is given:
// $W3DEPLOY_CONFIG_DIR, or ~/.w3deploy.
func DefaultDir() (string, error) {
	if dir := os.Getenv(envPrefix + "_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home dir: %w", err)
	}
	return filepath.Join(home, ".w3deploy"), nil
}

// Load reads config from dir (or creates defaults), then applies .env and
// W3DEPLOY_* environment overrides.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	data, err := os.ReadFile(filepath.Join(dir, configFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[string][]string)
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg.applyEnv(newEnv())

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	return saveJSON(filepath.Join(c.configDir, configFile), c)
}

// AddRPC adds a custom RPC URL for a chain.
func (c *Config) AddRPC(chain, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[string][]string)
	}
	if slices.Contains(c.CustomRPCs[chain], url) {
		return fmt.Errorf("RPC %s already exists for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = append(c.CustomRPCs[chain], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a chain.
func (c *Config) RemoveRPC(chain, url string) error {
	rpcs := c.CustomRPCs[chain]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for chain %s", url, chain)
	}
	c.CustomRPCs[chain] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a chain.
func (c *Config) GetRPCs(chain string) []string {
	return c.CustomRPCs[chain]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// CacheDir is where per-wallet local record caches live.
func (c *Config) CacheDir() string {
	return filepath.Join(c.configDir, "cache")
}

// Validate checks the fields a deployment or server run depends on.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("store_backend is postgres but postgres_dsn is empty")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("store_backend is redis but redis_addr is empty")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.PriceTTLSeconds < 0 {
		return fmt.Errorf("price_ttl_seconds must be >= 0, got %d", c.PriceTTLSeconds)
	}
	return nil
}

// WalletsPath is the wallets.json file used by the wallet manager.
func (c *Config) WalletsPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// LoadJSON reads a JSON document stored under the config dir. A missing file
// yields the zero value.
func LoadJSON[T any](c *Config, name string) (*T, error) {
	return loadJSON[T](filepath.Join(c.configDir, name))
}

// SaveJSON writes a JSON document under the config dir.
func SaveJSON(c *Config, name string, v any) error {
	path := filepath.Join(c.configDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return saveJSON(path, v)
}

// --- environment overlay ---

func newEnv() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// applyEnv overrides scalar fields that have a W3DEPLOY_<KEY> variable set.
func (c *Config) applyEnv(v *viper.Viper) {
	strs := map[string]*string{
		"default_network": &c.DefaultNetwork,
		"default_wallet":  &c.DefaultWallet,
		"network_mode":    &c.NetworkMode,
		"rpc_algorithm":   &c.RPCAlgorithm,
		"price_currency":  &c.PriceCurrency,
		"price_api_key":   &c.PriceAPIKey,
		"factory_address": &c.FactoryAddress,
		"receipt_rpc":     &c.ReceiptRPC,
		"store_backend":   &c.StoreBackend,
		"postgres_dsn":    &c.PostgresDSN,
		"redis_addr":      &c.RedisAddr,
		"listen_addr":     &c.ListenAddr,
		"log_level":       &c.LogLevel,
	}
	for key, field := range strs {
		if v.IsSet(key) {
			*field = v.GetString(key)
		}
	}
	if v.IsSet("price_ttl_seconds") {
		c.PriceTTLSeconds = v.GetInt("price_ttl_seconds")
	}
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

// --- helpers ---

func defaults(dir string) *Config {
	return &Config{
		DefaultNetwork:  defaultNetwork,
		NetworkMode:     defaultMode,
		RPCAlgorithm:    defaultAlgorithm,
		PriceCurrency:   defaultCurrency,
		CustomRPCs:      make(map[string][]string),
		StoreBackend:    defaultBackend,
		ListenAddr:      defaultListenAddr,
		LogLevel:        defaultLogLevel,
		PriceTTLSeconds: defaultPriceTTL,
		configDir:       dir,
	}
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
