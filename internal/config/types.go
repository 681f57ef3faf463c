package config

// Config holds all w3deploy configuration.
type Config struct {
	DefaultNetwork  string              `json:"default_network"   mapstructure:"default_network"`
	DefaultWallet   string              `json:"default_wallet"    mapstructure:"default_wallet"`
	NetworkMode     string              `json:"network_mode"      mapstructure:"network_mode"`  // "mainnet" | "testnet"
	RPCAlgorithm    string              `json:"rpc_algorithm"     mapstructure:"rpc_algorithm"` // "fastest" | "round-robin" | "failover"
	PriceCurrency   string              `json:"price_currency"    mapstructure:"price_currency"`
	PriceAPIKey     string              `json:"price_api_key,omitempty" mapstructure:"price_api_key"` // CoinGecko demo key
	CustomRPCs      map[string][]string `json:"custom_rpcs"       mapstructure:"custom_rpcs"`
	FactoryAddress  string              `json:"factory_address"   mapstructure:"factory_address"`
	ReceiptRPC      string              `json:"receipt_rpc"       mapstructure:"receipt_rpc"` // public endpoint used for receipt polling
	StoreBackend    string              `json:"store_backend"     mapstructure:"store_backend"` // "file" | "memory" | "postgres" | "redis"
	PostgresDSN     string              `json:"postgres_dsn"      mapstructure:"postgres_dsn"`
	RedisAddr       string              `json:"redis_addr"        mapstructure:"redis_addr"`
	ListenAddr      string              `json:"listen_addr"       mapstructure:"listen_addr"`
	LogLevel        string              `json:"log_level"         mapstructure:"log_level"`
	PriceTTLSeconds int                 `json:"price_ttl_seconds" mapstructure:"price_ttl_seconds"`

	// internal: config dir path used for Save()
	configDir string
}
