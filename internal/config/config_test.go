package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/w3deploy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "base", cfg.DefaultNetwork)
	assert.Equal(t, "mainnet", cfg.NetworkMode)
	assert.Equal(t, "fastest", cfg.RPCAlgorithm)
	assert.Equal(t, "USD", cfg.PriceCurrency)
	assert.Equal(t, config.BackendFile, cfg.StoreBackend)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 60, cfg.PriceTTLSeconds)
	assert.Empty(t, cfg.FactoryAddress)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.DefaultNetwork = "base"
	cfg.DefaultWallet = "mywallet"
	cfg.FactoryAddress = "0x00000000000000000000000000000000000000fa"
	cfg.StoreBackend = config.BackendRedis
	cfg.RedisAddr = "localhost:6379"

	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "mywallet", reloaded.DefaultWallet)
	assert.Equal(t, "0x00000000000000000000000000000000000000fa", reloaded.FactoryAddress)
	assert.Equal(t, config.BackendRedis, reloaded.StoreBackend)
	assert.Equal(t, "localhost:6379", reloaded.RedisAddr)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	cfg.FactoryAddress = "0xfromfile"
	require.NoError(t, cfg.Save())

	t.Setenv("W3DEPLOY_FACTORY_ADDRESS", "0xfromenv")
	t.Setenv("W3DEPLOY_PRICE_TTL_SECONDS", "15")

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0xfromenv", reloaded.FactoryAddress)
	assert.Equal(t, 15, reloaded.PriceTTLSeconds)
}

func TestDefaultDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("W3DEPLOY_CONFIG_DIR", dir)

	got, err := config.DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestValidate(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())

	cfg.StoreBackend = config.BackendPostgres
	assert.Error(t, cfg.Validate(), "postgres without a DSN")

	cfg.PostgresDSN = "postgres://localhost/w3deploy"
	assert.NoError(t, cfg.Validate())

	cfg.StoreBackend = "mongo"
	assert.Error(t, cfg.Validate())
}

func TestAddCustomRPC(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	require.NoError(t, cfg.AddRPC("base", "https://custom.base.rpc"))

	rpcs := cfg.GetRPCs("base")
	assert.Contains(t, rpcs, "https://custom.base.rpc")
}

func TestAddDuplicateRPCErrors(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)

	cfg.AddRPC("base", "https://custom.base.rpc") //nolint:errcheck
	err := cfg.AddRPC("base", "https://custom.base.rpc")
	assert.Error(t, err)
}

func TestRemoveCustomRPC(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.AddRPC("base", "https://rpc1.base") //nolint:errcheck
	cfg.AddRPC("base", "https://rpc2.base") //nolint:errcheck

	require.NoError(t, cfg.RemoveRPC("base", "https://rpc1.base"))

	rpcs := cfg.GetRPCs("base")
	assert.NotContains(t, rpcs, "https://rpc1.base")
	assert.Contains(t, rpcs, "https://rpc2.base")
}

func TestRemoveNonExistentRPCErrors(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)

	err := cfg.RemoveRPC("base", "https://nonexistent.rpc")
	assert.Error(t, err)
}

func TestConfigFileCreatedOnSave(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Load(dir)
	require.NoError(t, cfg.Save())

	_, err := os.Stat(filepath.Join(dir, "config.json"))
	assert.NoError(t, err, "config.json should be created on save")
}

func TestLoadFromNonExistentDir(t *testing.T) {
	dir := t.TempDir() + "/subdir"
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	// Should create dir and return defaults.
	assert.Equal(t, "base", cfg.DefaultNetwork)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.CacheDir())
}

func TestJSONDocumentsRoundTrip(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	type doc struct {
		Names []string `json:"names"`
	}
	empty, err := config.LoadJSON[doc](cfg, "records/missing.json")
	require.NoError(t, err)
	assert.Empty(t, empty.Names)

	require.NoError(t, config.SaveJSON(cfg, "records/a.json", doc{Names: []string{"x"}}))
	got, err := config.LoadJSON[doc](cfg, "records/a.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Names)
	assert.Equal(t, filepath.Join(cfg.Dir(), "wallets.json"), cfg.WalletsPath())
}
