package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lack0fcode/destructorbr/internal/chains"
	"github.com/lack0fcode/destructorbr/internal/constants"
)

func writeUserConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, constants.ConfigFile), []byte(body), 0o600))
	return dir
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	t.Setenv("DESTRUCTOR_ALCHEMY_KEY", "")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.ClientSettings.LocalHost)
	require.Equal(t, "6140", cfg.ClientSettings.Port)
	require.Equal(t, constants.BurnProxyAddress, cfg.Burner.ProxyAddress)
	require.Equal(t, 750*time.Millisecond, cfg.Burner.ReceiptPollInitial)
	require.Equal(t, MetadataFromIndexer, cfg.Indexer.MetadataSource)
	require.Equal(t, ConfirmPrompt, cfg.Signer.Confirm)
	require.True(t, cfg.Indexer.IncludeNFTs)

	require.Len(t, cfg.Chains.Networks, 2)
	base := cfg.Chains.Networks["base-sepolia"]
	require.Equal(t, uint64(84532), base.ChainID)
	require.Equal(t, "Base Sepolia", base.DisplayName)
	require.Empty(t, base.IndexerURL)
	require.Equal(t, uint64(11155111), cfg.Chains.Networks["sepolia"].ChainID)
}

func TestLoadInjectsAlchemyKey(t *testing.T) {
	t.Setenv("DESTRUCTOR_ALCHEMY_KEY", "k3y")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	base := cfg.Chains.Networks["base-sepolia"]
	require.Equal(t, "https://base-sepolia.g.alchemy.com/v2/k3y", base.IndexerURL)
	require.Equal(t, "https://base-sepolia.g.alchemy.com/nft/v2/k3y", base.NFTURL)
	require.Equal(t, "https://sepolia.base.org", base.RPCs[0].URL, "configured rpcs are kept")
	require.Equal(t, "https://eth-sepolia.g.alchemy.com/v2/k3y", cfg.Chains.Networks["sepolia"].IndexerURL)
}

func TestLoadMergesUserFileAndEnv(t *testing.T) {
	t.Setenv("DESTRUCTOR_ALCHEMY_KEY", "")
	t.Setenv("DESTRUCTOR_SIGNER_CONFIRM", "auto")

	dir := writeUserConfig(t, `
ClientSettings:
  Port: "7000"
Indexer:
  MetadataSource: "onchain"
Chains:
  networks:
    Base-Mainnet:
      chainId: 8453
      alchemySlug: "base-mainnet"
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	require.Equal(t, "7000", cfg.ClientSettings.Port)
	require.Equal(t, "127.0.0.1", cfg.ClientSettings.LocalHost)
	require.Equal(t, MetadataOnChain, cfg.Indexer.MetadataSource)
	require.Equal(t, ConfirmAuto, cfg.Signer.Confirm)
	require.Len(t, cfg.Chains.Networks, 3)
	require.Equal(t, uint64(8453), cfg.Chains.Networks["base-mainnet"].ChainID)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("DESTRUCTOR_ALCHEMY_KEY", "")

	_, err := LoadFrom(writeUserConfig(t, "Burner:\n  ProxyAddress: \"0x1234\"\n"))
	require.Error(t, err)

	_, err = LoadFrom(writeUserConfig(t, "Signer:\n  Confirm: \"maybe\"\n"))
	require.Error(t, err)

	_, err = LoadFrom(writeUserConfig(t, "Indexer:\n  MetadataSource: \"oracle\"\n"))
	require.Error(t, err)
}

func TestNormalizeDefaults(t *testing.T) {
	c := &Config{Chains: nil}
	require.Error(t, c.Normalize())

	c = &Config{}
	c.Chains = mustChains(t)
	require.NoError(t, c.Normalize())
	require.Equal(t, "6140", c.ClientSettings.Port)
	require.Equal(t, constants.BurnProxyAddress, c.ProxyAddress().Hex())
}

func mustChains(t *testing.T) *chains.AllChainsConfig {
	t.Helper()
	return &chains.AllChainsConfig{Networks: map[string]chains.NetworkConfig{
		"Sepolia": {ChainID: 11155111},
	}}
}
