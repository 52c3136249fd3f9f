package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/lack0fcode/destructorbr/internal/chains"
	"github.com/lack0fcode/destructorbr/internal/constants"
)

const (
	MetadataFromIndexer = "indexer"
	MetadataOnChain     = "onchain"

	ConfirmPrompt = "prompt"
	ConfirmAuto   = "auto"
)

type ClientSettings struct {
	LocalHost      string
	Port           string
	AllowedOrigins []string
}

type BurnerSettings struct {
	ProxyAddress       string
	KeepJobs           int
	ReceiptPollInitial time.Duration
	ReceiptPollStep    time.Duration
	ReceiptPollMax     time.Duration
}

type IndexerSettings struct {
	IncludeNFTs    bool
	MaxConcurrency int
	MetadataSource string
	RetryInitial   time.Duration
	RetryMax       time.Duration
	RequestTimeout time.Duration
	SpamKeywords   []string
}

type SignerSettings struct {
	Enabled      bool
	Confirm      string
	WalletFile   string
	PreferredRPC string
}

type Config struct {
	ClientSettings *ClientSettings
	Burner         BurnerSettings
	Indexer        IndexerSettings
	Signer         SignerSettings
	Chains         *chains.AllChainsConfig `mapstructure:"Chains"`
}

// SearchPaths lists where a user config.yaml may live, most specific first.
func SearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", constants.AppName),
		filepath.Join(home, "config"),
		".",
	}
}

func Load() (*Config, error) {
	return LoadFrom(SearchPaths()...)
}

// LoadFrom reads the embedded defaults, merges the first config.yaml found in paths,
// then applies DESTRUCTOR_* environment overrides.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(EmbeddedConfigYAML)); err != nil {
		return nil, fmt.Errorf("read embedded config: %w", err)
	}

	v.SetConfigName(strings.TrimSuffix(constants.ConfigFile, filepath.Ext(constants.ConfigFile)))
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("merge config: %w", err)
		}
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Chains.InjectAlchemyKey(os.Getenv(constants.EnvPrefix + "_ALCHEMY_KEY"))
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates what the daemon cannot run without.
func (c *Config) Normalize() error {
	if c.ClientSettings == nil {
		c.ClientSettings = &ClientSettings{}
	}
	if strings.TrimSpace(c.ClientSettings.LocalHost) == "" {
		c.ClientSettings.LocalHost = "127.0.0.1"
	}
	if strings.TrimSpace(c.ClientSettings.Port) == "" {
		c.ClientSettings.Port = "6140"
	}

	proxy := strings.TrimSpace(c.Burner.ProxyAddress)
	if proxy == "" {
		proxy = constants.BurnProxyAddress
	}
	if !common.IsHexAddress(proxy) {
		return fmt.Errorf("Burner.ProxyAddress invalid: %q", c.Burner.ProxyAddress)
	}
	c.Burner.ProxyAddress = common.HexToAddress(proxy).Hex()

	switch strings.ToLower(strings.TrimSpace(c.Indexer.MetadataSource)) {
	case "", MetadataFromIndexer:
		c.Indexer.MetadataSource = MetadataFromIndexer
	case MetadataOnChain:
		c.Indexer.MetadataSource = MetadataOnChain
	default:
		return fmt.Errorf("invalid Indexer.MetadataSource %q (allowed: indexer, onchain)", c.Indexer.MetadataSource)
	}

	switch strings.ToLower(strings.TrimSpace(c.Signer.Confirm)) {
	case "", ConfirmPrompt:
		c.Signer.Confirm = ConfirmPrompt
	case ConfirmAuto:
		c.Signer.Confirm = ConfirmAuto
	default:
		return fmt.Errorf("invalid Signer.Confirm %q (allowed: prompt, auto)", c.Signer.Confirm)
	}

	if c.Chains == nil || len(c.Chains.Networks) == 0 {
		return errors.New("no Chains.networks configured")
	}
	c.Chains.Normalize()
	for name, n := range c.Chains.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("Chains.networks[%q] has no chainId", name)
		}
	}
	return nil
}

func (c *Config) ProxyAddress() common.Address {
	return common.HexToAddress(c.Burner.ProxyAddress)
}
