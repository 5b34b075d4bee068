package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"nftylend/crypto"

	"github.com/BurntSushi/toml"
)

const maxOriginationFeeBps = 1_000

// Config holds the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	MetricsAddress     string `toml:"MetricsAddress"`
	DataDir            string `toml:"DataDir"`
	Environment        string `toml:"Environment"`
	OwnerKeystorePath  string `toml:"OwnerKeystorePath"`
	PlatformWallet     string `toml:"PlatformWallet"`
	OriginationFeeBps  uint64 `toml:"OriginationFeeBps"`
	JWTSecret          string `toml:"JWTSecret"`
	RateLimitPerSecond int    `toml:"RateLimitPerSecond"`
	RateLimitBurst     int    `toml:"RateLimitBurst"`
	OTLPEndpoint       string `toml:"OTLPEndpoint"`
	OTLPInsecure       bool   `toml:"OTLPInsecure"`
	TracesEnabled      bool   `toml:"TracesEnabled"`
	FaucetEnabled      bool   `toml:"FaucetEnabled"`
}

// Load reads the configuration at path, creating a default file (and an
// encrypted owner keystore next to it) when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9091"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./nftylend-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
}

// Validate rejects configurations the engine would refuse at runtime.
func (cfg *Config) Validate() error {
	if cfg.OriginationFeeBps > maxOriginationFeeBps {
		return fmt.Errorf("config: origination fee %d exceeds maximum %d bps", cfg.OriginationFeeBps, maxOriginationFeeBps)
	}
	if wallet := strings.TrimSpace(cfg.PlatformWallet); wallet != "" {
		if _, err := crypto.DecodeAddress(wallet); err != nil {
			return fmt.Errorf("config: invalid platform wallet: %w", err)
		}
	}
	return nil
}

// PlatformWalletAddress decodes the configured platform wallet, if any.
func (cfg *Config) PlatformWalletAddress() (crypto.Address, bool, error) {
	wallet := strings.TrimSpace(cfg.PlatformWallet)
	if wallet == "" {
		return crypto.Address{}, false, nil
	}
	addr, err := crypto.DecodeAddress(wallet)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return addr, true, nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:        ":8545",
		MetricsAddress:    ":9091",
		DataDir:           "./nftylend-data",
		Environment:       "local",
		OwnerKeystorePath: keystorePath,
		OriginationFeeBps: 200,
		FaucetEnabled:     true,
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "owner.keystore.json")
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
