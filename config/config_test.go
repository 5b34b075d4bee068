package config

import (
	"os"
	"path/filepath"
	"testing"

	"nftylend/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCAddress != ":8545" {
		t.Fatalf("unexpected default rpc address %q", cfg.RPCAddress)
	}
	if cfg.OriginationFeeBps != 200 {
		t.Fatalf("unexpected default fee %d", cfg.OriginationFeeBps)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if _, err := os.Stat(cfg.OwnerKeystorePath); err != nil {
		t.Fatalf("owner keystore not created: %v", err)
	}

	// Reloading keeps the same keystore.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OwnerKeystorePath != cfg.OwnerKeystorePath {
		t.Fatalf("keystore path changed on reload")
	}
}

func TestLoadRejectsExcessiveFee(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("OriginationFeeBps = 1001\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected fee validation failure")
	}
}

func TestLoadRejectsMalformedPlatformWallet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("PlatformWallet = \"not-bech32\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected wallet validation failure")
	}
}

func TestValidateAcceptsBech32Wallet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg.PlatformWallet = key.PubKey().Address().String()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	addr, ok, err := cfg.PlatformWalletAddress()
	if err != nil || !ok {
		t.Fatalf("wallet decode: ok=%v err=%v", ok, err)
	}
	if len(addr.Bytes()) != 20 {
		t.Fatalf("unexpected wallet payload length")
	}
}
