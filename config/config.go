package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"redeemvault/native/vault"
)

// Config is the top-level TOML document for the vault service and tooling.
type Config struct {
	Service  string      `toml:"Service"`
	Env      string      `toml:"Env"`
	LogLevel string      `toml:"LogLevel"`
	DataDir  string      `toml:"DataDir"`
	Vault    VaultConfig `toml:"vault"`
}

// VaultConfig mirrors the engine's configuration aggregate in operator-facing
// form: hex addresses, decimal USD strings, and seconds for durations.
type VaultConfig struct {
	Admin                 string          `toml:"Admin"`
	VaultAddress          string          `toml:"VaultAddress"`
	WrappedNative         string          `toml:"WrappedNative"`
	WrappedNativeDecimals uint8           `toml:"WrappedNativeDecimals"`
	StableAsset           string          `toml:"StableAsset"`
	StableAssetDecimals   uint8           `toml:"StableAssetDecimals"`
	FeeRecipient          string          `toml:"FeeRecipient"`
	Sink                  string          `toml:"Sink"`
	DailyCapUsd           string          `toml:"DailyCapUsd"`
	MembershipRoot        string          `toml:"MembershipRoot"`
	StartDelaySeconds     int64           `toml:"StartDelaySeconds"`
	DelayEnabled          bool            `toml:"DelayEnabled"`
	Paused                bool            `toml:"Paused"`
	FeeTiers              []FeeTierConfig `toml:"feetier"`
	Tokens                []TokenConfig   `toml:"token"`
}

// FeeTierConfig is one tier row. The final row of a well-formed table omits
// ThresholdUsd and acts as the catch-all rate.
type FeeTierConfig struct {
	ThresholdUsd string `toml:"ThresholdUsd"`
	Bps          uint32 `toml:"Bps"`
}

// TokenConfig lists one supported input token.
type TokenConfig struct {
	Address       string `toml:"Address"`
	Decimals      uint8  `toml:"Decimals"`
	FixedPriceUsd string `toml:"FixedPriceUsd"`
}

// Load reads and normalises the configuration at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.Normalise()
	return cfg, nil
}

// Normalise trims whitespace and applies defaults in place.
func (c *Config) Normalise() {
	if c == nil {
		return
	}
	c.Service = strings.TrimSpace(c.Service)
	if c.Service == "" {
		c.Service = "redeemvault"
	}
	c.Env = strings.TrimSpace(c.Env)
	c.LogLevel = strings.TrimSpace(c.LogLevel)
	c.DataDir = strings.TrimSpace(c.DataDir)
	if c.DataDir == "" {
		c.DataDir = "./vault-data"
	}
	c.Vault.Normalise()
}

// Normalise trims the address and amount fields in place.
func (v *VaultConfig) Normalise() {
	if v == nil {
		return
	}
	v.Admin = strings.TrimSpace(v.Admin)
	v.VaultAddress = strings.TrimSpace(v.VaultAddress)
	v.WrappedNative = strings.TrimSpace(v.WrappedNative)
	v.StableAsset = strings.TrimSpace(v.StableAsset)
	v.FeeRecipient = strings.TrimSpace(v.FeeRecipient)
	v.Sink = strings.TrimSpace(v.Sink)
	v.DailyCapUsd = strings.TrimSpace(v.DailyCapUsd)
	v.MembershipRoot = strings.TrimSpace(v.MembershipRoot)
	for i := range v.FeeTiers {
		v.FeeTiers[i].ThresholdUsd = strings.TrimSpace(v.FeeTiers[i].ThresholdUsd)
	}
	for i := range v.Tokens {
		v.Tokens[i].Address = strings.TrimSpace(v.Tokens[i].Address)
		v.Tokens[i].FixedPriceUsd = strings.TrimSpace(v.Tokens[i].FixedPriceUsd)
	}
}

// Parameters converts the operator-facing document into the engine aggregate
// plus the initial supported-token listings.
func (v *VaultConfig) Parameters() (*vault.Params, []vault.TokenInfo, error) {
	if v == nil {
		return nil, nil, fmt.Errorf("config: vault section missing")
	}
	params := &vault.Params{
		WrappedNativeDecimals: v.WrappedNativeDecimals,
		StableAssetDecimals:   v.StableAssetDecimals,
		DelayEnabled:          v.DelayEnabled,
		Paused:                v.Paused,
	}
	addresses := []struct {
		label  string
		raw    string
		target *[20]byte
	}{
		{"Admin", v.Admin, &params.Admin},
		{"VaultAddress", v.VaultAddress, &params.VaultAddress},
		{"WrappedNative", v.WrappedNative, &params.WrappedNative},
		{"StableAsset", v.StableAsset, &params.StableAsset},
		{"FeeRecipient", v.FeeRecipient, &params.FeeRecipient},
		{"Sink", v.Sink, &params.Sink},
	}
	for _, entry := range addresses {
		addr, err := parseAddress(entry.raw)
		if err != nil {
			return nil, nil, fmt.Errorf("config: %s: %w", entry.label, err)
		}
		*entry.target = addr
	}
	if params.WrappedNative == params.StableAsset {
		return nil, nil, fmt.Errorf("config: payout assets must be distinct")
	}
	if v.DailyCapUsd != "" {
		capUsd, err := ParseUsdAmount(v.DailyCapUsd)
		if err != nil {
			return nil, nil, fmt.Errorf("config: DailyCapUsd: %w", err)
		}
		params.DailyCapUsd18 = capUsd
	}
	if v.MembershipRoot != "" {
		root, err := parseRoot(v.MembershipRoot)
		if err != nil {
			return nil, nil, fmt.Errorf("config: MembershipRoot: %w", err)
		}
		params.MembershipRoot = root
	}
	if v.StartDelaySeconds < 0 {
		return nil, nil, fmt.Errorf("config: StartDelaySeconds must not be negative")
	}
	params.StartDelay = time.Duration(v.StartDelaySeconds) * time.Second

	tiers, err := v.feeTierTable()
	if err != nil {
		return nil, nil, err
	}
	params.FeeTiers = tiers

	tokens := make([]vault.TokenInfo, 0, len(v.Tokens))
	for i, token := range v.Tokens {
		addr, err := parseAddress(token.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("config: token %d: %w", i, err)
		}
		info := vault.TokenInfo{Address: addr, Decimals: token.Decimals}
		if token.FixedPriceUsd != "" {
			price, err := ParseUsdAmount(token.FixedPriceUsd)
			if err != nil {
				return nil, nil, fmt.Errorf("config: token %d price: %w", i, err)
			}
			info.FixedPriceUsd18 = price
		}
		tokens = append(tokens, info)
	}
	return params, tokens, nil
}

func (v *VaultConfig) feeTierTable() (vault.FeeTierTable, error) {
	table := vault.FeeTierTable{}
	for i, tier := range v.FeeTiers {
		last := i == len(v.FeeTiers)-1
		if tier.ThresholdUsd == "" {
			if !last {
				return vault.FeeTierTable{}, fmt.Errorf("config: feetier %d: only the final tier may omit ThresholdUsd", i)
			}
		} else {
			threshold, ok := new(big.Int).SetString(tier.ThresholdUsd, 10)
			if !ok || threshold.Sign() < 0 {
				return vault.FeeTierTable{}, fmt.Errorf("config: feetier %d: invalid ThresholdUsd %q", i, tier.ThresholdUsd)
			}
			table.ThresholdsUsd = append(table.ThresholdsUsd, threshold)
		}
		table.RatesBps = append(table.RatesBps, tier.Bps)
	}
	if len(table.RatesBps) == 0 {
		return table, nil
	}
	if err := table.Validate(); err != nil {
		return vault.FeeTierTable{}, fmt.Errorf("config: fee tiers: %w", err)
	}
	return table, nil
}

// ParseUsdAmount converts a decimal USD string like "100" or "0.25" into the
// 18-decimal fixed-point representation used throughout the engine.
func ParseUsdAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 18 {
		return nil, fmt.Errorf("amount %q exceeds 18 decimal places", value)
	}
	padded := frac + strings.Repeat("0", 18-len(frac))
	combined := whole + padded
	amount, ok := new(big.Int).SetString(combined, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	return amount, nil
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	if value == "" {
		return out, fmt.Errorf("address required")
	}
	if !ethcommon.IsHexAddress(value) {
		return out, fmt.Errorf("invalid address %q", value)
	}
	copy(out[:], ethcommon.HexToAddress(value).Bytes())
	return out, nil
}

func parseRoot(value string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("root must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// Persist writes the configuration back to disk, creating the file when
// absent.
func Persist(path string, cfg *Config) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
