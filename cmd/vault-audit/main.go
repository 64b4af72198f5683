package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"redeemvault/config"
	"redeemvault/native/vault"
	"redeemvault/observability/logging"
	"redeemvault/storage"
)

type auditReport struct {
	Admin          string        `json:"admin"`
	VaultAddress   string        `json:"vaultAddress"`
	WrappedNative  string        `json:"wrappedNative"`
	StableAsset    string        `json:"stableAsset"`
	FeeRecipient   string        `json:"feeRecipient"`
	Sink           string        `json:"sink"`
	DailyCapUsd18  string        `json:"dailyCapUsd18"`
	MembershipRoot string        `json:"membershipRoot"`
	DelayEnabled   bool          `json:"delayEnabled"`
	Paused         bool          `json:"paused"`
	FeeTierRates   []uint32      `json:"feeTierRatesBps"`
	Tokens         []string      `json:"supportedTokens"`
	Export         *exportReport `json:"export,omitempty"`
}

type exportReport struct {
	Receipts      int    `json:"receipts"`
	TotalGrossUsd string `json:"totalGrossUsd18"`
	CSVBase64     string `json:"csvBase64"`
}

func main() {
	configPath := flag.String("config", "./config.toml", "Path to vault configuration file")
	dataDir := flag.String("data", "", "LevelDB data directory (defaults to config DataDir)")
	export := flag.Bool("export", false, "Include a base64 CSV export of the redemption ledger")
	startTs := flag.Int64("start", 0, "Export window start (unix seconds, inclusive)")
	endTs := flag.Int64("end", 0, "Export window end (unix seconds, inclusive)")
	rewrite := flag.String("rewrite", "", "Write the normalised configuration to this path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Service, cfg.Env, cfg.LogLevel)

	params, tokens, err := cfg.Vault.Parameters()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse vault parameters: %v\n", err)
		os.Exit(1)
	}

	if *rewrite != "" {
		if err := config.Persist(*rewrite, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		logger.Info("normalised config written", "path", *rewrite)
	}

	report := auditReport{
		Admin:          addr(params.Admin),
		VaultAddress:   addr(params.VaultAddress),
		WrappedNative:  addr(params.WrappedNative),
		StableAsset:    addr(params.StableAsset),
		FeeRecipient:   addr(params.FeeRecipient),
		Sink:           addr(params.Sink),
		MembershipRoot: "0x" + hex.EncodeToString(params.MembershipRoot[:]),
		DelayEnabled:   params.DelayEnabled,
		Paused:         params.Paused,
		FeeTierRates:   params.FeeTiers.RatesBps,
	}
	report.DailyCapUsd18 = "0"
	if params.DailyCapUsd18 != nil {
		report.DailyCapUsd18 = params.DailyCapUsd18.String()
	}
	for _, token := range tokens {
		report.Tokens = append(report.Tokens, addr(token.Address))
	}

	if *export {
		dir := *dataDir
		if dir == "" {
			dir = cfg.DataDir
		}
		db, err := storage.NewLevelDB(dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open data directory: %v\n", err)
			os.Exit(1)
		}
		defer db.Close()
		ledger := vault.NewRedemptionLedger(storage.NewKV(db))
		encoded, count, total, err := ledger.ExportCSV(*startTs, *endTs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to export ledger: %v\n", err)
			os.Exit(1)
		}
		report.Export = &exportReport{
			Receipts:      count,
			TotalGrossUsd: total.String(),
			CSVBase64:     encoded,
		}
		logger.Info("ledger export complete", "receipts", count, "totalGrossUsd", total.String())
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode report: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
}

func addr(a [20]byte) string {
	return "0x" + hex.EncodeToString(a[:])
}
