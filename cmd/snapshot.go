package cmd

import (
	"encoding/json"
	"log/slog"

	"github.com/matrixise/survey-gate/internal/balance"
	"github.com/matrixise/survey-gate/internal/bracket"
	"github.com/matrixise/survey-gate/internal/config"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <address>",
	Short: "Compute the balance snapshot of a wallet",
	Long:  `Read the native and token balances of a wallet, price them and print the snapshot as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshot,
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
}

type snapshotOutput struct {
	balance.Snapshot
	Bracket bracket.Bracket `json:"bracket"`
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	setupLogger(cmd, nil)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}
	setupLogger(cmd, cfg)

	ctx := cmd.Context()
	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	snap, err := eng.aggregator.Refresh(ctx, args[0])
	if err != nil {
		slog.Error("Snapshot failed", "wallet", args[0], "error", err)
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(snapshotOutput{Snapshot: snap, Bracket: bracket.Classify(snap.NativeBalance())})
}
