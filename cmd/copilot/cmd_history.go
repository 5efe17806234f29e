package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/history"
)

var historyProduct string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and merge the purchase history",
}

var historyMergeCmd = &cobra.Command{
	Use:   "merge [history.json...]",
	Short: "Merge exported history documents into the configured store",
	Long: `Merges one or more history documents into the configured history backend.
Records are deduplicated by (orderId, productName); the first copy wins.

Example:
  copilot history merge ./exports/laptop-history.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHistoryMerge,
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print history totals, or analytics for one product",
	RunE:  runHistoryShow,
}

func init() {
	historyShowCmd.Flags().StringVar(&historyProduct, "product", "", "product name to analyze")
	historyCmd.AddCommand(historyMergeCmd, historyShowCmd)
}

func runHistoryMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStores()
	if err != nil {
		return err
	}
	defer s.Close()

	merged, err := s.history.Load(ctx)
	if err != nil {
		return err
	}
	before := len(merged.Records)
	for _, path := range args {
		blob, err := readJSON[internal.PurchaseHistory](path)
		if err != nil {
			return err
		}
		merged = history.MergeHistory(merged, blob)
	}
	if err := s.history.Save(ctx, merged); err != nil {
		return err
	}
	logger.Info("history merged",
		zap.Int("files", len(args)),
		zap.Int("records", len(merged.Records)),
		zap.Int("added", len(merged.Records)-before),
	)
	fmt.Printf("history merged files=%d records=%d added=%d orders=%d\n", len(args), len(merged.Records), len(merged.Records)-before, merged.OrdersCount)
	return nil
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	h, err := loadHistory(cmd.Context())
	if err != nil {
		return err
	}
	if historyProduct != "" {
		records := history.BuildIndex(h.Records).Lookup(historyProduct)
		return writeJSON("", history.Analyze(historyProduct, records))
	}
	last := "never"
	if h.LastSyncedAt != nil {
		last = *h.LastSyncedAt
	}
	fmt.Printf("records=%d orders=%d products=%d last_synced=%s\n", len(h.Records), h.OrdersCount, len(history.BuildIndex(h.Records)), last)
	return nil
}
