package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/orders"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Import order confirmations into the purchase history",
}

var ordersImportCmd = &cobra.Command{
	Use:   "import [dir | file.eml...]",
	Short: "Extract orders from .eml confirmations and sync them",
	Long: `Reads saved order-confirmation emails, extracts their item lines from
HTML tables, .xlsx receipts or plain-text lines, and appends orders not
synced before to the history.

Example:
  copilot orders import ./mail/orders`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOrdersImport,
}

func init() {
	ordersCmd.AddCommand(ordersImportCmd)
}

func runOrdersImport(cmd *cobra.Command, args []string) error {
	s, err := openStores()
	if err != nil {
		return err
	}
	defer s.Close()

	svc := orders.NewImportService(s.history, s.db, logger)
	var res orders.ImportResult
	if len(args) == 1 && isDir(args[0]) {
		res, err = svc.ImportDir(cmd.Context(), args[0])
	} else {
		res, err = svc.ImportFiles(cmd.Context(), args)
	}
	if err != nil {
		return err
	}
	if err := s.db.SetMetadata(cmd.Context(), metaLastImportSource, strings.Join(args, " ")); err != nil {
		logger.Warn("import source not recorded", zap.Error(err))
	}

	failed := make([]string, 0, len(res.Failed))
	for path := range res.Failed {
		failed = append(failed, path)
	}
	sort.Strings(failed)
	for _, path := range failed {
		fmt.Printf("failed %s: %s\n", path, res.Failed[path])
	}
	fmt.Printf("orders import done files=%d not_orders=%d synced=%d skipped=%d records=%d\n",
		res.FilesRead, len(res.NotOrders), res.OrdersSynced, res.OrdersSkipped, res.RecordsAdded)
	return nil
}
