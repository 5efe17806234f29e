package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

const metaLastImportSource = "orders.last_import_source"

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent review and import runs from the run log",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 10, "number of runs to show")
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openStores()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.db.ListRuns(ctx, runsLimit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s %-13s %s digest=%s %s\n", r.CreatedAt, r.Kind, r.SessionID, shortDigest(r.Digest), formatCounts(r.Counts))
	}

	source, err := s.db.GetMetadata(ctx, metaLastImportSource)
	if err != nil {
		return err
	}
	if source != nil {
		fmt.Printf("last orders import: %s\n", *source)
	}
	return nil
}

func shortDigest(d string) string {
	if d == "" {
		return "-"
	}
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
