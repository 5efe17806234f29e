package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/cartdiff"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/engine"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/enhance"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/pruner"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/review"
)

var (
	previousPath   string
	currentPath    string
	cartPath       string
	candidatesPath string
	slotsPath      string
	dateFlag       string
	outPath        string
	writeXLSX      bool
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Cart snapshot tools",
}

var cartDiffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Compare two cart snapshots",
	RunE:  runCartDiff,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Suggest cart items that were bought too recently",
	RunE:  runPrune,
}

var substitutesCmd = &cobra.Command{
	Use:   "substitutes",
	Short: "Rank replacement candidates for unavailable cart items",
	RunE:  runSubstitutes,
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Build the full review pack for a reorder",
	Long: `Runs the whole session: diff against the previous cart, prune
against the purchase history, rank substitutes for unavailable items,
optionally enhance the uncertain calls, and pick delivery slots.

Example:
  copilot review --previous last.json --current cart.json \
    --candidates candidates.json --slots slots.json --xlsx`,
	RunE: runReview,
}

func init() {
	cartDiffCmd.Flags().StringVar(&previousPath, "previous", "", "previous cart snapshot (JSON)")
	cartDiffCmd.Flags().StringVar(&currentPath, "current", "", "current cart snapshot (JSON)")
	cartDiffCmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	_ = cartDiffCmd.MarkFlagRequired("previous")
	_ = cartDiffCmd.MarkFlagRequired("current")
	cartCmd.AddCommand(cartDiffCmd)

	pruneCmd.Flags().StringVar(&cartPath, "cart", "", "cart snapshot (JSON)")
	pruneCmd.Flags().StringVar(&dateFlag, "date", "", "reference date, default today")
	pruneCmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	_ = pruneCmd.MarkFlagRequired("cart")

	substitutesCmd.Flags().StringVar(&cartPath, "cart", "", "cart snapshot (JSON)")
	substitutesCmd.Flags().StringVar(&candidatesPath, "candidates", "", "candidates keyed by item name (JSON)")
	substitutesCmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	_ = substitutesCmd.MarkFlagRequired("cart")
	_ = substitutesCmd.MarkFlagRequired("candidates")

	reviewCmd.Flags().StringVar(&previousPath, "previous", "", "previous cart snapshot (JSON)")
	reviewCmd.Flags().StringVar(&currentPath, "current", "", "current cart snapshot (JSON)")
	reviewCmd.Flags().StringVar(&candidatesPath, "candidates", "", "candidates keyed by item name (JSON)")
	reviewCmd.Flags().StringVar(&slotsPath, "slots", "", "delivery slots (JSON)")
	reviewCmd.Flags().StringVar(&dateFlag, "date", "", "reference date, default today")
	reviewCmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	reviewCmd.Flags().BoolVar(&writeXLSX, "xlsx", false, "also write an .xlsx review sheet to OUTPUT_DIR")
	_ = reviewCmd.MarkFlagRequired("previous")
	_ = reviewCmd.MarkFlagRequired("current")
}

func runCartDiff(cmd *cobra.Command, args []string) error {
	prev, err := readCart("previous", previousPath)
	if err != nil {
		return err
	}
	cur, err := readCart("current", currentPath)
	if err != nil {
		return err
	}
	return writeJSON(outPath, cartdiff.Diff(prev, cur))
}

func runPrune(cmd *cobra.Command, args []string) error {
	cart, err := readCart("cart", cartPath)
	if err != nil {
		return err
	}
	ref, err := referenceDate(dateFlag)
	if err != nil {
		return err
	}
	h, err := loadHistory(cmd.Context())
	if err != nil {
		return err
	}
	catalog, err := pruner.LoadCatalog(cfg.CategoriesPath)
	if err != nil {
		return err
	}
	opts := engine.OptionsFromConfig(cfg, catalog)
	result, err := pruner.New(catalog, logger).Evaluate(cart, h.Records, ref, opts.Prune)
	if err != nil {
		return err
	}
	return writeJSON(outPath, result)
}

func runSubstitutes(cmd *cobra.Command, args []string) error {
	cart, err := readCart("cart", cartPath)
	if err != nil {
		return err
	}
	candidates, err := readJSON[map[string][]internal.SubstituteCandidate](candidatesPath)
	if err != nil {
		return err
	}
	catalog, err := pruner.LoadCatalog(cfg.CategoriesPath)
	if err != nil {
		return err
	}
	eng := engine.New(engine.OptionsFromConfig(cfg, catalog), nil, logger)
	return writeJSON(outPath, eng.RankUnavailable(cart, candidates))
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var in engine.Input
	var err error
	if in.Previous, err = readCart("previous", previousPath); err != nil {
		return err
	}
	if in.Current, err = readCart("current", currentPath); err != nil {
		return err
	}
	if candidatesPath != "" {
		if in.Candidates, err = readJSON[map[string][]internal.SubstituteCandidate](candidatesPath); err != nil {
			return err
		}
	}
	if slotsPath != "" {
		if in.Slots, err = readJSON[[]internal.DeliverySlot](slotsPath); err != nil {
			return err
		}
	}
	if in.ReferenceDate, err = referenceDate(dateFlag); err != nil {
		return err
	}

	s, err := openStores()
	if err != nil {
		return err
	}
	defer s.Close()
	if in.History, err = s.history.Load(ctx); err != nil {
		return err
	}

	catalog, err := pruner.LoadCatalog(cfg.CategoriesPath)
	if err != nil {
		return err
	}
	opts := engine.OptionsFromConfig(cfg, catalog)
	opts.Recorder = s.db
	pack, err := engine.New(opts, newEnhancer(ctx), logger).Run(ctx, in)
	if err != nil {
		return err
	}

	if outPath == "" {
		if err := review.WriteJSON(pack, os.Stdout); err != nil {
			return err
		}
	} else if err := writeJSON(outPath, pack); err != nil {
		return err
	}
	if writeXLSX {
		path := filepath.Join(cfg.OutputDir, "review-"+pack.SessionID+".xlsx")
		if err := review.ExportXLSX(pack, path); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "review sheet written to %s\n", path)
	}
	return nil
}

// newEnhancer returns an enhancer backed by Gemini when enabled. A client
// that cannot be built leaves the run heuristic-only.
func newEnhancer(ctx context.Context) *enhance.Enhancer {
	ecfg := enhance.FromConfig(cfg)
	var client enhance.Client
	if ecfg.Enabled {
		g, err := enhance.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini client unavailable", zap.Error(err))
		} else {
			client = g
			logger.Debug("gemini client ready", zap.String("model", g.Model()))
		}
	}
	return enhance.New(client, ecfg, logger)
}

// readCart decodes a snapshot and rejects malformed items before any
// command computes on it.
func readCart(label, path string) (internal.CartSnapshot, error) {
	cart, err := readJSON[internal.CartSnapshot](path)
	if err != nil {
		return internal.CartSnapshot{}, err
	}
	if err := cartdiff.Validate(label, cart); err != nil {
		return internal.CartSnapshot{}, err
	}
	return cart, nil
}
