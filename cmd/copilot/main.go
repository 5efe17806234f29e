package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/config"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/logging"
)

var (
	// Global flags
	verbose bool
	cfg     config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Grocery reorder review: cart diff, pruning and substitutes",
	Long: `copilot prepares a reorder for human review. It compares the cart
with the previous one, suggests items that were bought too recently to
need again, ranks substitutes for unavailable items and, when enabled,
asks an LLM to double-check the uncertain calls.

Nothing is ever submitted; the output is a review pack.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return err
		}
		logger.Debug("config loaded", zap.Stringer("config", cfg))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(historyCmd, ordersCmd, cartCmd, pruneCmd, substitutesCmd, reviewCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hint := errs.HintOf(err); hint != "" {
			fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errs.IsInvalidInput(err):
		return 2
	default:
		return 1
	}
}
