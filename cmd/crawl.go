// -- cmd/crawl.go --
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/observability"
	"github.com/mobhervr3-png/chinak2/internal/orchestrator"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Run one scraping session over the configured listing.",
	Long: `Opens the headless browser, installs a credential profile, and traverses
the configured listing surface like a human shopper until the product limit
is reached. Extracted products are translated, price-normalized, and
persisted with duplicate suppression.

Interrupt (SIGINT/SIGTERM) is cooperative: the loop stops at the next
action boundary, credentials are persisted, and the browser shuts down
cleanly.`,
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().String("listing-url", "", "listing page to traverse (overrides config)")
	crawlCmd.Flags().Int("limit", 0, "stop after this many product detail visits (overrides config)")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()

	if v, err := cmd.Flags().GetString("listing-url"); err == nil && v != "" {
		cfg.Crawler.ListingURL = v
	}
	if v, err := cmd.Flags().GetInt("limit"); err == nil && v > 0 {
		cfg.Crawler.ProductLimit = v
	}
	if cfg.Crawler.ListingURL == "" {
		return fmt.Errorf("crawler.listing_url is required (config key or --listing-url)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := orch.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown incomplete", zap.Error(err))
		}
	}()

	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("scraping session failed: %w", err)
	}
	return nil
}
