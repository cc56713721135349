package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/colthorp/spacetraders-cache-go/internal/cache"
	"github.com/colthorp/spacetraders-cache-go/internal/core"
	"github.com/colthorp/spacetraders-cache-go/internal/metrics"
	"github.com/colthorp/spacetraders-cache-go/internal/output"
)

func init() {
	// Add all subcommands
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(marketCmd)
	rootCmd.AddCommand(marginCmd)
	rootCmd.AddCommand(marginsCmd)
	rootCmd.AddCommand(chartCmd)
	rootCmd.AddCommand(surveyCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(cooldownCmd)
	rootCmd.AddCommand(mcpCmd)

	chartCmd.AddCommand(chartRebuildCmd)

	refreshCmd.Flags().Int("start-page", core.DefaultStartPage, "Page to start from (resume an aborted refresh)")
	listCmd.Flags().Bool("count", false, "Only print the number of cached records")
	marketCmd.Flags().BoolP("force", "f", false, "Fetch from the API even when cached")
	marginsCmd.Flags().IntP("limit", "n", 5, "Maximum number of commodities to show")
	extractCmd.Flags().StringP("target", "t", "", "Commodity to prefer when choosing a survey")
	mcpCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while the MCP server runs (e.g. :9464)")
}

// getCmd returns one record, fetching it on a cache miss
var getCmd = &cobra.Command{
	Use:   "get [collection] [key]",
	Short: "Get a record from the cache, fetching it on a miss",
	Args:  cobra.ExactArgs(2),
	RunE:  handleGet,
}

// refreshCmd pages a whole collection into the cache
var refreshCmd = &cobra.Command{
	Use:   "refresh [collection]",
	Short: "Page through a collection listing into the cache",
	Args:  cobra.ExactArgs(1),
	RunE:  handleRefresh,
}

// listCmd prints a cached collection
var listCmd = &cobra.Command{
	Use:   "list [collection]",
	Short: "List every cached record of a collection",
	Args:  cobra.ExactArgs(1),
	RunE:  handleList,
}

// invalidateCmd deletes one shard
var invalidateCmd = &cobra.Command{
	Use:   "invalidate [collection] [shard]",
	Short: "Delete one cache shard (by shard name or any key routed to it)",
	Args:  cobra.ExactArgs(2),
	RunE:  handleInvalidate,
}

// marketCmd shows a market and records its prices
var marketCmd = &cobra.Command{
	Use:   "market [waypoint]",
	Short: "Show the market at a waypoint",
	Args:  cobra.ExactArgs(1),
	RunE:  handleMarket,
}

// marginCmd shows the best margin for one commodity
var marginCmd = &cobra.Command{
	Use:   "margin [commodity]",
	Short: "Show the best known buy and sell prices for a commodity",
	Args:  cobra.ExactArgs(1),
	RunE:  handleMargin,
}

// marginsCmd lists the most profitable commodities
var marginsCmd = &cobra.Command{
	Use:   "margins",
	Short: "List the commodities with the best trade margins",
	Args:  cobra.NoArgs,
	RunE:  handleMargins,
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Price chart maintenance",
}

// chartRebuildCmd replays cached markets into the price chart
var chartRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the price chart from cached markets",
	Args:  cobra.NoArgs,
	RunE:  handleChartRebuild,
}

// surveyCmd surveys the ship's waypoint
var surveyCmd = &cobra.Command{
	Use:   "survey [ship]",
	Short: "Survey the ship's waypoint and store the surveys",
	Args:  cobra.ExactArgs(1),
	RunE:  handleSurvey,
}

// extractCmd extracts with the best stored survey
var extractCmd = &cobra.Command{
	Use:   "extract [ship]",
	Short: "Extract resources, choosing the best stored survey",
	Args:  cobra.ExactArgs(1),
	RunE:  handleExtract,
}

// cooldownCmd shows a ship's cooldown
var cooldownCmd = &cobra.Command{
	Use:   "cooldown [ship]",
	Short: "Show a ship's remaining cooldown",
	Args:  cobra.ExactArgs(1),
	RunE:  handleCooldown,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

func handleGet(cmd *cobra.Command, args []string) error {
	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	rec, err := s.Get(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return output.WriteJSON(cmd.OutOrStdout(), rec, raw)
}

func handleRefresh(cmd *cobra.Command, args []string) error {
	startPage, _ := cmd.Flags().GetInt("start-page")

	s, _, log, err := newSession()
	if err != nil {
		return err
	}

	result, err := s.RefreshAll(cmd.Context(), args[0], startPage)
	var perr *cache.PaginationError
	if errors.As(err, &perr) {
		fmt.Fprintf(os.Stderr, "Refresh stopped on page %d. Resume with: stcache refresh %s --start-page %d\n",
			perr.Page, args[0], perr.ResumePage())
	}
	if err != nil {
		return err
	}

	log.Info().Str("collection", args[0]).Int("pages", result.Pages).Int("records", result.Records).Msg("refresh complete")
	return output.WriteJSON(cmd.OutOrStdout(), result, raw)
}

func handleList(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetBool("count")

	s, _, _, err := newSession()
	if err != nil {
		return err
	}

	if count {
		n, err := s.Count(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), n)
		return err
	}

	records, err := s.List(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return output.WriteRecords(cmd.OutOrStdout(), records, raw)
}

func handleInvalidate(cmd *cobra.Command, args []string) error {
	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	return s.Invalidate(args[0], args[1])
}

func handleMarket(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	rec, err := s.Market(cmd.Context(), args[0], force)
	if err != nil {
		return err
	}
	return output.WriteJSON(cmd.OutOrStdout(), rec, raw)
}

func handleMargin(cmd *cobra.Command, args []string) error {
	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	m, ok := s.BestMargin(args[0])
	if !ok {
		return fmt.Errorf("no prices recorded for %s", args[0])
	}
	return output.WriteJSON(cmd.OutOrStdout(), m, raw)
}

func handleMargins(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	margins := s.TopMargins(limit)
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), margins, true)
	}
	return output.WriteMargins(cmd.OutOrStdout(), margins)
}

func handleChartRebuild(cmd *cobra.Command, args []string) error {
	s, _, log, err := newSession()
	if err != nil {
		return err
	}
	n, err := s.RebuildChart(cmd.Context())
	if err != nil {
		return err
	}
	log.Info().Int("observations", n).Msg("price chart rebuilt")
	return nil
}

func handleSurvey(cmd *cobra.Command, args []string) error {
	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	out, err := s.SurveyAction(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return output.WriteOutcome(cmd.OutOrStdout(), out, raw)
}

func handleExtract(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")

	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	out, err := s.Extract(cmd.Context(), args[0], target)
	if err != nil {
		return err
	}
	return output.WriteOutcome(cmd.OutOrStdout(), out, raw)
}

func handleCooldown(cmd *cobra.Command, args []string) error {
	s, _, _, err := newSession()
	if err != nil {
		return err
	}
	if _, err := s.Cooldown(cmd.Context(), args[0]); err != nil {
		return err
	}
	remaining, _ := s.RemainingCooldown(args[0])
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %ds remaining\n", args[0], remaining)
	return err
}

// serveMetrics serves the metrics router on ln until ctx is done, then shuts
// the server down gracefully.
func serveMetrics(ctx context.Context, ln net.Listener, log zerolog.Logger) error {
	srv := &http.Server{
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func handleMCP(cmd *cobra.Command, args []string) error {
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	s, _, log, err := newSession()
	if err != nil {
		return err
	}

	if metricsAddr == "" {
		return newMCPServer(s, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
	}

	ln, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	metricsDone := make(chan error, 1)
	go func() { metricsDone <- serveMetrics(ctx, ln, log) }()

	runErr := newMCPServer(s, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	cancel()
	return errors.Join(runErr, <-metricsDone)
}
