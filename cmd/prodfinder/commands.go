package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/prodfinder/internal/api"
	"github.com/kalambet/prodfinder/internal/config"
	"github.com/kalambet/prodfinder/internal/search"
	"github.com/kalambet/prodfinder/internal/storage"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the web for products",
	Long: `Search the web for products and record their prices.

Examples:
  prodfinder search standing desk --country Germany
  prodfinder search "espresso machine" --sort price_asc --filter-domain amazon.de`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		country, _ := cmd.Flags().GetString("country")
		sort, _ := cmd.Flags().GetString("sort")
		filterCountry, _ := cmd.Flags().GetString("filter-country")
		filterDomain, _ := cmd.Flags().GetString("filter-domain")
		asJSON, _ := cmd.Flags().GetBool("json")

		if _, err := search.ParseSortOrder(sort); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSearch(cmd.Context(), client, api.SearchRequest{
			Query:         strings.Join(args, " "),
			Country:       country,
			Sort:          sort,
			CountryFilter: filterCountry,
			DomainFilter:  filterDomain,
		}, asJSON)
	},
}

func runSearch(ctx context.Context, client *apiClient, req api.SearchRequest, asJSON bool) error {
	printStep("Searching for %q...", req.Query)
	resp, err := client.post(ctx, "/search", req)
	if err != nil {
		return err
	}

	var res api.SearchResponse
	if err := decodeJSON(resp, &res); err != nil {
		return err
	}
	if res.Warning != "" {
		printWarning("%s", res.Warning)
	}
	if asJSON {
		return writeIndented(res)
	}
	printResult(stdout, res)
	return nil
}

func init() {
	searchCmd.Flags().String("country", "", "country to focus on")
	searchCmd.Flags().String("sort", "", "default, price_asc or price_desc")
	searchCmd.Flags().String("filter-country", "", "only show products for this country")
	searchCmd.Flags().String("filter-domain", "", "only show products from this domain")
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear past searches",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past searches, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/history")
		if err != nil {
			return err
		}

		var items []search.HistoryItem
		if err := decodeJSON(resp, &items); err != nil {
			return err
		}
		printHistory(stdout, items)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the results of a past search",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid history id %q", args[0])
		}
		sort, _ := cmd.Flags().GetString("sort")
		filterCountry, _ := cmd.Flags().GetString("filter-country")
		filterDomain, _ := cmd.Flags().GetString("filter-domain")

		q := url.Values{}
		if sort != "" {
			q.Set("sort", sort)
		}
		if filterCountry != "" {
			q.Set("country_filter", filterCountry)
		}
		if filterDomain != "" {
			q.Set("domain_filter", filterDomain)
		}
		path := fmt.Sprintf("/history/%d", id)
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var res api.SearchResponse
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printResult(stdout, res)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all past searches (recorded prices are kept)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL saved searches. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/history")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Search history cleared")
		return nil
	},
}

func init() {
	historyShowCmd.Flags().String("sort", "", "default, price_asc or price_desc")
	historyShowCmd.Flags().String("filter-country", "", "only show products for this country")
	historyShowCmd.Flags().String("filter-domain", "", "only show products from this domain")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- prices ---

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Inspect recorded price history",
}

var pricesShowCmd = &cobra.Command{
	Use:   "show [identifier]",
	Short: "Chart the price history of one product",
	Long: `Chart the price history of one product, given either its identifier
("name|domain", as listed by "prodfinder prices products") or --name and --domain.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		domain, _ := cmd.Flags().GetString("domain")

		q := url.Values{}
		switch {
		case len(args) == 1:
			q.Set("product", args[0])
		case name != "" && domain != "":
			q.Set("name", name)
			q.Set("domain", domain)
		default:
			return fmt.Errorf("an identifier or both --name and --domain are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/prices/series?"+q.Encode())
		if err != nil {
			return err
		}

		var series api.SeriesResponse
		if err := decodeJSON(resp, &series); err != nil {
			return err
		}
		printSeries(stdout, series)
		return nil
	},
}

var pricesProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "List products with recorded prices",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/prices/products?limit=%d", limit))
		if err != nil {
			return err
		}

		var products []storage.TrackedProduct
		if err := decodeJSON(resp, &products); err != nil {
			return err
		}
		printTracked(stdout, products)
		return nil
	},
}

func init() {
	pricesShowCmd.Flags().String("name", "", "product name")
	pricesShowCmd.Flags().String("domain", "", "shop domain")
	pricesProductsCmd.Flags().Int("limit", 20, "maximum number of products to list")
	pricesCmd.AddCommand(pricesShowCmd)
	pricesCmd.AddCommand(pricesProductsCmd)
}

// --- track ---

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Run the tracked searches once and record their prices",
	Long: `Run every query in tracker.queries once, record the prices found and exit.
Useful from cron or a systemd timer when the server is not kept running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		a, err := openApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		tr, err := a.newTracker()
		if err != nil {
			return err
		}
		if tr == nil {
			printWarning("No tracked queries. Set them with: prodfinder config set tracker.queries \"kettle@UK, standing desk\"")
			return nil
		}

		ctx := cmd.Context()
		printStep("Running tracked searches...")
		sum := tr.RunOnce(ctx)

		n, err := a.worker.Drain(ctx)
		if err != nil {
			return fmt.Errorf("recording prices: %w", err)
		}
		if sum.Failed > 0 {
			printWarning("%d of %d tracked searches failed", sum.Failed, sum.Failed+sum.Succeeded)
		}
		printSuccess("%d searches done, %d price batches recorded", sum.Succeeded, n)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(stdout, "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		if key == "gemini.api_key" {
			printSuccess("Stored %s", key)
		} else {
			printSuccess("Set %s = %s", key, value)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func writeIndented(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

