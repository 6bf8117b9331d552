package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kalambet/prodfinder/internal/api"
	"github.com/kalambet/prodfinder/internal/search"
	"github.com/kalambet/prodfinder/internal/storage"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// stdout is swapped in tests.
var stdout io.Writer = os.Stdout

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// printResult writes a search result as a product table followed by its
// sources and the available filters.
func printResult(w io.Writer, res api.SearchResponse) {
	header := fmt.Sprintf("%q", res.Query)
	if res.Country != "" {
		header += " in " + res.Country
	}
	fmt.Fprintf(w, "%s  %s\n", colorize(colorBold, header), colorize(colorDim, showing(len(res.Products), res.Total)))

	if len(res.Products) == 0 {
		fmt.Fprintln(w, "No products found.")
	} else {
		printProducts(w, res.Products)
	}

	if len(res.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Sources"))
		for _, s := range res.Sources {
			fmt.Fprintf(w, "  %s %s\n", s.Title, colorize(colorDim, s.URI))
		}
	}
	if len(res.Facets.Countries) > 1 || len(res.Facets.Domains) > 1 {
		fmt.Fprintf(w, "\n%s countries: %s; domains: %s\n", colorize(colorBold, "Filters"),
			strings.Join(res.Facets.Countries, ", "), strings.Join(res.Facets.Domains, ", "))
	}
	if res.HistoryID != 0 {
		fmt.Fprintf(w, "\n%s\n", colorize(colorDim, fmt.Sprintf("Saved to history as #%d", res.HistoryID)))
	}
}

func showing(n, total int) string {
	if n == total {
		return search.ResultsLabel(total)
	}
	return fmt.Sprintf("%d of %s", n, search.ResultsLabel(total))
}

func printProducts(w io.Writer, products []storage.Product) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRICE\tCOUNTRY\tDOMAIN\tWEBSITE")
	for _, p := range products {
		website := p.Website
		if website == "" {
			website = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Price, p.Country, p.Domain, website)
	}
	tw.Flush()
}

func printHistory(w io.Writer, items []search.HistoryItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No searches yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, it := range items {
		term := it.Term
		if it.Country != "" {
			term += " @ " + it.Country
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\n",
			colorize(colorCyan, fmt.Sprintf("#%d", it.ID)), term, it.ResultsLabel, it.When, it.Ago)
	}
	tw.Flush()
}

const barWidth = 40

// printSeries draws one bar per recorded day, scaled to the highest price.
func printSeries(w io.Writer, s api.SeriesResponse) {
	fmt.Fprintln(w, colorize(colorBold, s.Identifier))
	if !s.EnoughData {
		fmt.Fprintln(w, "Not enough data to draw a chart. Prices are recorded once a day.")
	}
	if len(s.Values) == 0 {
		return
	}

	highest := s.Values[0]
	for _, v := range s.Values {
		highest = max(highest, v)
	}
	for i, v := range s.Values {
		n := barWidth
		if highest > 0 {
			n = int(v / highest * barWidth)
		}
		fmt.Fprintf(w, "  %s %10.2f %s\n", s.Labels[i], v, colorize(colorGreen, strings.Repeat("█", max(n, 1))))
	}
}

func printTracked(w io.Writer, products []storage.TrackedProduct) {
	if len(products) == 0 {
		fmt.Fprintln(w, "No prices recorded yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tSAMPLES\tFIRST\tLAST\tLAST PRICE")
	for _, p := range products {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%.2f\n", p.ProductIdentifier, p.Samples, p.FirstDate, p.LastDate, p.LastPrice)
	}
	tw.Flush()
}
