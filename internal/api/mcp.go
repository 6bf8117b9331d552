package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/prodfinder/internal/search"
)

const recentHistoryItems = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service SearchService
	Version string
}

// NewMCPServer creates an MCP server with the product search tools and
// resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"prodfinder",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("prodfinder finds products and prices on the web and keeps a local history of searches and daily prices."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Search the web for products matching a query. Results are saved to search history and their prices recorded."),
			mcp.WithString("query", mcp.Description("What to look for"), mcp.Required()),
			mcp.WithString("country", mcp.Description("Country to focus on, e.g. Germany")),
			mcp.WithString("sort", mcp.Description("default, price_asc or price_desc")),
			mcp.WithString("country_filter", mcp.Description("Only return products for this country")),
			mcp.WithString("domain_filter", mcp.Description("Only return products from this domain")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("price_history",
			mcp.WithDescription("Return the recorded daily prices of a product, oldest first."),
			mcp.WithString("product", mcp.Description("Product identifier, \"name|domain\"")),
			mcp.WithString("name", mcp.Description("Product name, used with domain")),
			mcp.WithString("domain", mcp.Description("Shop domain, used with name")),
		),
		mcpPriceHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("search_history",
			mcp.WithDescription("List past searches, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50)")),
		),
		mcpSearchHistory(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_history",
			mcp.WithDescription("Delete all saved searches. Recorded prices are kept."),
			mcp.WithBoolean("confirm", mcp.Description("Must be true"), mcp.Required()),
		),
		mcpClearHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"history://recent",
			"Recent Searches",
			mcp.WithResourceDescription(fmt.Sprintf("Last %d searches", recentHistoryItems)),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		order, err := search.ParseSortOrder(req.GetString("sort", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}

		res, err := deps.Service.Search(ctx, query, req.GetString("country", ""))
		var warning string
		if errors.Is(err, search.ErrHistoryNotSaved) {
			warning = err.Error()
		} else if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		view := search.View{
			Sort:    order,
			Country: req.GetString("country_filter", ""),
			Domain:  req.GetString("domain_filter", ""),
		}
		return mcpJSON(viewResponse(res, view, warning))
	}
}

func mcpPriceHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var (
			series search.Series
			err    error
		)
		if id := req.GetString("product", ""); id != "" {
			series, err = deps.Service.Series(ctx, id)
		} else {
			series, err = deps.Service.SeriesFor(ctx, req.GetString("name", ""), req.GetString("domain", ""))
		}
		if err != nil {
			return mcpError(fmt.Sprintf("price history failed: %v", err)), nil
		}
		return mcpJSON(SeriesResponse{Series: series, EnoughData: series.HasEnoughData()})
	}
}

func mcpSearchHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		items, err := deps.Service.History(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing history failed: %v", err)), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(items) {
			items = items[:limit]
		}
		return mcpJSON(items)
	}
}

func mcpClearHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !req.GetBool("confirm", false) {
			return mcpError("confirm must be true to clear history"), nil
		}
		if err := deps.Service.ClearHistory(ctx); err != nil {
			return mcpError(fmt.Sprintf("clearing history failed: %v", err)), nil
		}
		return mcpText("Search history cleared"), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		items, err := deps.Service.History(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent searches: %w", err)
		}
		if len(items) > recentHistoryItems {
			items = items[:recentHistoryItems]
		}

		b, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal searches: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
