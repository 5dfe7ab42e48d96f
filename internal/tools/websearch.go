package tools

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/normalize"
)

const WebSearchName = "web_search"

type webSearchArgs struct {
	Queries        []string `json:"queries"`
	MaxResults     []int    `json:"maxResults"`
	Topics         []string `json:"topics"`
	SearchDepth    []string `json:"searchDepth"`
	ExcludeDomains []string `json:"exclude_domains"`
}

type tavilyRequest struct {
	Query                    string   `json:"query"`
	Topic                    string   `json:"topic"`
	Days                     int      `json:"days,omitempty"`
	MaxResults               int      `json:"max_results"`
	SearchDepth              string   `json:"search_depth"`
	IncludeAnswer            bool     `json:"include_answer"`
	IncludeImages            bool     `json:"include_images"`
	IncludeImageDescriptions bool     `json:"include_image_descriptions"`
	ExcludeDomains           []string `json:"exclude_domains"`
}

type tavilyResponse struct {
	Answer  string            `json:"answer"`
	Results []SearchResult    `json:"results"`
	Images  []normalize.Image `json:"images"`
}

type SearchResult struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	RawContent    string `json:"raw_content,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
}

type QuerySearch struct {
	Query   string            `json:"query"`
	Results []SearchResult    `json:"results"`
	Images  []normalize.Image `json:"images"`
}

type WebSearchResult struct {
	Searches []QuerySearch `json:"searches"`
}

type QueryCompletion struct {
	Query        string `json:"query"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	Status       string `json:"status"`
	ResultsCount int    `json:"resultsCount"`
	ImagesCount  int    `json:"imagesCount"`
}

func webSearchTool(deps Deps) Definition {
	return Definition{
		Name:        WebSearchName,
		Description: "Search the web for information with 5-10 queries, max results and search depth.",
		Schema: Schema{Fields: []Field{
			{
				Name: "queries", Type: TypeArray, Required: true, MinItems: 1,
				Description: "Array of search queries to look up on the web. Default is 5 to 10 queries.",
				Items:       &Field{Type: TypeString},
			},
			{
				Name: "maxResults", Type: TypeArray, Default: []any{10},
				Description: "Array of maximum number of results to return per query. Default is 10.",
				Items:       &Field{Type: TypeInteger, Minimum: Float(1)},
			},
			{
				Name: "topics", Type: TypeArray, Default: []any{"general"},
				Description: "Array of topic types to search for. Default is general.",
				Items:       &Field{Type: TypeString, Enum: []string{"general", "news", "finance"}},
			},
			{
				Name: "searchDepth", Type: TypeArray, Default: []any{"basic"},
				Description: "Array of search depths to use. Default is basic. Use advanced for more detailed results.",
				Items:       &Field{Type: TypeString, Enum: []string{"basic", "advanced"}},
			},
			{
				Name: "exclude_domains", Type: TypeArray, Default: []any{},
				Description: "A list of domains to exclude from all search results. Default is an empty list.",
				Items:       &Field{Type: TypeString},
			},
		}},
		Execute: func(ctx context.Context, rc RequestContext, raw json.RawMessage) (any, error) {
			args, err := decodeArgs[webSearchArgs](raw)
			if err != nil {
				return nil, err
			}
			return runWebSearch(ctx, deps, rc, args)
		},
	}
}

func runWebSearch(ctx context.Context, deps Deps, rc RequestContext, args webSearchArgs) (WebSearchResult, error) {
	searches := make([]QuerySearch, len(args.Queries))
	group, gctx := errgroup.WithContext(ctx)
	for i, query := range args.Queries {
		group.Go(func() error {
			topic := pick(args.Topics, i, "general")
			req := tavilyRequest{
				Query:                    query,
				Topic:                    topic,
				MaxResults:               pickInt(args.MaxResults, i, 10),
				SearchDepth:              pick(args.SearchDepth, i, "basic"),
				IncludeAnswer:            true,
				IncludeImages:            true,
				IncludeImageDescriptions: true,
				ExcludeDomains:           args.ExcludeDomains,
			}
			if indexed(args.Topics, i) == "news" {
				req.Days = 7
			}
			var resp tavilyResponse
			headers := map[string]string{"Authorization": "Bearer " + deps.Keys.Tavily}
			if err := deps.HTTP.PostJSON(gctx, "tavily", deps.Endpoints.Tavily+"/search", req, headers, &resp); err != nil {
				return err
			}

			rc.annotate("query_completion", QueryCompletion{
				Query:        query,
				Index:        i,
				Total:        len(args.Queries),
				Status:       "completed",
				ResultsCount: len(resp.Results),
				ImagesCount:  len(resp.Images),
			})

			results := normalize.Dedupe(resp.Results, func(r SearchResult) string { return r.URL })
			for j := range results {
				if indexed(args.Topics, i) != "news" {
					results[j].PublishedDate = ""
				}
			}
			searches[i] = QuerySearch{
				Query:   query,
				Results: results,
				Images:  deps.Images.FilterImages(gctx, resp.Images),
			}
			deps.Logger.Debug("web search query done",
				zap.String("query", query),
				zap.Int("results", len(results)),
				zap.Int("images", len(searches[i].Images)))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return WebSearchResult{}, err
	}
	return WebSearchResult{Searches: searches}, nil
}

// pick returns values[i], else values[0], else fallback; empty strings fall
// through.
func pick(values []string, i int, fallback string) string {
	if v := indexed(values, i); v != "" {
		return v
	}
	if v := indexed(values, 0); v != "" {
		return v
	}
	return fallback
}

func pickInt(values []int, i int, fallback int) int {
	if i < len(values) && values[i] > 0 {
		return values[i]
	}
	if len(values) > 0 && values[0] > 0 {
		return values[0]
	}
	return fallback
}

func indexed(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
