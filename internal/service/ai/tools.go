package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"mojochat/internal/config"
)

const (
	SearchToolName  = "searchNudistResources"
	WeatherToolName = "getWeather"
)

// NewTools builds every capability the model may call. Google and DuckDuckGo
// are only used as fallbacks behind Tavily.
func NewTools(ctx context.Context, cfg config.ToolsConfig, logger *zap.Logger) ([]tool.InvokableTool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	search, err := newSearchTool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return []tool.InvokableTool{search, newWeatherTool(cfg)}, nil
}

type searchTool struct {
	apiKey     string
	endpoint   string
	google     tool.InvokableTool
	duck       tool.InvokableTool
	httpClient *http.Client
	limiter    *toolRateLimiter
	logger     *zap.Logger
}

type searchParams struct {
	Query string `json:"query"`
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchOutput struct {
	Results  []searchResult  `json:"results,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func newSearchTool(ctx context.Context, cfg config.ToolsConfig, logger *zap.Logger) (tool.InvokableTool, error) {
	st := &searchTool{
		apiKey:     cfg.TavilyAPIKey,
		endpoint:   cfg.TavilyURL,
		httpClient: &http.Client{Timeout: ToolHTTPTimeout},
		limiter:    newToolRateLimiter(SearchRateLimit, SearchRateWindow),
		logger:     logger,
	}
	if st.endpoint == "" {
		st.endpoint = "https://api.tavily.com/search"
	}

	if cfg.GoogleAPIKey != "" && cfg.GoogleSearchEngineID != "" {
		googleTool, err := googlesearch.NewTool(ctx, &googlesearch.Config{
			ToolName:       "web_search_google",
			ToolDesc:       "Google Search Tool",
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleSearchEngineID,
			Lang:           "en",
			Num:            5,
		})
		if err != nil {
			return nil, fmt.Errorf("init google search: %w", err)
		}
		st.google = googleTool
	} else {
		logger.Info("google search fallback disabled: missing api key or engine id")
	}

	if cfg.DuckDuckGo {
		duckTool, err := duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   "web_search_ddg",
			ToolDesc:   "DuckDuckGo Search Tool (no token required)",
			MaxResults: 3,
			Region:     duckduckgo.RegionWT,
			Timeout:    ToolHTTPTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init duckduckgo search: %w", err)
		}
		st.duck = duckTool
	}

	info := &schema.ToolInfo{
		Name: SearchToolName,
		Desc: "Searches the web for recent news, events, resources, laws, venues, or organizations related to non-sexual nudism. " +
			"Use ONLY when internal knowledge is likely outdated, insufficient, or the user asks for current or specific external information.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Desc:     "Specific search query detailing the information needed, e.g. 'nudist events california 2024' or 'AANR contact info'",
				Type:     schema.String,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, st.run), nil
}

// run never fails past its own boundary: every problem becomes an error payload.
func (s *searchTool) run(ctx context.Context, params *searchParams) (*searchOutput, error) {
	query := ""
	if params != nil {
		query = strings.TrimSpace(params.Query)
	}
	if query == "" {
		return &searchOutput{Error: "query must not be empty"}, nil
	}
	key := "global"
	if chatID, ok := ToolChatFromContext(ctx); ok {
		key = "chat:" + chatID
	}
	if !s.limiter.Allow(key) {
		return &searchOutput{Error: "search rate limit exceeded, please retry in a minute"}, nil
	}

	results, err := s.tavily(ctx, query)
	if err == nil {
		return &searchOutput{Results: results, Provider: "tavily"}, nil
	}
	s.logger.Warn("tavily search failed", zap.Error(err))
	primaryErr := err

	payload, _ := json.Marshal(map[string]string{"query": query})
	for _, fb := range []struct {
		name string
		tool tool.InvokableTool
	}{{"google", s.google}, {"duckduckgo", s.duck}} {
		if fb.tool == nil {
			continue
		}
		out, err := fb.tool.InvokableRun(ctx, string(payload))
		if err != nil {
			s.logger.Warn("search fallback failed", zap.String("provider", fb.name), zap.Error(err))
			continue
		}
		return &searchOutput{Provider: fb.name, Raw: rawJSON(out)}, nil
	}
	return &searchOutput{Error: "Failed to execute search: " + primaryErr.Error()}, nil
}

func (s *searchTool) tavily(ctx context.Context, query string) ([]searchResult, error) {
	if s.apiKey == "" {
		return nil, errors.New("tavily api key not configured")
	}
	body, err := json.Marshal(map[string]any{
		"api_key":        s.apiKey,
		"query":          query,
		"search_depth":   "basic",
		"include_answer": false,
		"max_results":    5,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := doJSON(s.httpClient, req, &resp); err != nil {
		return nil, fmt.Errorf("tavily: %w", err)
	}
	results := make([]searchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, searchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return results, nil
}

type weatherTool struct {
	endpoint   string
	httpClient *http.Client
}

type weatherParams struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func newWeatherTool(cfg config.ToolsConfig) tool.InvokableTool {
	wt := &weatherTool{
		endpoint:   cfg.WeatherURL,
		httpClient: &http.Client{Timeout: ToolHTTPTimeout},
	}
	if wt.endpoint == "" {
		wt.endpoint = "https://api.open-meteo.com/v1/forecast"
	}
	info := &schema.ToolInfo{
		Name: WeatherToolName,
		Desc: "Get the current weather and today's forecast at a location",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"latitude": {
				Desc:     "Latitude in decimal degrees",
				Type:     schema.Number,
				Required: true,
			},
			"longitude": {
				Desc:     "Longitude in decimal degrees",
				Type:     schema.Number,
				Required: true,
			},
		}),
	}
	return utils.NewTool(info, wt.run)
}

func (w *weatherTool) run(ctx context.Context, params *weatherParams) (string, error) {
	if params == nil || params.Latitude == nil || params.Longitude == nil {
		return errorPayload("latitude and longitude are required"), nil
	}
	lat, lon := *params.Latitude, *params.Longitude
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return errorPayload("coordinates out of range"), nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m")
	q.Set("hourly", "temperature_2m")
	q.Set("daily", "sunrise,sunset")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return errorPayload(err.Error()), nil
	}
	var forecast json.RawMessage
	if err := doJSON(w.httpClient, req, &forecast); err != nil {
		return errorPayload("weather lookup failed: " + err.Error()), nil
	}
	return string(forecast), nil
}
