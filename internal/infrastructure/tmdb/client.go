package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	"catalogsync/pkg/cache"
	"catalogsync/pkg/circuitbreaker"
	"catalogsync/pkg/config"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.themoviedb.org/3"
	maxBodyBytes   = 4 << 20
)

// Section names accepted by Sections.
const (
	SectionTrending   = "trending"
	SectionPopular    = "popular"
	SectionTopRated   = "top_rated"
	SectionUpcoming   = "upcoming"
	SectionNowPlaying = "now_playing"
	SectionTVPopular  = "tv_popular"
)

var sectionPaths = map[string]string{
	SectionTrending:   "/trending/movie/week",
	SectionPopular:    "/movie/popular",
	SectionTopRated:   "/movie/top_rated",
	SectionUpcoming:   "/movie/upcoming",
	SectionNowPlaying: "/movie/now_playing",
	SectionTVPopular:  "/tv/popular",
}

// DefaultSections is the home page section set.
var DefaultSections = []string{SectionTrending, SectionPopular, SectionTopRated}

type Config struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	Language    string
	Timeout     time.Duration
	CacheTTL    time.Duration
	Breaker     circuitbreaker.Config
}

func ConfigFrom(cfg *config.Config) Config {
	t := cfg.TMDB
	return Config{
		BaseURL:     t.BaseURL,
		APIKey:      t.APIKey,
		BearerToken: t.BearerToken,
		Language:    t.Language,
		Timeout:     t.Timeout,
		CacheTTL:    t.CacheTTL,
		Breaker: circuitbreaker.Config{
			Name:                "tmdb",
			FailureThreshold:    t.Breaker.FailureThreshold,
			Timeout:             t.Breaker.Timeout,
			MaxRequestsHalfOpen: t.Breaker.MaxRequestsHalfOpen,
		},
	}
}

type listResponse struct {
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Results    []tmdbHit `json:"results"`
}

type tmdbHit struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
	VoteCount    int64  `json:"vote_count"`
}

var _ ports.ExternalCatalog = (*Client)(nil)

// Client reads public lists from TMDB v3. Failures surface as EXTERNAL_CATALOG_ERROR and
// never involve the backend session.
type Client struct {
	baseURL     string
	apiKey      string
	bearerToken string
	language    string
	cacheTTL    time.Duration

	httpClient *http.Client
	cache      *cache.CacheWithFallback
	breaker    *circuitbreaker.CircuitBreaker
	metrics    ports.MetricsCollector
	logger     *zap.SugaredLogger
}

func NewClient(cfg Config, metrics ports.MetricsCollector, log *zap.SugaredLogger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid tmdb base url: %w", err)
	}
	if cfg.APIKey == "" && cfg.BearerToken == "" {
		return nil, fmt.Errorf("tmdb api key or bearer token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = "tmdb"
	}
	if log == nil {
		log = logger.Nop()
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		bearerToken: cfg.BearerToken,
		language:    cfg.Language,
		cacheTTL:    cfg.CacheTTL,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		cache:       cache.NewCacheWithFallback(cfg.CacheTTL),
		metrics:     metrics,
		logger:      log,
	}
	c.breaker = circuitbreaker.New(cfg.Breaker, func(name string, from, to circuitbreaker.State) {
		c.logger.Warnw("tmdb circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return c, nil
}

// Sections fetches every named list in parallel. A failed or unknown section comes
// back empty and is only logged.
func (c *Client) Sections(ctx context.Context, names ...string) map[string][]domain.CatalogItem {
	if len(names) == 0 {
		names = DefaultSections
	}

	var (
		mu  sync.Mutex
		wg  conc.WaitGroup
		out = make(map[string][]domain.CatalogItem, len(names))
	)
	for _, name := range names {
		name := name
		wg.Go(func() {
			items, err := c.Section(ctx, name)
			if err != nil {
				c.logger.Warnw("tmdb section unavailable", "section", name, "error", err)
				items = []domain.CatalogItem{}
			}
			mu.Lock()
			out[name] = items
			mu.Unlock()
		})
	}
	wg.Wait()
	return out
}

// Section fetches one list, served from cache within the TTL.
func (c *Client) Section(ctx context.Context, name string) ([]domain.CatalogItem, error) {
	path, ok := sectionPaths[name]
	if !ok {
		return nil, apperrors.NewExternalCatalogError(fmt.Errorf("unknown section %q", name))
	}

	value, err := c.cache.GetOrSet(ctx, "section:"+name+":"+c.language, func(ctx context.Context) (interface{}, error) {
		return c.fetchList(ctx, path)
	}, c.cacheTTL)

	if c.metrics != nil {
		c.metrics.RecordExternalCatalog(name, err == nil)
	}
	if err != nil {
		return nil, err
	}

	items := value.([]domain.CatalogItem)
	// Callers may patch items; the cached slice stays untouched.
	return append([]domain.CatalogItem(nil), items...), nil
}

func (c *Client) fetchList(ctx context.Context, path string) ([]domain.CatalogItem, error) {
	var resp listResponse
	err := c.breaker.Execute(ctx, func() error {
		return c.get(ctx, path, &resp)
	})
	if err != nil {
		if apperrors.GetAppError(err) != nil {
			return nil, err
		}
		return nil, apperrors.NewExternalCatalogError(err)
	}

	items := make([]domain.CatalogItem, 0, len(resp.Results))
	for _, hit := range resp.Results {
		title := hit.Title
		if title == "" {
			title = hit.Name
		}
		items = append(items, domain.CatalogItem{
			ID:           strconv.FormatInt(hit.ID, 10),
			Origin:       domain.OriginExternal,
			Kind:         domain.KindExternal,
			Title:        title,
			PosterPath:   hit.PosterPath,
			BackdropPath: hit.BackdropPath,
			Reaction:     domain.ReactionNone,
		})
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	q := url.Values{}
	if c.apiKey != "" && c.bearerToken == "" {
		q.Set("api_key", c.apiKey)
	}
	if c.language != "" {
		q.Set("language", c.language)
	}
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debugw("tmdb request",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("tmdb returned status %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode tmdb response: %w", err)
	}
	return nil
}

// BreakerState reports the breaker state for the status surface.
func (c *Client) BreakerState() string {
	return c.breaker.GetState().String()
}
