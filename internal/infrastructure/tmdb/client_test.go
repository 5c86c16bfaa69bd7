package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/pkg/circuitbreaker"
	apperrors "catalogsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const popularBody = `{"page":1,"total_pages":1,"results":[
	{"id":550,"title":"Fight Club","poster_path":"/a.jpg","backdrop_path":"/b.jpg"},
	{"id":1399,"name":"Game of Thrones","poster_path":"/c.jpg"}
]}`

func newTestClient(t *testing.T, srv *httptest.Server, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = srv.URL
	if cfg.APIKey == "" && cfg.BearerToken == "" {
		cfg.APIKey = "key"
	}
	c, err := NewClient(cfg, nil, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return c
}

func TestClient_SectionMapsItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/movie/popular", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "en-US", r.URL.Query().Get("language"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(popularBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Language: "en-US"})
	items, err := c.Section(context.Background(), SectionPopular)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, domain.CatalogItem{
		ID:           "550",
		Origin:       domain.OriginExternal,
		Kind:         domain.KindExternal,
		Title:        "Fight Club",
		PosterPath:   "/a.jpg",
		BackdropPath: "/b.jpg",
		Reaction:     domain.ReactionNone,
	}, items[0])
	assert.Equal(t, "Game of Thrones", items[1].Title)
}

func TestClient_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer v4-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{BearerToken: "v4-token", APIKey: "ignored"})
	items, err := c.Section(context.Background(), SectionTrending)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_SectionIsCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(popularBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{CacheTTL: time.Minute})
	first, err := c.Section(context.Background(), SectionPopular)
	require.NoError(t, err)
	first[0].Title = "patched"

	second, err := c.Section(context.Background(), SectionPopular)
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", second[0].Title)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_SectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status_code":7,"status_message":"Invalid API key"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	_, err := c.Section(context.Background(), SectionPopular)
	assert.Equal(t, apperrors.ErrCodeExternalCatalog, apperrors.KindOf(err))
	assert.False(t, apperrors.IsAuthExpired(err))

	_, err = c.Section(context.Background(), "nope")
	assert.Equal(t, apperrors.ErrCodeExternalCatalog, apperrors.KindOf(err))
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{Breaker: circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute}})
	for i := 0; i < 4; i++ {
		_, err := c.Section(context.Background(), SectionUpcoming)
		assert.Error(t, err)
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, circuitbreaker.StateOpen.String(), c.BreakerState())
}

func TestClient_SectionsDegradeToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/popular":
			w.Write([]byte(popularBody))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	sections := c.Sections(context.Background(), SectionPopular, SectionTopRated, "unknown")

	require.Len(t, sections, 3)
	assert.Len(t, sections[SectionPopular], 2)
	assert.NotNil(t, sections[SectionTopRated])
	assert.Empty(t, sections[SectionTopRated])
	assert.Empty(t, sections["unknown"])
}

func TestClient_SectionsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":1,"title":"x"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, Config{})
	sections := c.Sections(context.Background())
	assert.Len(t, sections, len(DefaultSections))
	for _, name := range DefaultSections {
		assert.Len(t, sections[name], 1, name)
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://localhost"}, nil, nil)
	assert.Error(t, err)
}
