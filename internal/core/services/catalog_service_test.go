package services

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_FetchPage(t *testing.T) {
	gw := &fakeGateway{handle: func(req ports.Request) (*ports.Envelope, error) {
		return &ports.Envelope{
			Code:          200,
			Results:       json.RawMessage(`[{"id":550,"title":"Fight Club","views":12,"likes":5,"dislikes":1,"reaction":"LIKE"},{"id":"1399","name":"Game of Thrones","type":"series"}]`),
			TotalPages:    4,
			TotalElements: 80,
		}, nil
	}}
	svc := NewCatalogService(gw)
	adult := true

	page, err := svc.FetchPage(context.Background(), domain.FilterState{Query: " fight ", Genre: "drama", Adult: &adult}, 2)
	require.NoError(t, err)

	req := gw.calls()[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, FilmsPath, req.Path)
	assert.Equal(t, "fight", req.Query.Get("q"))
	assert.Equal(t, "drama", req.Query.Get("genres"))
	assert.Equal(t, "true", req.Query.Get("adult"))
	assert.Equal(t, "2", req.Query.Get("page"))

	assert.Equal(t, 2, page.Index)
	assert.Equal(t, 4, page.TotalPages)
	assert.Equal(t, int64(80), page.TotalElements)
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "550", first.ID)
	assert.Equal(t, domain.OriginLocal, first.Origin)
	assert.Equal(t, domain.KindMovie, first.Kind)
	assert.Equal(t, int64(5), first.Counters.Likes)
	assert.Equal(t, domain.ReactionLike, first.Reaction)

	second := page.Items[1]
	assert.Equal(t, "Game of Thrones", second.Title)
	assert.Equal(t, domain.KindSeries, second.Kind)
	assert.Equal(t, domain.ReactionNone, second.Reaction)
}

func TestCatalogService_FetchPageErrors(t *testing.T) {
	t.Run("gateway error passes through", func(t *testing.T) {
		want := apperrors.FromStatus(503, "")
		gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) { return nil, want }}
		_, err := NewCatalogService(gw).FetchPage(context.Background(), domain.FilterState{}, 1)
		assert.ErrorIs(t, err, want)
	})

	t.Run("undecodable results", func(t *testing.T) {
		gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) {
			return &ports.Envelope{Code: 200, Results: json.RawMessage(`{"not":"a list"}`)}, nil
		}}
		_, err := NewCatalogService(gw).FetchPage(context.Background(), domain.FilterState{}, 1)
		assert.Equal(t, apperrors.ErrCodeServer, apperrors.KindOf(err))
	})

	t.Run("empty results", func(t *testing.T) {
		gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) {
			return &ports.Envelope{Code: 200}, nil
		}}
		page, err := NewCatalogService(gw).FetchPage(context.Background(), domain.FilterState{}, 1)
		require.NoError(t, err)
		assert.True(t, page.Empty())
	})
}

func TestListFetcher_Series(t *testing.T) {
	gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) {
		return &ports.Envelope{Code: 200, Results: json.RawMessage(`[{"id":1,"name":"Dark"}]`)}, nil
	}}
	page, err := NewListFetcher(gw, SeriesPath, domain.KindSeries).FetchPage(context.Background(), domain.FilterState{}, 1)
	require.NoError(t, err)
	assert.Equal(t, SeriesPath, gw.calls()[0].Path)
	assert.Equal(t, domain.KindSeries, page.Items[0].Kind)
	assert.Equal(t, "Dark", page.Items[0].Title)
}

func TestReactionClient_SendReaction(t *testing.T) {
	gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) {
		return &ports.Envelope{Code: 200, Results: json.RawMessage(`{"id":550,"likes":6,"dislikes":1}`)}, nil
	}}
	client := NewReactionClient(gw)

	c, err := client.SendReaction(context.Background(), domain.ItemKey{Origin: domain.OriginLocal, ID: "550"}, domain.ReactionLike)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(6), c.Likes)

	req := gw.calls()[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/api/v1/films/550/reactions", req.Path)
	assert.Equal(t, map[string]string{"type": "LIKE"}, req.Body)
}

func TestReactionClient_NoEcho(t *testing.T) {
	gw := &fakeGateway{}
	c, err := NewReactionClient(gw).SendReaction(context.Background(), domain.ItemKey{Origin: domain.OriginLocal, ID: "1"}, domain.ReactionNone)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestReactionClient_RejectsExternal(t *testing.T) {
	gw := &fakeGateway{}
	_, err := NewReactionClient(gw).SendReaction(context.Background(), domain.ItemKey{Origin: domain.OriginExternal, ID: "tt1"}, domain.ReactionLike)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.KindOf(err))
	assert.Empty(t, gw.calls())
}
