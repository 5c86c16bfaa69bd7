package services

import (
	"context"
	"net/http"
	"testing"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func loadedPlaylists(t *testing.T, gw *fakeGateway) (*PlaylistService, *recordingNotifier) {
	t.Helper()
	gw.handle = func(req ports.Request) (*ports.Envelope, error) {
		return envelope(t, []map[string]interface{}{
			{"id": 1, "name": "Favourites", "items": []map[string]interface{}{
				{"id": 550, "origin": "local"},
				{"id": "tt0133093", "origin": "external"},
			}},
			{"id": 2, "name": "Later", "items": []interface{}{}},
		}), nil
	}
	notifier := &recordingNotifier{}
	svc := NewPlaylistService(gw, notifier, zaptest.NewLogger(t).Sugar())
	_, err := svc.List(context.Background())
	require.NoError(t, err)
	return svc, notifier
}

func TestPlaylistService_List(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := loadedPlaylists(t, gw)

	list := svc.Cached()
	require.Len(t, list, 2)
	assert.Equal(t, domain.PlaylistID("1"), list[0].ID)
	assert.Equal(t, []domain.ItemKey{
		{Origin: domain.OriginLocal, ID: "550"},
		{Origin: domain.OriginExternal, ID: "tt0133093"},
	}, list[0].Items)

	// Returned playlists are copies.
	list[0].Items[0].ID = "mutated"
	p, err := svc.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "550", p.Items[0].ID)

	_, err = svc.Get("404")
	assert.ErrorIs(t, err, domain.ErrPlaylistNotFound)
}

func TestPlaylistService_CreateValidates(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewPlaylistService(gw, &recordingNotifier{}, nil)

	_, err := svc.Create(context.Background(), "")
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.KindOf(err))
	assert.Empty(t, gw.calls())
}

func TestPlaylistService_Create(t *testing.T) {
	gw := &fakeGateway{handle: func(req ports.Request) (*ports.Envelope, error) {
		return envelope(t, map[string]interface{}{"id": 7, "name": "Noir"}), nil
	}}
	notifier := &recordingNotifier{}
	svc := NewPlaylistService(gw, notifier, nil)

	p, err := svc.Create(context.Background(), "Noir")
	require.NoError(t, err)
	assert.Equal(t, domain.PlaylistID("7"), p.ID)
	assert.Len(t, svc.Cached(), 1)
	assert.Equal(t, http.MethodPost, gw.calls()[0].Method)
	assert.Len(t, notifier.bySeverity(domain.SeveritySuccess), 1)
}

func TestPlaylistService_AddItem(t *testing.T) {
	gw := &fakeGateway{}
	svc, notifier := loadedPlaylists(t, gw)
	gw.handle = nil
	ctx := context.Background()

	key := domain.ItemKey{Origin: domain.OriginLocal, ID: "680"}
	require.NoError(t, svc.AddItem(ctx, "2", key))

	calls := gw.calls()
	last := calls[len(calls)-1]
	assert.Equal(t, "/api/v1/playlists/2/items", last.Path)
	assert.Equal(t, map[string]string{"id": "680", "origin": "local"}, last.Body)

	p, _ := svc.Get("2")
	assert.True(t, p.Contains(key))

	// A second add is a no-op and never reaches the backend.
	before := len(gw.calls())
	require.NoError(t, svc.AddItem(ctx, "2", key))
	assert.Len(t, gw.calls(), before)
	assert.Len(t, notifier.bySeverity(domain.SeveritySuccess), 1)
}

func TestPlaylistService_FailureLeavesCollectionUntouched(t *testing.T) {
	gw := &fakeGateway{}
	svc, notifier := loadedPlaylists(t, gw)
	gw.handle = func(ports.Request) (*ports.Envelope, error) {
		return nil, apperrors.FromStatus(http.StatusConflict, "Item already in playlist")
	}

	key := domain.ItemKey{Origin: domain.OriginLocal, ID: "680"}
	err := svc.AddItem(context.Background(), "2", key)
	require.Error(t, err)

	p, _ := svc.Get("2")
	assert.False(t, p.Contains(key))
	errs := notifier.bySeverity(domain.SeverityError)
	require.Len(t, errs, 1)
	assert.Equal(t, "Item already in playlist", errs[0].Message)
}

func TestPlaylistService_RemoveItem(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := loadedPlaylists(t, gw)
	gw.handle = nil
	ctx := context.Background()

	ext := domain.ItemKey{Origin: domain.OriginExternal, ID: "tt0133093"}
	require.NoError(t, svc.RemoveItem(ctx, "1", ext))

	calls := gw.calls()
	last := calls[len(calls)-1]
	assert.Equal(t, http.MethodDelete, last.Method)
	assert.Equal(t, "/api/v1/playlists/1/items/tt0133093", last.Path)
	assert.Equal(t, "external", last.Query.Get("origin"))

	p, _ := svc.Get("1")
	assert.False(t, p.Contains(ext))
	assert.Len(t, p.Items, 1)

	err := svc.RemoveItem(ctx, "1", ext)
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestPlaylistService_Delete(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := loadedPlaylists(t, gw)
	gw.handle = nil

	require.NoError(t, svc.Delete(context.Background(), "1"))
	list := svc.Cached()
	require.Len(t, list, 1)
	assert.Equal(t, domain.PlaylistID("2"), list[0].ID)

	assert.ErrorIs(t, svc.Delete(context.Background(), "1"), domain.ErrPlaylistNotFound)
}

func TestPlaylistService_AuthExpiredIsNotToasted(t *testing.T) {
	gw := &fakeGateway{handle: func(ports.Request) (*ports.Envelope, error) {
		return nil, apperrors.NewAuthExpiredError()
	}}
	notifier := &recordingNotifier{}
	svc := NewPlaylistService(gw, notifier, nil)

	_, err := svc.List(context.Background())
	assert.True(t, apperrors.IsAuthExpired(err))
	assert.Empty(t, notifier.all())
}
