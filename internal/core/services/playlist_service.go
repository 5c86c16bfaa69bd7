package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/logger"
	"catalogsync/pkg/validation"

	"go.uber.org/zap"
)

const PlaylistsPath = "/api/v1/playlists"

type playlistItemDTO struct {
	ID     flexID `json:"id"`
	Origin string `json:"origin"`
}

type playlistDTO struct {
	ID    flexID            `json:"id"`
	Name  string            `json:"name"`
	Items []playlistItemDTO `json:"items"`
}

func (d playlistDTO) toPlaylist() domain.Playlist {
	p := domain.Playlist{ID: domain.PlaylistID(d.ID), Name: d.Name, Items: make([]domain.ItemKey, 0, len(d.Items))}
	for _, it := range d.Items {
		origin := domain.Origin(it.Origin)
		if origin == "" {
			origin = domain.OriginLocal
		}
		p.Items = append(p.Items, domain.ItemKey{Origin: origin, ID: string(it.ID)})
	}
	return p
}

// PlaylistService keeps the user's playlists. Every mutation waits for the backend
// before touching the local collection.
type PlaylistService struct {
	mu        sync.RWMutex
	playlists map[domain.PlaylistID]*domain.Playlist
	order     []domain.PlaylistID

	gateway  ports.Gateway
	notifier ports.Notifier
	logger   *zap.SugaredLogger
}

func NewPlaylistService(gateway ports.Gateway, notifier ports.Notifier, log *zap.SugaredLogger) *PlaylistService {
	if log == nil {
		log = logger.Nop()
	}
	return &PlaylistService{
		playlists: make(map[domain.PlaylistID]*domain.Playlist),
		gateway:   gateway,
		notifier:  notifier,
		logger:    log,
	}
}

// List reloads playlists from the backend and replaces the local collection.
func (s *PlaylistService) List(ctx context.Context) ([]domain.Playlist, error) {
	env, err := s.gateway.Call(ctx, ports.Request{Method: http.MethodGet, Path: PlaylistsPath})
	if err != nil {
		s.fail(err, "Could not load playlists")
		return nil, err
	}
	dtos, err := ports.Decode[[]playlistDTO](env)
	if err != nil {
		s.fail(err, "Could not load playlists")
		return nil, err
	}

	s.mu.Lock()
	s.playlists = make(map[domain.PlaylistID]*domain.Playlist, len(dtos))
	s.order = s.order[:0]
	for _, d := range dtos {
		p := d.toPlaylist()
		s.playlists[p.ID] = &p
		s.order = append(s.order, p.ID)
	}
	s.mu.Unlock()

	return s.Cached(), nil
}

// Cached returns the local collection without calling the backend.
func (s *PlaylistService) Cached() []domain.Playlist {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Playlist, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, clonePlaylist(s.playlists[id]))
	}
	return out
}

func (s *PlaylistService) Get(id domain.PlaylistID) (domain.Playlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playlists[id]
	if !ok {
		return domain.Playlist{}, fmt.Errorf("playlist %s: %w", id, domain.ErrPlaylistNotFound)
	}
	return clonePlaylist(p), nil
}

func (s *PlaylistService) Create(ctx context.Context, name string) (*domain.Playlist, error) {
	form := validation.PlaylistForm{Name: name}
	if fields := validation.ValidateStruct(form); fields != nil {
		return nil, apperrors.NewValidationError(fields)
	}

	env, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   PlaylistsPath,
		Body:   form,
	})
	if err != nil {
		s.fail(err, "Could not create playlist")
		return nil, err
	}
	dto, err := ports.Decode[playlistDTO](env)
	if err != nil {
		s.fail(err, "Could not create playlist")
		return nil, err
	}
	p := dto.toPlaylist()
	if p.Name == "" {
		p.Name = name
	}

	s.mu.Lock()
	if _, exists := s.playlists[p.ID]; !exists {
		s.order = append(s.order, p.ID)
	}
	s.playlists[p.ID] = &p
	s.mu.Unlock()

	s.push(domain.SeveritySuccess, fmt.Sprintf("Playlist %q created", p.Name))
	out := clonePlaylist(&p)
	return &out, nil
}

func (s *PlaylistService) Delete(ctx context.Context, id domain.PlaylistID) error {
	if _, err := s.Get(id); err != nil {
		return err
	}

	if _, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodDelete,
		Path:   PlaylistsPath + "/" + url.PathEscape(string(id)),
	}); err != nil {
		s.fail(err, "Could not delete playlist")
		return err
	}

	s.mu.Lock()
	name := ""
	if p, ok := s.playlists[id]; ok {
		name = p.Name
	}
	delete(s.playlists, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.push(domain.SeveritySuccess, fmt.Sprintf("Playlist %q deleted", name))
	return nil
}

// AddItem adds a reference to key. Adding an item already present is a no-op.
func (s *PlaylistService) AddItem(ctx context.Context, id domain.PlaylistID, key domain.ItemKey) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if p.Contains(key) {
		return nil
	}

	if _, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   PlaylistsPath + "/" + url.PathEscape(string(id)) + "/items",
		Body:   map[string]string{"id": key.ID, "origin": string(key.Origin)},
	}); err != nil {
		s.fail(err, "Could not add to playlist")
		return err
	}

	s.mu.Lock()
	if cur, ok := s.playlists[id]; ok && !cur.Contains(key) {
		cur.Items = append(cur.Items, key)
	}
	s.mu.Unlock()

	s.push(domain.SeveritySuccess, fmt.Sprintf("Added to %q", p.Name))
	return nil
}

func (s *PlaylistService) RemoveItem(ctx context.Context, id domain.PlaylistID, key domain.ItemKey) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if !p.Contains(key) {
		return fmt.Errorf("item %s in playlist %s: %w", key, id, domain.ErrItemNotFound)
	}

	q := url.Values{}
	q.Set("origin", string(key.Origin))
	if _, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodDelete,
		Path:   PlaylistsPath + "/" + url.PathEscape(string(id)) + "/items/" + url.PathEscape(key.ID),
		Query:  q,
	}); err != nil {
		s.fail(err, "Could not remove from playlist")
		return err
	}

	s.mu.Lock()
	if cur, ok := s.playlists[id]; ok {
		kept := cur.Items[:0]
		for _, k := range cur.Items {
			if k != key {
				kept = append(kept, k)
			}
		}
		cur.Items = kept
	}
	s.mu.Unlock()

	s.push(domain.SeveritySuccess, fmt.Sprintf("Removed from %q", p.Name))
	return nil
}

func (s *PlaylistService) fail(err error, fallback string) {
	if apperrors.IsAuthExpired(err) {
		return
	}
	s.logger.Warnw("playlist request failed", "error", err)
	s.push(domain.SeverityError, apperrors.UserMessage(err, fallback))
}

func (s *PlaylistService) push(sev domain.Severity, msg string) {
	if s.notifier != nil {
		s.notifier.Push(sev, msg, "")
	}
}

func clonePlaylist(p *domain.Playlist) domain.Playlist {
	out := *p
	out.Items = append([]domain.ItemKey(nil), p.Items...)
	return out
}
