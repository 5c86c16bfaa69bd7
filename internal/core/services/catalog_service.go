package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/ports"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/tracing"
)

const (
	FilmsPath  = "/api/v1/films"
	SeriesPath = "/api/v1/series"
)

// flexID accepts both numeric and string identifiers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*f = flexID(n.String())
	return nil
}

type filmDTO struct {
	ID           flexID `json:"id"`
	Title        string `json:"title"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	PosterPath   string `json:"posterPath"`
	BackdropPath string `json:"backdropPath"`
	Views        int64  `json:"views"`
	Likes        int64  `json:"likes"`
	Dislikes     int64  `json:"dislikes"`
	Comments     int64  `json:"comments"`
	Reaction     string `json:"reaction"`
}

func (d filmDTO) toItem(kind domain.MediaKind) domain.CatalogItem {
	title := d.Title
	if title == "" {
		title = d.Name
	}
	if d.Type == "series" || d.Type == "SERIES" {
		kind = domain.KindSeries
	}
	reaction, err := domain.ParseReactionKind(d.Reaction)
	if err != nil {
		reaction = domain.ReactionNone
	}
	return domain.CatalogItem{
		ID:           string(d.ID),
		Origin:       domain.OriginLocal,
		Kind:         kind,
		Title:        title,
		PosterPath:   d.PosterPath,
		BackdropPath: d.BackdropPath,
		Counters: domain.Counters{
			Views:    d.Views,
			Likes:    d.Likes,
			Dislikes: d.Dislikes,
			Comments: d.Comments,
		},
		Reaction: reaction,
	}
}

var _ ports.PageFetcher = (*CatalogService)(nil)

// CatalogService fetches pages of one backend list endpoint.
type CatalogService struct {
	gateway ports.Gateway
	path    string
	kind    domain.MediaKind
}

func NewCatalogService(gateway ports.Gateway) *CatalogService {
	return NewListFetcher(gateway, FilmsPath, domain.KindMovie)
}

// NewListFetcher creates a fetcher for another paginated list, such as series.
func NewListFetcher(gateway ports.Gateway, path string, kind domain.MediaKind) *CatalogService {
	return &CatalogService{gateway: gateway, path: path, kind: kind}
}

func (s *CatalogService) FetchPage(ctx context.Context, filter domain.FilterState, page int) (domain.Page, error) {
	q := filter.Values()
	q.Set("page", strconv.Itoa(page))

	env, err := s.gateway.Call(ctx, ports.Request{
		Method: http.MethodGet,
		Path:   s.path,
		Query:  q,
	})
	if err != nil {
		return domain.Page{}, err
	}

	dtos, err := ports.Decode[[]filmDTO](env)
	if err != nil {
		return domain.Page{}, apperrors.WrapError(err, apperrors.ErrCodeServer, apperrors.GenericMessage, http.StatusOK)
	}

	items := make([]domain.CatalogItem, 0, len(dtos))
	for _, d := range dtos {
		items = append(items, d.toItem(s.kind))
	}
	return domain.Page{
		Index:         page,
		Items:         items,
		TotalPages:    env.TotalPages,
		TotalElements: env.TotalElements,
	}, nil
}

var _ ports.ReactionAPI = (*ReactionClient)(nil)

// ReactionClient sends reactions for local titles.
type ReactionClient struct {
	gateway ports.Gateway
}

func NewReactionClient(gateway ports.Gateway) *ReactionClient {
	return &ReactionClient{gateway: gateway}
}

// SendReaction posts the new reaction state. The returned counters are nil when the
// backend does not echo them.
func (c *ReactionClient) SendReaction(ctx context.Context, key domain.ItemKey, kind domain.ReactionKind) (*domain.Counters, error) {
	if key.Origin != domain.OriginLocal {
		return nil, apperrors.NewInvalidInputError("reactions are only supported for local titles")
	}

	ctx, span := tracing.TraceReaction(ctx, string(key.Origin), key.ID, string(kind))
	defer span.End()

	env, err := c.gateway.Call(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf("%s/%s/reactions", FilmsPath, url.PathEscape(key.ID)),
		Body:   map[string]string{"type": string(kind)},
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	dto, err := ports.Decode[*filmDTO](env)
	if err != nil || dto == nil {
		return nil, nil
	}
	counters := dto.toItem(domain.KindMovie).Counters
	return &counters, nil
}
