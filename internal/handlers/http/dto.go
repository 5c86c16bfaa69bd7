package http

import (
	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"
	apperrors "catalogsync/pkg/errors"
)

type itemResponse struct {
	Key          domain.ItemKey      `json:"key"`
	ID           string              `json:"id"`
	Origin       domain.Origin       `json:"origin"`
	Kind         domain.MediaKind    `json:"kind"`
	Title        string              `json:"title"`
	PosterPath   string              `json:"posterPath,omitempty"`
	BackdropPath string              `json:"backdropPath,omitempty"`
	Counters     domain.Counters     `json:"counters"`
	Reaction     domain.ReactionKind `json:"reaction"`
}

func toItemResponse(item domain.CatalogItem) itemResponse {
	reaction := item.Reaction
	if reaction == "" {
		reaction = domain.ReactionNone
	}
	return itemResponse{
		Key:          item.Key(),
		ID:           item.ID,
		Origin:       item.Origin,
		Kind:         item.Kind,
		Title:        item.Title,
		PosterPath:   item.PosterPath,
		BackdropPath: item.BackdropPath,
		Counters:     item.Counters,
		Reaction:     reaction,
	}
}

func toItemResponses(items []domain.CatalogItem) []itemResponse {
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	return out
}

type viewResponse struct {
	Name          string             `json:"name"`
	Status        domain.ViewStatus  `json:"status"`
	Filter        domain.FilterState `json:"filter"`
	Page          int                `json:"page"`
	TotalPages    int                `json:"totalPages,omitempty"`
	TotalElements int64              `json:"totalElements,omitempty"`
	Items         []itemResponse     `json:"items"`
	Stale         bool               `json:"stale"`
	Error         string             `json:"error,omitempty"`
	Seq           uint64             `json:"seq"`
}

func toViewResponse(snap services.ViewSnapshot) viewResponse {
	resp := viewResponse{
		Name:   snap.Name,
		Status: snap.Status,
		Filter: snap.Filter,
		Page:   snap.Page,
		Items:  []itemResponse{},
		Stale:  snap.Stale,
		Seq:    snap.Seq,
	}
	if snap.Data != nil {
		resp.TotalPages = snap.Data.TotalPages
		resp.TotalElements = snap.Data.TotalElements
		resp.Items = toItemResponses(snap.Data.Items)
	}
	if snap.Err != nil {
		resp.Error = apperrors.UserMessage(snap.Err, "")
	}
	return resp
}
