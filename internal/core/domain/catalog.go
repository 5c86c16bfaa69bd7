package domain

import (
	"fmt"
	"strings"
)

// Origin tells where a catalog item comes from. Items of different origins never merge.
type Origin string

const (
	OriginLocal    Origin = "local"
	OriginExternal Origin = "external"
)

type MediaKind string

const (
	KindMovie    MediaKind = "movie"
	KindSeries   MediaKind = "series"
	KindExternal MediaKind = "external"
)

// ItemKey identifies a catalog item.
type ItemKey struct {
	Origin Origin
	ID     string
}

func (k ItemKey) String() string {
	return string(k.Origin) + ":" + k.ID
}

// ParseItemKey parses the "origin:id" form produced by ItemKey.String.
func ParseItemKey(s string) (ItemKey, error) {
	origin, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return ItemKey{}, fmt.Errorf("%w: %q", ErrInvalidItemKey, s)
	}
	key := ItemKey{Origin: Origin(origin), ID: id}
	if !key.Valid() {
		return ItemKey{}, fmt.Errorf("%w: %q", ErrInvalidItemKey, s)
	}
	return key, nil
}

func (k ItemKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ItemKey) UnmarshalText(b []byte) error {
	parsed, err := ParseItemKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func (k ItemKey) Valid() bool {
	return k.ID != "" && (k.Origin == OriginLocal || k.Origin == OriginExternal)
}

type Counters struct {
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
	Comments int64 `json:"comments"`
}

type CatalogItem struct {
	ID           string
	Origin       Origin
	Kind         MediaKind
	Title        string
	PosterPath   string
	BackdropPath string
	Counters     Counters
	// Reaction is the signed-in user's current reaction, NONE when unknown.
	Reaction ReactionKind
}

func (i CatalogItem) Key() ItemKey {
	return ItemKey{Origin: i.Origin, ID: i.ID}
}

// Page is one server page of a list view. It is replaced wholesale on refetch.
type Page struct {
	Index         int
	Items         []CatalogItem
	TotalPages    int
	TotalElements int64
}

func (p Page) Empty() bool {
	return len(p.Items) == 0
}

// Keys returns the item keys in page order.
func (p Page) Keys() []ItemKey {
	keys := make([]ItemKey, len(p.Items))
	for i, item := range p.Items {
		keys[i] = item.Key()
	}
	return keys
}
