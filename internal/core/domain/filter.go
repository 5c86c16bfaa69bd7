package domain

import (
	"net/url"
	"strconv"
	"strings"
)

// FilterState is the predicate of a list view. It is a pure value.
type FilterState struct {
	Query       string `json:"q,omitempty"`
	Genre       string `json:"genre,omitempty"`
	ReleaseDate string `json:"releaseDate,omitempty"`
	Adult       *bool  `json:"adult,omitempty"`
}

// Equal reports deep equality, comparing Adult by value.
func (f FilterState) Equal(o FilterState) bool {
	if f.Query != o.Query || f.Genre != o.Genre || f.ReleaseDate != o.ReleaseDate {
		return false
	}
	if (f.Adult == nil) != (o.Adult == nil) {
		return false
	}
	return f.Adult == nil || *f.Adult == *o.Adult
}

// Values encodes the filter as backend query parameters. Unset fields are omitted.
func (f FilterState) Values() url.Values {
	v := url.Values{}
	if q := strings.TrimSpace(f.Query); q != "" {
		v.Set("q", q)
	}
	if f.Genre != "" {
		v.Set("genres", f.Genre)
	}
	if f.ReleaseDate != "" {
		v.Set("releaseDate", f.ReleaseDate)
	}
	if f.Adult != nil {
		v.Set("adult", strconv.FormatBool(*f.Adult))
	}
	return v
}

// Key is a stable string form of the filter, usable as a map key.
func (f FilterState) Key() string {
	return f.Values().Encode()
}

func (f FilterState) IsZero() bool {
	return f.Equal(FilterState{})
}

// WithAdult returns a copy of f with the adult flag set.
func (f FilterState) WithAdult(adult bool) FilterState {
	f.Adult = &adult
	return f
}
