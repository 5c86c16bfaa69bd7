package domain

type PlaylistID string

// Playlist holds references to catalog items, not copies.
type Playlist struct {
	ID    PlaylistID `json:"id"`
	Name  string     `json:"name"`
	Items []ItemKey  `json:"items"`
}

func (p Playlist) Contains(key ItemKey) bool {
	for _, k := range p.Items {
		if k == key {
			return true
		}
	}
	return false
}
