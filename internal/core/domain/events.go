package domain

// TopicNewMovie is the broker destination announcing newly published titles.
const TopicNewMovie = "/topic/new-movie"

// NewMovieEvent is the payload pushed on TopicNewMovie.
type NewMovieEvent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ActionURL   string `json:"actionUrl"`
}
