package domain

import "errors"

var (
	ErrNoSession        = errors.New("no active session")
	ErrItemNotFound     = errors.New("catalog item not found")
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrChannelClosed    = errors.New("event channel closed")
	ErrInvalidItemKey   = errors.New("invalid item key")
)
