package domain

import "fmt"

type ReactionKind string

const (
	ReactionNone    ReactionKind = "NONE"
	ReactionLike    ReactionKind = "LIKE"
	ReactionDislike ReactionKind = "DISLIKE"
)

func ParseReactionKind(s string) (ReactionKind, error) {
	switch k := ReactionKind(s); k {
	case ReactionNone, ReactionLike, ReactionDislike:
		return k, nil
	case "":
		return ReactionNone, nil
	default:
		return "", fmt.Errorf("unknown reaction %q", s)
	}
}

// Transition returns the state after a user asks for requested while in current.
// Asking for the active reaction again clears it.
func Transition(current, requested ReactionKind) ReactionKind {
	if current == "" {
		current = ReactionNone
	}
	if requested == current {
		return ReactionNone
	}
	return requested
}

// Delta is a like/dislike counter change.
type Delta struct {
	Likes    int64
	Dislikes int64
}

// CounterDelta is the change implied by moving from one state to another.
// The cross cases adjust both counters at once.
func CounterDelta(from, to ReactionKind) Delta {
	var d Delta
	switch from {
	case ReactionLike:
		d.Likes--
	case ReactionDislike:
		d.Dislikes--
	}
	switch to {
	case ReactionLike:
		d.Likes++
	case ReactionDislike:
		d.Dislikes++
	}
	return d
}

// Apply returns c shifted by d. Counters never go below zero.
func (c Counters) Apply(d Delta) Counters {
	c.Likes = clampZero(c.Likes + d.Likes)
	c.Dislikes = clampZero(c.Dislikes + d.Dislikes)
	return c
}

func clampZero(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
