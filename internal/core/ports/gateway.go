package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// AuthMode selects how a request is authenticated.
type AuthMode int

const (
	AuthDefault AuthMode = iota // whatever backend.auth_mode configures
	AuthBearer
	AuthCookie
	AuthNone
)

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	Auth   AuthMode
}

// Envelope is the backend response body {code, message, results, totalPages, totalElements}.
type Envelope struct {
	Code          int             `json:"code"`
	Message       string          `json:"message"`
	Results       json.RawMessage `json:"results"`
	TotalPages    int             `json:"totalPages"`
	TotalElements int64           `json:"totalElements"`
}

type Gateway interface {
	Call(ctx context.Context, req Request) (*Envelope, error)
}

// Decode unmarshals env.Results into T. Empty results decode to the zero value.
func Decode[T any](env *Envelope) (T, error) {
	var out T
	if env == nil || len(env.Results) == 0 || string(env.Results) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Results, &out); err != nil {
		return out, fmt.Errorf("failed to decode results: %w", err)
	}
	return out, nil
}
