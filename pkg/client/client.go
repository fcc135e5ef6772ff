// Package client resolves the active client of a call from the configured
// client identifiers.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/api-dispatcher/pkg/api"
)

const logPrefix = "client:resolver"

// Identifier names where a client reference is read from (exactly one of
// Header, Data or Cookie) and the client field it is matched against.
type Identifier struct {
	Header      string `json:"header,omitempty" mapstructure:"header"`
	Data        string `json:"data,omitempty" mapstructure:"data"`
	Cookie      string `json:"cookie,omitempty" mapstructure:"cookie"`
	ClientField string `json:"clientField" mapstructure:"clientField"`
}

// Valid reports whether the identifier has a source and a client field.
func (i Identifier) Valid() bool {
	return i.Field() != "" && i.ClientField != ""
}

// Field returns the request field holding the client reference.
func (i Identifier) Field() string {
	switch {
	case i.Header != "":
		return i.Header
	case i.Data != "":
		return i.Data
	default:
		return i.Cookie
	}
}

// values returns the source of i in req with lower-cased keys.
func (i Identifier) values(req api.Request) map[string]string {
	out := map[string]string{}
	switch {
	case i.Header != "":
		for k, v := range req.Headers {
			out[strings.ToLower(k)] = v
		}
	case i.Data != "":
		for k, v := range req.Data {
			if s := scalarString(v); s != "" {
				out[strings.ToLower(k)] = s
			}
		}
	default:
		for k, v := range req.Cookies {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", t)
	}
	return ""
}

// Store looks up active clients. A nil client and nil error means not found.
type Store interface {
	GetByField(ctx context.Context, field, value string) (map[string]any, error)
}

// Resolver matches a call against the identifiers and loads its client.
type Resolver struct {
	identifiers []Identifier
	store       Store
}

// NewResolver creates a Resolver. Invalid identifiers are logged and skipped.
func NewResolver(identifiers []Identifier, store Store) *Resolver {
	valid := make([]Identifier, 0, len(identifiers))
	for _, id := range identifiers {
		if !id.Valid() {
			slog.Warn(fmt.Sprintf("%s - skipping invalid client identifier %+v", logPrefix, id))
			continue
		}
		valid = append(valid, id)
	}
	return &Resolver{identifiers: valid, store: store}
}

// Identifiers returns the valid identifiers.
func (r *Resolver) Identifiers() []Identifier {
	return r.identifiers
}

// Match returns the client field and value of the first identifier present in
// req. Both are empty when none matches.
func (r *Resolver) Match(req api.Request) (clientField, value string) {
	for _, id := range r.identifiers {
		values := id.values(req)
		if v := values[strings.ToLower(id.Field())]; v != "" {
			return id.ClientField, v
		}
	}
	return "", ""
}

// Resolve returns the active client of call, or nil when no identifier matches
// or no client is found.
func (r *Resolver) Resolve(ctx context.Context, call *api.Call) (map[string]any, error) {
	field, value := r.Match(call.Request)
	if field == "" {
		return nil, nil
	}

	client, err := r.store.GetByField(ctx, field, value)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to get client by %s: %w", logPrefix, field, err)
	}
	if client == nil {
		slog.Debug(fmt.Sprintf("%s - no active client for %s=%s", logPrefix, field, value))
	}
	return client, nil
}
