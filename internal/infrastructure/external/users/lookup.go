// Package users resolves student display names through the users service.
package users

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/alem-hub/friendship-streaks/internal/domain/shared"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/external/apiclient"
	"github.com/alem-hub/friendship-streaks/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/friendship-streaks/pkg/logger"
)

// Lookup resolves a display name. An empty name with a nil error means the
// student has no profile name.
type Lookup interface {
	DisplayName(ctx context.Context, id shared.StudentID) (string, error)
}

type profileResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// HTTPLookup calls GET /profile/{id} on the users service.
type HTTPLookup struct {
	api *apiclient.Client
}

// NewHTTPLookup wraps an API client configured for the users service.
func NewHTTPLookup(api *apiclient.Client) *HTTPLookup {
	return &HTTPLookup{api: api}
}

// DisplayName returns the profile name. An unknown student yields "".
func (l *HTTPLookup) DisplayName(ctx context.Context, id shared.StudentID) (string, error) {
	var resp profileResponse
	err := l.api.Do(ctx, http.MethodGet, "/profile/"+url.PathEscape(id.String()), nil, &resp)
	if errors.Is(err, apiclient.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", shared.WrapError("profile", "DisplayName", shared.ErrProfileLookupFailed, "lookup "+id.String(), err)
	}
	if name := strings.TrimSpace(resp.DisplayName); name != "" {
		return name, nil
	}
	return strings.TrimSpace(resp.Name), nil
}

// PlaceholderLookup knows no names; callers fall back to placeholders.
type PlaceholderLookup struct{}

// DisplayName always returns "".
func (PlaceholderLookup) DisplayName(context.Context, shared.StudentID) (string, error) {
	return "", nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHING DECORATOR
// ══════════════════════════════════════════════════════════════════════════════

// CachedLookup serves names from Redis and fills the cache on a miss.
// Cache failures are logged and the call falls through to the next lookup.
type CachedLookup struct {
	next  Lookup
	cache *redis.NameCache
	log   *logger.Logger
}

// NewCachedLookup decorates next with a name cache.
func NewCachedLookup(next Lookup, cache *redis.NameCache, log *logger.Logger) *CachedLookup {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedLookup{next: next, cache: cache, log: log.With(logger.Component("name-cache"))}
}

// DisplayName implements Lookup.
func (c *CachedLookup) DisplayName(ctx context.Context, id shared.StudentID) (string, error) {
	name, ok, err := c.cache.Get(ctx, id.String())
	if err != nil {
		c.log.Warn("name cache read failed", logger.StudentID(id.String()), logger.Err(err))
	} else if ok {
		return name, nil
	}

	name, err = c.next.DisplayName(ctx, id)
	if err != nil || name == "" {
		return name, err
	}
	if err := c.cache.Set(ctx, id.String(), name); err != nil {
		c.log.Warn("name cache write failed", logger.StudentID(id.String()), logger.Err(err))
	}
	return name, nil
}
