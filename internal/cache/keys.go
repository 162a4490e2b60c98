package cache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Keys builds namespaced cache keys of the form
// <prefix>:<domain>:<parts-joined-by-colon>, e.g. fixia:user:42.
// Construction is deterministic: the same logical inputs always produce the
// same key, so keys double as identity for cached resources.
type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	return Keys{prefix: prefix}
}

func (k Keys) build(parts ...string) string {
	return k.prefix + ":" + strings.Join(parts, ":")
}

// User keys a user's cached profile.
func (k Keys) User(userID string) string {
	return k.build("user", userID)
}

// UserSession keys a user's session record.
func (k Keys) UserSession(userID string) string {
	return k.build("session", userID)
}

// UserServices keys the list of services owned by a user.
func (k Keys) UserServices(userID string) string {
	return k.build("user", userID, "services")
}

// ServiceDetail keys a single service's detail payload.
func (k Keys) ServiceDetail(serviceID string) string {
	return k.build("service", serviceID)
}

// ServicesList keys a filtered marketplace listing. The filter value is
// serialized canonically (JSON with sorted object keys), so two filter
// objects with equal contents map to the same key regardless of the order
// their fields were populated in. A filter with no set fields keys the
// same entry as nil: both mean the unfiltered listing.
func (k Keys) ServicesList(filters any) string {
	return k.build("services", "list", canonical(filters))
}

// Categories keys the category catalog.
func (k Keys) Categories() string {
	return k.build("categories")
}

// Favorites keys a user's favorites list.
func (k Keys) Favorites(userID string) string {
	return k.build("favorites", userID)
}

// AnalyticsSummary keys an analytics summary for a period.
func (k Keys) AnalyticsSummary(period string) string {
	return k.build("analytics", "summary", period)
}

// RateLimit keys a rate-limit window for an identity on a route.
func (k Keys) RateLimit(identity, route string) string {
	return k.build("rate_limit", identity, route)
}

// Response keys a cached HTTP response by method, URL and caller identity.
func (k Keys) Response(method, url, identity string) string {
	return k.build("response", method, url, identity)
}

// canonical serializes a value so that logically equal inputs yield equal
// strings. Structs and maps are flattened through a map, which encoding/json
// marshals with sorted keys. nil and objects whose fields are all unset
// collapse to "all", so a zero-value filter struct and a nil filter name
// the same entry.
func canonical(v any) string {
	if v == nil {
		return "all"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		// Not an object; the direct encoding is already canonical.
		return string(data)
	}
	if len(m) == 0 {
		return "all"
	}
	out, err := json.Marshal(m)
	if err != nil {
		return string(data)
	}
	return string(out)
}
