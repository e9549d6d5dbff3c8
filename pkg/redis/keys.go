package redis

import "strings"

// Every key the services write lives under proc:<kind>:...
const keyNamespace = "proc"

const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindCache       = "cache"
	kindLock        = "lock"
)

func key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	b.WriteByte(':')
	b.WriteString(kind)
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			b.WriteByte(':')
			b.WriteString(p)
		}
	}
	return b.String()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return key(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return key(kindRateLimit, scope)
}

// CacheKey names one cached query of a model. An empty hash yields the
// model prefix (with trailing colon) used for invalidation.
func (c *Client) CacheKey(model, hash string) string {
	if hash == "" {
		return key(kindCache, model) + ":"
	}
	return key(kindCache, model, hash)
}

func (c *Client) LockKey(scope, id string) string {
	return key(kindLock, scope, id)
}
