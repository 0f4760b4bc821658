package gate

import (
	"strings"
	"sync/atomic"
)

// OriginPolicy is the allow-list of request origins
// Origins may be replaced at runtime while requests are checked
type OriginPolicy struct {
	allowed atomic.Pointer[map[string]struct{}]
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{}
	p.Set(origins)
	return p
}

// Set replaces allowed origins
func (p *OriginPolicy) Set(origins []string) {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = normalizeOrigin(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	p.allowed.Store(&allowed)
}

// Allowed reports whether origin is in the allow-list
// Empty origin is never allowed
func (p *OriginPolicy) Allowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}

	allowed := p.allowed.Load()
	if allowed == nil {
		return false
	}
	_, ok := (*allowed)[origin]
	return ok
}

func (p *OriginPolicy) Len() int {
	allowed := p.allowed.Load()
	if allowed == nil {
		return 0
	}
	return len(*allowed)
}

// Scheme and host are case-insensitive, trailing slash ignored
func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	origin = strings.TrimSuffix(origin, "/")
	return strings.ToLower(origin)
}
