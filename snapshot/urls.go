package snapshot

import (
	"net/url"
	"strings"

	"github.com/vixlabs/vix/cache"
)

// resolveURL turns raw into an absolute URL against base. data: and blob:
// URIs pass through untouched, protocol-relative URLs inherit the base
// scheme, everything else goes through standard reference resolution.
// Results are memoized per (base, raw) pair.
func (s *Snapshotter) resolveURL(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:") || strings.HasPrefix(raw, "blob:") {
		return raw
	}
	if base == nil {
		return raw
	}

	var key string
	if s.cfg.Cache != nil {
		key = cache.Key(cache.NSURL, base.String(), raw)
		if v, ok := s.cfg.Cache.GetString(key); ok {
			return v
		}
	}

	resolved := raw
	if strings.HasPrefix(raw, "//") {
		scheme := base.Scheme
		if scheme == "" {
			scheme = "https"
		}
		resolved = scheme + ":" + raw
	} else if ref, err := url.Parse(raw); err == nil {
		resolved = base.ResolveReference(ref).String()
	}

	if s.cfg.Cache != nil {
		s.cfg.Cache.Set(key, resolved, s.cfg.URLTTL)
	}
	return resolved
}

// ParseCSSURL extracts the image reference from a CSS background-image
// value: url("x"), url('x'), and bare url(x) forms. Gradients and "none"
// yield the empty string.
func ParseCSSURL(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "none") {
		return ""
	}
	i := strings.Index(strings.ToLower(value), "url(")
	if i < 0 {
		return ""
	}
	rest := value[i+len("url("):]
	j := strings.IndexByte(rest, ')')
	if j < 0 {
		return ""
	}
	inner := strings.TrimSpace(rest[:j])
	inner = strings.Trim(inner, `"'`)
	return strings.TrimSpace(inner)
}
