// Package snapshot converts a live DOM into an immutable tree of typed
// nodes: the input for every extractor and for the relevance filter.
//
// Walking is deterministic: element children in document order, skippable
// subtrees (script/style/svg/iframe/stylesheet links) excluded entirely,
// src/href attributes resolved to absolute URLs against the document base.
//
// Anonymous fragments — elements that carry no identifier attribute — are
// memoized in the derivation cache keyed by (tag, sorted attributes, direct
// text), so repeated templates (list items, cards) are built once. Cache
// hits hand out a shallow copy, never the cached node itself. Elements that
// carry an identifier are always rebuilt: a cached copy would alias one id
// across distinct elements.
package snapshot

import (
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/classify"
	"github.com/vixlabs/vix/dom"
)

// Node is one element snapshot. A Node is immutable after construction:
// later DOM changes require a fresh snapshot, never in-place mutation.
type Node struct {
	Tag        string            `json:"tag"`
	Attrs      map[string]string `json:"attributes,omitempty"`
	Children   []*Node           `json:"children,omitempty"`
	DirectText string            `json:"text,omitempty"`
	IsAction   bool              `json:"is_action,omitempty"`
	IsImage    bool              `json:"is_image,omitempty"`
	ID         string            `json:"id,omitempty"`
}

// ShallowCopy returns a new Node with its own attribute map. The children
// slice is shared with the original; children are immutable by contract.
func (n *Node) ShallowCopy() *Node {
	cp := *n
	if n.Attrs != nil {
		cp.Attrs = make(map[string]string, len(n.Attrs))
		for k, v := range n.Attrs {
			cp.Attrs[k] = v
		}
	}
	return &cp
}

// Config configures a Snapshotter.
type Config struct {
	// Cache memoizes anonymous fragments and resolved URLs. Nil disables
	// memoization; snapshots still work, just without reuse.
	Cache *cache.Cache

	// FragmentTTL bounds how long an anonymous fragment stays reusable.
	// Default 5m.
	FragmentTTL time.Duration

	// URLTTL bounds resolved-URL memoization. Default 30m.
	URLTTL time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.FragmentTTL <= 0 {
		c.FragmentTTL = 5 * time.Minute
	}
	if c.URLTTL <= 0 {
		c.URLTTL = 30 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Snapshotter builds Node trees.
type Snapshotter struct {
	cfg Config
}

// New creates a Snapshotter.
func New(cfg Config) *Snapshotter {
	cfg.defaults()
	return &Snapshotter{cfg: cfg}
}

// SnapshotDocument snapshots the document body against the document URL.
// Returns nil when the document has no body.
func (s *Snapshotter) SnapshotDocument(doc dom.Document) *Node {
	body := doc.Body()
	if body == nil {
		s.cfg.Logger.Warn("snapshot: document has no body", "url", doc.URL())
		return nil
	}
	return s.Snapshot(body, doc.URL())
}

// Snapshot builds the tree rooted at el. baseURL anchors relative URL
// resolution. Returns nil when el itself is skippable.
func (s *Snapshotter) Snapshot(el dom.Element, baseURL string) *Node {
	if el == nil || classify.SkippableElement(el) {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		s.cfg.Logger.Warn("snapshot: bad base URL", "url", baseURL, "error", err)
		base = nil
	}
	return s.build(el, base)
}

func (s *Snapshotter) build(el dom.Element, base *url.URL) *Node {
	tag := el.Tag()
	attrs := el.Attrs()
	text := el.DirectText()
	id := attrs[dom.IDAttr]

	anonymous := id == ""
	var key string
	if anonymous && s.cfg.Cache != nil {
		key = fragmentKey(tag, attrs, text)
		if v, ok := s.cfg.Cache.Get(key); ok {
			if cached, ok := v.(*Node); ok {
				return cached.ShallowCopy()
			}
		}
	}

	node := &Node{
		Tag:        tag,
		Attrs:      make(map[string]string, len(attrs)),
		DirectText: text,
		IsAction:   classify.IsAction(el),
		IsImage:    classify.IsImage(el),
		ID:         id,
	}

	for k, v := range attrs {
		switch k {
		case "src", "href":
			node.Attrs[k] = s.resolveURL(base, v)
		default:
			node.Attrs[k] = v
		}
	}

	// Background-image synthesis: a non-image element with a real
	// background gets an img-equivalent classification and a synthetic
	// absolute src.
	if node.IsImage && !isImageTag(tag) {
		if src := s.backgroundSource(el, attrs, base); src != "" {
			node.Attrs["src"] = src
		}
	}

	for _, child := range el.Children() {
		if classify.SkippableElement(child) {
			continue
		}
		if cn := s.build(child, base); cn != nil {
			node.Children = append(node.Children, cn)
		}
	}

	if anonymous && s.cfg.Cache != nil {
		s.cfg.Cache.Set(key, node, s.cfg.FragmentTTL)
	}
	return node
}

func isImageTag(tag string) bool {
	switch tag {
	case "img", "picture", "source":
		return true
	}
	return false
}

// backgroundSource extracts the image URL behind a styled element: the CSS
// background-image first, then the usual lazy-load data attributes.
func (s *Snapshotter) backgroundSource(el dom.Element, attrs map[string]string, base *url.URL) string {
	if raw := ParseCSSURL(el.BackgroundImage()); raw != "" {
		return s.resolveURL(base, raw)
	}
	for _, k := range lazySrcAttrs {
		if v, ok := attrs[k]; ok && v != "" {
			return s.resolveURL(base, v)
		}
	}
	return ""
}

var lazySrcAttrs = []string{
	"data-src",
	"data-bg",
	"data-background",
	"data-background-image",
	"data-lazy-src",
}

func fragmentKey(tag string, attrs map[string]string, text string) string {
	pairs := make([]string, 0, len(attrs))
	for k, v := range attrs {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	parts := append([]string{"frag", tag}, pairs...)
	parts = append(parts, text)
	return cache.Key(cache.NSDOM, parts...)
}

// CountNodes returns the total node count of a tree. Nil-safe.
func CountNodes(n *Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += CountNodes(c)
	}
	return total
}

// Equal reports structural equality: tag, attributes, text, flags, and
// children, in order.
func Equal(a, b *Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Tag != b.Tag || a.DirectText != b.DirectText ||
		a.IsAction != b.IsAction || a.IsImage != b.IsImage || a.ID != b.ID {
		return false
	}
	if len(a.Attrs) != len(b.Attrs) || len(a.Children) != len(b.Children) {
		return false
	}
	for k, v := range a.Attrs {
		if b.Attrs[k] != v {
			return false
		}
	}
	for i := range a.Children {
		if !Equal(a.Children[i], b.Children[i]) {
			return false
		}
	}
	return true
}
