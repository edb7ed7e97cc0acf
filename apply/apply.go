// Package apply writes generated descriptions and fix suggestions back
// into the live DOM. Model output is untrusted text: everything passes a
// strict sanitizer before it touches an attribute, and attribute names
// from fix descriptors are allow-listed so a confused model cannot plant
// event handlers.
//
// Writes are best-effort per entry. The DOM may have changed since a job
// was issued, so a missing element or a retagged node is a logged skip,
// never a batch abort.
package apply

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/vixlabs/vix/audit"
	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/dom"
)

const (
	// Marker prefixes every generated alt text so later passes can tell
	// generated writes from author content.
	Marker = "[vix] "

	// BGMarkerAttr flags a background element that already received a
	// generated label, preventing reapplication.
	BGMarkerAttr = "data-vix-bg"
)

// Result is one description outcome to write back.
type Result struct {
	ID           string `json:"id"`
	AltText      string `json:"alt_text,omitempty"`
	Err          string `json:"error,omitempty"`
	IsBackground bool   `json:"is_background,omitempty"`
}

// fixableAttr is the attribute-name allow-list for model-suggested fixes.
var fixableAttr = regexp.MustCompile(`^(aria-[a-z-]+|role|title|alt|lang|tabindex|placeholder)$`)

// Applier writes results into documents.
type Applier struct {
	cache  *cache.Cache
	logger *slog.Logger
	policy *bluemonday.Policy
}

// New creates an Applier. cache may be nil; successful writes then skip
// invalidation.
func New(c *cache.Cache, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		cache:  c,
		logger: logger,
		policy: bluemonday.StrictPolicy(),
	}
}

// ApplyDescriptions writes each successful result to its element and
// returns the number applied. Foreground results require the element to
// still be an img; background results label the container instead.
// Every write invalidates the wcag namespace so the next audit sees the
// new attributes.
func (a *Applier) ApplyDescriptions(doc dom.Document, results []Result) int {
	applied := 0
	for _, r := range results {
		if r.Err != "" {
			a.logger.Warn("apply: skipping failed description", "id", r.ID, "error", r.Err)
			continue
		}
		text := a.sanitize(r.AltText)
		if text == "" {
			a.logger.Warn("apply: empty description after sanitization", "id", r.ID)
			continue
		}
		el := doc.ByID(r.ID)
		if el == nil {
			a.logger.Warn("apply: element no longer in document", "id", r.ID)
			continue
		}

		var ok bool
		if r.IsBackground {
			ok = a.applyBackground(el, r.ID, text)
		} else {
			ok = a.applyForeground(el, r.ID, text)
		}
		if !ok {
			continue
		}

		applied++
		a.invalidateWCAG()
	}
	return applied
}

func (a *Applier) applyForeground(el dom.Element, id, text string) bool {
	if el.Tag() != "img" {
		a.logger.Warn("apply: element is no longer an img", "id", id, "tag", el.Tag())
		return false
	}
	if err := el.SetAttr("alt", Marker+text); err != nil {
		a.logger.Warn("apply: set alt failed", "id", id, "error", err)
		return false
	}
	return true
}

func (a *Applier) applyBackground(el dom.Element, id, text string) bool {
	if _, done := el.Attr(BGMarkerAttr); done {
		a.logger.Debug("apply: background already labeled", "id", id)
		return false
	}
	if _, has := el.Attr("role"); !has {
		if err := el.SetAttr("role", "img"); err != nil {
			a.logger.Warn("apply: set role failed", "id", id, "error", err)
			return false
		}
	}
	if err := el.SetAttr("aria-label", text); err != nil {
		a.logger.Warn("apply: set aria-label failed", "id", id, "error", err)
		return false
	}
	if err := el.SetAttr(BGMarkerAttr, "1"); err != nil {
		a.logger.Warn("apply: set marker failed", "id", id, "error", err)
		return false
	}
	return true
}

// ApplyFixes writes model-suggested attribute fixes and returns the
// number of elements changed. Attribute names outside the allow-list are
// dropped.
func (a *Applier) ApplyFixes(doc dom.Document, fixes []audit.Fix) int {
	applied := 0
	for _, fix := range fixes {
		el := doc.ByID(fix.ID)
		if el == nil {
			a.logger.Warn("apply: fix target not in document", "id", fix.ID)
			continue
		}

		wrote := false
		for _, attr := range fix.AddAttributes {
			name := strings.ToLower(strings.TrimSpace(attr.Name))
			if !fixableAttr.MatchString(name) {
				a.logger.Warn("apply: attribute not allowed", "id", fix.ID, "attr", name)
				continue
			}
			value := a.sanitize(attr.Value)
			if value == "" {
				a.logger.Warn("apply: empty fix value", "id", fix.ID, "attr", name)
				continue
			}
			if err := el.SetAttr(name, value); err != nil {
				a.logger.Warn("apply: fix write failed", "id", fix.ID, "attr", name, "error", err)
				continue
			}
			wrote = true
		}
		if !wrote {
			continue
		}

		applied++
		a.invalidateWCAG()
	}
	return applied
}

func (a *Applier) invalidateWCAG() {
	if a.cache != nil {
		a.cache.InvalidatePrefix(cache.NSWCAG)
	}
}

// sanitize strips markup from model output and collapses it to a single
// line of plain text.
func (a *Applier) sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = a.policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
