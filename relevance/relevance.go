// Package relevance decides which extracted images are worth describing.
// Sending every <img> on a page to the description service wastes calls on
// icons, spacers, and chrome; the filter rejects those up front and keeps
// genuine content images.
//
// Classification follows one fixed rule order. Explicit decorative markers
// win over everything, geometry beats URL heuristics, URL heuristics beat
// landmark ancestry, and an already-descriptive alt text forces acceptance
// before the default. The order matters: a 40x40 logo is Small, not Logo.
package relevance

import (
	"fmt"
	"strings"

	"github.com/vixlabs/vix/classify"
	"github.com/vixlabs/vix/dom"
	"github.com/vixlabs/vix/extract"
)

// Category labels a filter decision.
type Category string

const (
	CategoryContent    Category = "content"
	CategoryLogo       Category = "logo"
	CategoryIcon       Category = "icon"
	CategoryDecorative Category = "decorative"
	CategoryNavigation Category = "navigation"
	CategorySmall      Category = "small"
)

// Decision is the outcome of classifying one image.
type Decision struct {
	Process    bool     `json:"process"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Classified pairs an image with its decision.
type Classified struct {
	Image    extract.Image `json:"image"`
	Decision Decision      `json:"decision"`
}

// Exclusions toggles rejection categories. Landmark exclusions default
// off: pages legitimately put content imagery in headers and sidebars.
// Keyword exclusions default on: icon and spacer URLs are near-certain
// noise.
type Exclusions struct {
	Navigation bool `json:"navigation"`
	Header     bool `json:"header"`
	Footer     bool `json:"footer"`
	Sidebar    bool `json:"sidebar"`
	Logo       bool `json:"logo"`
	Icons      bool `json:"icons"`
	Decorative bool `json:"decorative"`
}

// DefaultExclusions returns the stock toggle set.
func DefaultExclusions() Exclusions {
	return Exclusions{Icons: true, Decorative: true}
}

// Config tunes the filter. Zero values take defaults.
type Config struct {
	// MinSize rejects images whose width and height are both below it.
	// Default 50 (px).
	MinSize int

	// GoodAltLen is the alt-text length that counts as already
	// descriptive. Default 20.
	GoodAltLen int

	// MaxBackgroundText rejects background images on elements carrying
	// more own text than this. Default 50.
	MaxBackgroundText int

	IconKeywords       []string
	DecorativeKeywords []string
	LogoKeywords       []string
	HeroKeywords       []string

	// Exclusions defaults to DefaultExclusions when nil.
	Exclusions *Exclusions
}

func (c *Config) defaults() {
	if c.MinSize <= 0 {
		c.MinSize = 50
	}
	if c.GoodAltLen <= 0 {
		c.GoodAltLen = 20
	}
	if c.MaxBackgroundText <= 0 {
		c.MaxBackgroundText = 50
	}
	if c.IconKeywords == nil {
		c.IconKeywords = []string{"icon", "sprite", "favicon", "arrow", "chevron", "caret", "bullet", "emoji"}
	}
	if c.DecorativeKeywords == nil {
		c.DecorativeKeywords = []string{"spacer", "divider", "separator", "pixel", "blank", "placeholder", "loader", "spinner"}
	}
	if c.LogoKeywords == nil {
		c.LogoKeywords = []string{"logo", "brand", "wordmark"}
	}
	if c.HeroKeywords == nil {
		c.HeroKeywords = []string{"hero", "banner", "jumbotron", "masthead", "carousel", "cover", "splash"}
	}
	if c.Exclusions == nil {
		ex := DefaultExclusions()
		c.Exclusions = &ex
	}
}

// Filter classifies images.
type Filter struct {
	cfg Config
}

// New creates a Filter.
func New(cfg Config) *Filter {
	cfg.defaults()
	return &Filter{cfg: cfg}
}

// Classify runs the rule chain for a regular image. el carries the live
// element when available; geometry and ancestry rules are skipped when it
// is nil.
func (f *Filter) Classify(img extract.Image, el dom.Element) Decision {
	if el != nil {
		if d, ok := f.decorativeMarker(el); ok {
			return d
		}
		if d, ok := f.tooSmall(el); ok {
			return d
		}
	}
	if d, ok := f.urlKeyword(img.SourceURL); ok {
		return d
	}
	if el != nil {
		if d, ok := f.landmarkAncestor(el); ok {
			return d
		}
	}
	if len(img.CurrentAlt) > f.cfg.GoodAltLen {
		return Decision{Process: true, Category: CategoryContent, Confidence: 0.9,
			Reason: "existing alt text is descriptive, improving it anyway"}
	}
	return Decision{Process: true, Category: CategoryContent, Confidence: 0.6,
		Reason: "no rejection rule matched"}
}

// ClassifyBackground runs the background variant: elements that are
// primarily text containers keep their decorative backgrounds undescribed,
// unless hero/banner signals force acceptance.
func (f *Filter) ClassifyBackground(img extract.Image, el dom.Element) Decision {
	if el != nil {
		text := strings.Join(strings.Fields(el.DirectText()), " ")
		if len(text) > f.cfg.MaxBackgroundText {
			if kw, ok := f.heroSignal(el, img.SourceURL); ok {
				return Decision{Process: true, Category: CategoryContent, Confidence: 0.8,
					Reason: fmt.Sprintf("hero/banner signal %q overrides text container", kw)}
			}
			return Decision{Category: CategoryDecorative, Confidence: 0.75,
				Reason: fmt.Sprintf("text container (%d chars) with background image", len(text))}
		}
	}
	return f.Classify(img, el)
}

// Split classifies a batch. lookup resolves an element id to its live
// element and may return nil for ids the DOM no longer holds.
func (f *Filter) Split(images []extract.Image, lookup func(id string) dom.Element) (process, filtered []Classified) {
	for _, img := range images {
		var el dom.Element
		if lookup != nil {
			el = lookup(img.ID)
		}
		var d Decision
		if img.IsBackground {
			d = f.ClassifyBackground(img, el)
		} else {
			d = f.Classify(img, el)
		}
		c := Classified{Image: img, Decision: d}
		if d.Process {
			process = append(process, c)
		} else {
			filtered = append(filtered, c)
		}
	}
	return process, filtered
}

func (f *Filter) decorativeMarker(el dom.Element) (Decision, bool) {
	if role, ok := el.Attr("role"); ok && strings.EqualFold(role, "presentation") {
		return Decision{Category: CategoryDecorative, Confidence: 0.95, Reason: "role=presentation"}, true
	}
	if hidden, ok := el.Attr("aria-hidden"); ok && strings.EqualFold(hidden, "true") {
		return Decision{Category: CategoryDecorative, Confidence: 0.95, Reason: "aria-hidden=true"}, true
	}
	return Decision{}, false
}

func (f *Filter) tooSmall(el dom.Element) (Decision, bool) {
	w, h := el.Size()
	if w > 0 && h > 0 && w < f.cfg.MinSize && h < f.cfg.MinSize {
		return Decision{Category: CategorySmall, Confidence: 0.9,
			Reason: fmt.Sprintf("%dx%d below %dpx minimum", w, h, f.cfg.MinSize)}, true
	}
	return Decision{}, false
}

func (f *Filter) urlKeyword(rawURL string) (Decision, bool) {
	u := strings.ToLower(rawURL)
	if u == "" {
		return Decision{}, false
	}
	if f.cfg.Exclusions.Icons {
		if kw, ok := matchKeyword(u, f.cfg.IconKeywords); ok {
			return Decision{Category: CategoryIcon, Confidence: 0.8,
				Reason: fmt.Sprintf("url matches icon keyword %q", kw)}, true
		}
	}
	if f.cfg.Exclusions.Decorative {
		if kw, ok := matchKeyword(u, f.cfg.DecorativeKeywords); ok {
			return Decision{Category: CategoryDecorative, Confidence: 0.8,
				Reason: fmt.Sprintf("url matches decorative keyword %q", kw)}, true
		}
	}
	if f.cfg.Exclusions.Logo {
		if kw, ok := matchKeyword(u, f.cfg.LogoKeywords); ok {
			return Decision{Category: CategoryLogo, Confidence: 0.8,
				Reason: fmt.Sprintf("url matches logo keyword %q", kw)}, true
		}
	}
	return Decision{}, false
}

func (f *Filter) landmarkAncestor(el dom.Element) (Decision, bool) {
	for p := el; p != nil; p = p.Parent() {
		cat, ok := classify.LandmarkCategory(p)
		if !ok {
			continue
		}
		enabled, decision := f.landmarkToggle(cat)
		if !enabled {
			continue
		}
		decision.Reason = fmt.Sprintf("inside %s landmark (%s)", cat, p.Tag())
		return decision, true
	}
	return Decision{}, false
}

func (f *Filter) landmarkToggle(cat string) (bool, Decision) {
	switch cat {
	case classify.LandmarkNavigation:
		return f.cfg.Exclusions.Navigation, Decision{Category: CategoryNavigation, Confidence: 0.7}
	case classify.LandmarkHeader:
		return f.cfg.Exclusions.Header, Decision{Category: CategoryNavigation, Confidence: 0.7}
	case classify.LandmarkFooter:
		return f.cfg.Exclusions.Footer, Decision{Category: CategoryNavigation, Confidence: 0.7}
	case classify.LandmarkSidebar:
		return f.cfg.Exclusions.Sidebar, Decision{Category: CategoryNavigation, Confidence: 0.7}
	case classify.LandmarkLogo:
		return f.cfg.Exclusions.Logo, Decision{Category: CategoryLogo, Confidence: 0.7}
	}
	return false, Decision{}
}

// heroSignal checks the element's class/id and the image URL for
// hero/banner keywords.
func (f *Filter) heroSignal(el dom.Element, rawURL string) (string, bool) {
	hay := strings.ToLower(rawURL)
	if class, ok := el.Attr("class"); ok {
		hay += " " + strings.ToLower(class)
	}
	if id, ok := el.Attr("id"); ok {
		hay += " " + strings.ToLower(id)
	}
	return matchKeyword(hay, f.cfg.HeroKeywords)
}

func matchKeyword(hay string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(hay, kw) {
			return kw, true
		}
	}
	return "", false
}
