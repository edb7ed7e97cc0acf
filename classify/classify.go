// Package classify holds the pure element predicates shared by the
// identifier pass, the snapshotter, and the relevance filter: whether an
// element is skippable, interactive, image-bearing, or sits inside a page
// landmark. Predicates never error; a malformed or unknown tag simply fails
// to classify.
package classify

import (
	"strings"

	"github.com/vixlabs/vix/dom"
)

// skipTags are excluded from processing entirely: the element and its whole
// subtree contribute nothing to a snapshot.
var skipTags = map[string]struct{}{
	"script": {},
	"style":  {},
	"svg":    {},
	"iframe": {},
}

// actionTags are interactive by nature.
var actionTags = map[string]struct{}{
	"a":        {},
	"button":   {},
	"input":    {},
	"select":   {},
	"textarea": {},
	"details":  {},
	"summary":  {},
	"label":    {},
}

// actionRoles are ARIA roles that make any element interactive.
var actionRoles = map[string]struct{}{
	"button":   {},
	"link":     {},
	"menuitem": {},
	"tab":      {},
	"checkbox": {},
	"radio":    {},
	"switch":   {},
	"option":   {},
	"combobox": {},
}

// Skippable reports whether a tag name is excluded from processing.
func Skippable(tag string) bool {
	_, ok := skipTags[strings.ToLower(tag)]
	return ok
}

// SkippableElement extends Skippable with the stylesheet-link case, which
// needs attribute access.
func SkippableElement(el dom.Element) bool {
	tag := el.Tag()
	if Skippable(tag) {
		return true
	}
	if tag == "link" {
		rel, _ := el.Attr("rel")
		return strings.EqualFold(strings.TrimSpace(rel), "stylesheet")
	}
	return false
}

// IsAction reports whether the element is interactive: an action tag, an
// interactive ARIA role, or an element wired with onclick/tabindex.
func IsAction(el dom.Element) bool {
	if _, ok := actionTags[el.Tag()]; ok {
		return true
	}
	if role, ok := el.Attr("role"); ok {
		if _, ok := actionRoles[strings.ToLower(strings.TrimSpace(role))]; ok {
			return true
		}
	}
	if _, ok := el.Attr("onclick"); ok {
		return true
	}
	if _, ok := el.Attr("tabindex"); ok {
		return true
	}
	return false
}

// IsImage reports whether the element bears an image: an img/picture tag, a
// source with srcset, or any element with a url(...) background.
func IsImage(el dom.Element) bool {
	switch el.Tag() {
	case "img", "picture":
		return true
	case "source":
		_, ok := el.Attr("srcset")
		return ok
	}
	return HasBackgroundImage(el)
}

// HasBackgroundImage reports whether the element's background-image is a
// real image reference rather than none/empty.
func HasBackgroundImage(el dom.Element) bool {
	bg := strings.TrimSpace(el.BackgroundImage())
	if bg == "" || strings.EqualFold(bg, "none") {
		return false
	}
	return strings.Contains(strings.ToLower(bg), "url(")
}

// Landmark categories for ancestor-chain exclusion checks.
const (
	LandmarkNavigation = "navigation"
	LandmarkHeader     = "header"
	LandmarkFooter     = "footer"
	LandmarkSidebar    = "sidebar"
	LandmarkLogo       = "logo"
)

var landmarkTags = map[string]string{
	"nav":    LandmarkNavigation,
	"header": LandmarkHeader,
	"footer": LandmarkFooter,
	"aside":  LandmarkSidebar,
}

var landmarkKeywords = []struct {
	keyword  string
	category string
}{
	{"navbar", LandmarkNavigation},
	{"navigation", LandmarkNavigation},
	{"nav-", LandmarkNavigation},
	{"menu", LandmarkNavigation},
	{"masthead", LandmarkHeader},
	{"header", LandmarkHeader},
	{"footer", LandmarkFooter},
	{"sidebar", LandmarkSidebar},
	{"side-bar", LandmarkSidebar},
	{"logo", LandmarkLogo},
	{"brand", LandmarkLogo},
}

// LandmarkCategory classifies an element as a page landmark by tag, ARIA
// role, or class/id keyword. Returns ("", false) for ordinary content.
func LandmarkCategory(el dom.Element) (string, bool) {
	if cat, ok := landmarkTags[el.Tag()]; ok {
		return cat, true
	}
	if role, ok := el.Attr("role"); ok {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "navigation":
			return LandmarkNavigation, true
		case "banner":
			return LandmarkHeader, true
		case "contentinfo":
			return LandmarkFooter, true
		case "complementary":
			return LandmarkSidebar, true
		}
	}
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	haystack := strings.ToLower(class + " " + id)
	if haystack == " " {
		return "", false
	}
	for _, lk := range landmarkKeywords {
		if strings.Contains(haystack, lk.keyword) {
			return lk.category, true
		}
	}
	return "", false
}
