// Package extract derives flat payloads from snapshot trees: the image
// candidates, action elements, readable text, and shape statistics the
// downstream pipeline works from. Everything here is a pure function over
// an immutable *snapshot.Node.
package extract

import (
	"strings"

	"github.com/vixlabs/vix/snapshot"
)

// goodAltLen is the alt-text length above which an image is considered
// already described. Shorter alt is a candidate for regeneration.
const goodAltLen = 20

// Image describes one description candidate found in a snapshot.
type Image struct {
	ID               string `json:"id"`
	SourceURL        string `json:"source_url"`
	CurrentAlt       string `json:"current_alt,omitempty"`
	NeedsDescription bool   `json:"needs_description"`
	IsBackground     bool   `json:"is_background,omitempty"`
}

// Action describes one interactive element.
type Action struct {
	ID   string `json:"id"`
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
	Href string `json:"href,omitempty"`
}

// TreeStats summarizes a snapshot's shape.
type TreeStats struct {
	Nodes          int `json:"nodes"`
	ActionElements int `json:"action_elements"`
	Images         int `json:"images"`
	TextLength     int `json:"text_length"`
	Identified     int `json:"identified"`
}

// Images walks the tree and returns every addressable image candidate:
// img tags and elements carrying a synthesized background source. picture
// and source wrappers are skipped; their img child carries the payload.
// Nodes without an identifier or a source URL cannot be described later
// and are dropped here.
func Images(root *snapshot.Node) []Image {
	var out []Image
	walk(root, func(n *snapshot.Node) {
		if !n.IsImage {
			return
		}
		background := n.Tag != "img"
		if n.Tag == "picture" || n.Tag == "source" {
			return
		}
		src := n.Attrs["src"]
		if n.ID == "" || src == "" {
			return
		}
		alt := strings.TrimSpace(n.Attrs["alt"])
		if alt == "" {
			alt = strings.TrimSpace(n.Attrs["aria-label"])
		}
		out = append(out, Image{
			ID:               n.ID,
			SourceURL:        src,
			CurrentAlt:       alt,
			NeedsDescription: len(alt) < goodAltLen,
			IsBackground:     background,
		})
	})
	return out
}

// Actions returns every identified action element with its visible text.
func Actions(root *snapshot.Node) []Action {
	var out []Action
	walk(root, func(n *snapshot.Node) {
		if !n.IsAction || n.ID == "" {
			return
		}
		out = append(out, Action{
			ID:   n.ID,
			Tag:  n.Tag,
			Text: Text(n),
			Href: n.Attrs["href"],
		})
	})
	return out
}

// Text joins the tree's direct text depth-first, whitespace-collapsed,
// one space between fragments.
func Text(root *snapshot.Node) string {
	var parts []string
	walk(root, func(n *snapshot.Node) {
		if t := strings.Join(strings.Fields(n.DirectText), " "); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// Stats computes totals over the tree.
func Stats(root *snapshot.Node) TreeStats {
	var s TreeStats
	walk(root, func(n *snapshot.Node) {
		s.Nodes++
		if n.IsAction {
			s.ActionElements++
		}
		if n.IsImage && n.Tag != "picture" && n.Tag != "source" {
			s.Images++
		}
		if n.ID != "" {
			s.Identified++
		}
	})
	s.TextLength = len(Text(root))
	return s
}

func walk(n *snapshot.Node, fn func(*snapshot.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		walk(c, fn)
	}
}
