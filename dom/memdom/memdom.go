// Package memdom implements dom.Document over a parsed HTML tree
// (golang.org/x/net/html). It backs offline analysis of fetched pages and
// every test that needs a DOM without a browser.
//
// Elements support the full capability surface including gesture emulation:
// interactions are recorded on the document so tests can assert what a task
// execution did to the page.
package memdom

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vixlabs/vix/dom"
)

// Interaction is one recorded gesture against an element.
type Interaction struct {
	Op    string // "click", "setvalue", "focus", "scroll"
	ID    string // dom.IDAttr value of the target, "" when untagged
	Value string // for "setvalue"
}

// Document is an in-memory page.
type Document struct {
	mu           sync.RWMutex
	doc          *html.Node // document node
	url          string
	interactions []Interaction
}

// Parse reads an HTML document. pageURL becomes the document address used
// for relative URL resolution downstream.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	n, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("memdom: parse: %w", err)
	}
	return &Document{doc: n, url: pageURL}, nil
}

// ParseString is Parse over a string.
func ParseString(src, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(src), pageURL)
}

// MustParse is ParseString that panics on error, for fixtures.
func MustParse(src, pageURL string) *Document {
	d, err := ParseString(src, pageURL)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Document) Root() dom.Element {
	if n := findElement(d.doc, atom.Html); n != nil {
		return &Element{doc: d, node: n}
	}
	return nil
}

func (d *Document) Body() dom.Element {
	if n := findElement(d.doc, atom.Body); n != nil {
		return &Element{doc: d, node: n}
	}
	return nil
}

// ByID locates the element whose dom.IDAttr equals id.
func (d *Document) ByID(id string) dom.Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := findByAttr(d.doc, dom.IDAttr, id)
	if n == nil {
		return nil
	}
	return &Element{doc: d, node: n}
}

func (d *Document) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

// SetURL changes the document address. Tests use it to simulate navigation.
func (d *Document) SetURL(u string) {
	d.mu.Lock()
	d.url = u
	d.mu.Unlock()
}

func (d *Document) Title() string {
	if n := findElement(d.doc, atom.Title); n != nil && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	return ""
}

// HTML serialises the current document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var sb strings.Builder
	if err := html.Render(&sb, d.doc); err != nil {
		return "", fmt.Errorf("memdom: render: %w", err)
	}
	return sb.String(), nil
}

// Interactions returns the recorded gestures in execution order.
func (d *Document) Interactions() []Interaction {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Interaction, len(d.interactions))
	copy(out, d.interactions)
	return out
}

// FirstByTag returns the first element with the given tag in document order,
// or nil. Test helper.
func (d *Document) FirstByTag(tag string) dom.Element {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, tag) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.doc)
	if found == nil {
		return nil
	}
	return &Element{doc: d, node: found}
}

func (d *Document) record(i Interaction) {
	d.mu.Lock()
	d.interactions = append(d.interactions, i)
	d.mu.Unlock()
}

// Element wraps one html.Node.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)
var _ dom.Interactive = (*Element)(nil)

func (e *Element) Tag() string {
	if e.node.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(e.node.Data)
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func (e *Element) SetAttr(name, value string) error {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	for i, a := range e.node.Attr {
		if a.Key == name {
			e.node.Attr[i].Val = value
			return nil
		}
	}
	e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	return nil
}

func (e *Element) Attrs() map[string]string {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	out := make(map[string]string, len(e.node.Attr))
	for _, a := range e.node.Attr {
		out[a.Key] = a.Val
	}
	return out
}

func (e *Element) Children() []dom.Element {
	var out []dom.Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &Element{doc: e.doc, node: c})
		}
	}
	return out
}

func (e *Element) DirectText() string {
	var parts []string
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func (e *Element) Parent() dom.Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return &Element{doc: e.doc, node: p}
}

var (
	bgImageRe = regexp.MustCompile(`(?i)background-image\s*:\s*([^;]+)`)
	bgShortRe = regexp.MustCompile(`(?i)background\s*:\s*([^;]*url\([^;]*)`)
)

// BackgroundImage reads the inline style. A parsed tree has no computed
// styles; stylesheet-driven backgrounds are only visible to the live
// implementation.
func (e *Element) BackgroundImage() string {
	style, ok := e.Attr("style")
	if !ok {
		return ""
	}
	if m := bgImageRe.FindStringSubmatch(style); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bgShortRe.FindStringSubmatch(style); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var (
	styleWidthRe  = regexp.MustCompile(`(?i)(?:^|;)\s*width\s*:\s*(\d+)px`)
	styleHeightRe = regexp.MustCompile(`(?i)(?:^|;)\s*height\s*:\s*(\d+)px`)
)

// Size derives the box from width/height attributes or inline style pixel
// values. Unknown dimensions report 0.
func (e *Element) Size() (int, int) {
	w := e.intAttr("width")
	h := e.intAttr("height")
	if style, ok := e.Attr("style"); ok {
		if w == 0 {
			if m := styleWidthRe.FindStringSubmatch(style); m != nil {
				w, _ = strconv.Atoi(m[1])
			}
		}
		if h == 0 {
			if m := styleHeightRe.FindStringSubmatch(style); m != nil {
				h, _ = strconv.Atoi(m[1])
			}
		}
	}
	return w, h
}

func (e *Element) intAttr(name string) int {
	v, ok := e.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (e *Element) id() string {
	v, _ := e.Attr(dom.IDAttr)
	return v
}

func (e *Element) Click() error {
	e.doc.record(Interaction{Op: "click", ID: e.id()})
	return nil
}

func (e *Element) SetValue(value string) error {
	if err := e.SetAttr("value", value); err != nil {
		return err
	}
	e.doc.record(Interaction{Op: "setvalue", ID: e.id(), Value: value})
	return nil
}

func (e *Element) Focus() error {
	e.doc.record(Interaction{Op: "focus", ID: e.id()})
	return nil
}

func (e *Element) ScrollIntoView() error {
	e.doc.record(Interaction{Op: "scroll", ID: e.id()})
	return nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func findByAttr(n *html.Node, key, val string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == key && a.Val == val {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByAttr(c, key, val); found != nil {
			return found
		}
	}
	return nil
}
