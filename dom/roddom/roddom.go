// Package roddom implements the dom capability surface over a live Chromium
// tab driven through go-rod. Reads and writes are CDP round-trips; gestures
// use rod's input emulation. Documents inherit the context they were opened
// with, so cancelling the session detaches every in-flight call.
package roddom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/vixlabs/vix/dom"
)

var (
	_ dom.Document    = (*Document)(nil)
	_ dom.Element     = (*Element)(nil)
	_ dom.Interactive = (*Element)(nil)
)

// Config controls how the browser session is established.
type Config struct {
	// ControlURL is an existing DevTools websocket endpoint. Empty launches
	// a local browser instead.
	ControlURL string

	// Headless applies when launching locally.
	Headless bool

	// Stealth creates pages through the stealth evasion script, for sites
	// hostile to automation.
	Stealth bool

	// NavigationTimeout bounds Navigate plus the load wait.
	NavigationTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) defaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Browser is one connected Chromium instance.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
	logger   *slog.Logger
}

// Connect attaches to cfg.ControlURL, or launches a local browser when the
// URL is empty.
func Connect(ctx context.Context, cfg Config) (*Browser, error) {
	cfg = cfg.defaults()

	u := cfg.ControlURL
	var l *launcher.Launcher
	if u == "" {
		l = launcher.New().Headless(cfg.Headless)
		launched, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("roddom: launch browser: %w", err)
		}
		u = launched
	}

	b := rod.New().ControlURL(u).Context(ctx)
	if err := b.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("roddom: connect %s: %w", u, err)
	}
	cfg.Logger.Info("roddom: browser connected", "launched", l != nil, "stealth", cfg.Stealth)
	return &Browser{browser: b, launcher: l, cfg: cfg, logger: cfg.Logger}, nil
}

// Close disconnects and, when the browser was launched here, kills the
// process and removes its temp profile.
func (b *Browser) Close() error {
	err := b.browser.Close()
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	return err
}

// Open creates a page, navigates it to pageURL and waits for the load event.
func (b *Browser) Open(ctx context.Context, pageURL string) (*Document, error) {
	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("roddom: create page: %w", err)
	}
	page = page.Context(ctx)

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("roddom: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		page.Close()
		return nil, fmt.Errorf("roddom: wait load %s: %w", pageURL, err)
	}

	b.logger.Debug("roddom: page open", "url", pageURL)
	return &Document{page: page, logger: b.logger}, nil
}

// Document is one attached page.
type Document struct {
	page   *rod.Page
	logger *slog.Logger
}

func (d *Document) Root() dom.Element { return d.first("html") }
func (d *Document) Body() dom.Element { return d.first("body") }

func (d *Document) ByID(id string) dom.Element {
	return d.first(fmt.Sprintf("[%s=%q]", dom.IDAttr, id))
}

// first returns the first match without waiting for one to appear.
func (d *Document) first(selector string) dom.Element {
	els, err := d.page.Elements(selector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return &Element{el: els[0]}
}

func (d *Document) URL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (d *Document) Title() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.Title
}

func (d *Document) HTML() (string, error) {
	html, err := d.page.HTML()
	if err != nil {
		return "", fmt.Errorf("roddom: serialize document: %w", err)
	}
	return html, nil
}

// Close detaches the page.
func (d *Document) Close() error { return d.page.Close() }

// Element is one live element handle. The tag is memoized: the pipeline
// walks trees single-threaded and an element never changes its name.
type Element struct {
	el  *rod.Element
	tag string
}

func (e *Element) Tag() string {
	if e.tag == "" {
		res, err := e.el.Eval(`() => this.localName`)
		if err != nil {
			return ""
		}
		e.tag = res.Value.Str()
	}
	return e.tag
}

func (e *Element) Attr(name string) (string, bool) {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (e *Element) SetAttr(name, value string) error {
	if _, err := e.el.Eval(`(n, v) => this.setAttribute(n, v)`, name, value); err != nil {
		return fmt.Errorf("roddom: set %s: %w", name, err)
	}
	return nil
}

func (e *Element) Attrs() map[string]string {
	res, err := e.el.Eval(`() => {
		const out = {};
		for (const a of this.attributes) out[a.name] = a.value;
		return out;
	}`)
	if err != nil {
		return nil
	}
	attrs := make(map[string]string)
	for name, v := range res.Value.Map() {
		attrs[name] = v.Str()
	}
	return attrs
}

func (e *Element) Children() []dom.Element {
	els, err := e.el.Elements(":scope > *")
	if err != nil || len(els) == 0 {
		return nil
	}
	children := make([]dom.Element, 0, len(els))
	for _, el := range els {
		children = append(children, &Element{el: el})
	}
	return children
}

func (e *Element) DirectText() string {
	res, err := e.el.Eval(`() => {
		let text = "";
		for (const n of this.childNodes) {
			if (n.nodeType === Node.TEXT_NODE) text += n.textContent;
		}
		return text;
	}`)
	if err != nil {
		return ""
	}
	return strings.Join(strings.Fields(res.Value.Str()), " ")
}

func (e *Element) Parent() dom.Element {
	parent, err := e.el.Parent()
	if err != nil {
		return nil
	}
	return &Element{el: parent}
}

func (e *Element) BackgroundImage() string {
	res, err := e.el.Eval(`() => getComputedStyle(this).backgroundImage`)
	if err != nil {
		return ""
	}
	if v := res.Value.Str(); v != "none" {
		return v
	}
	return ""
}

func (e *Element) Size() (int, int) {
	res, err := e.el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return [Math.round(r.width), Math.round(r.height)];
	}`)
	if err != nil {
		return 0, 0
	}
	arr := res.Value.Arr()
	if len(arr) != 2 {
		return 0, 0
	}
	return arr[0].Int(), arr[1].Int()
}

func (e *Element) Click() error {
	if err := e.el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("roddom: click: %w", err)
	}
	return nil
}

// SetValue assigns the value property and dispatches input and change events
// so framework listeners observe the edit.
func (e *Element) SetValue(value string) error {
	_, err := e.el.Eval(`(v) => {
		if ("value" in this) {
			this.value = v;
		} else {
			this.textContent = v;
		}
		this.dispatchEvent(new Event("input", { bubbles: true }));
		this.dispatchEvent(new Event("change", { bubbles: true }));
	}`, value)
	if err != nil {
		return fmt.Errorf("roddom: set value: %w", err)
	}
	return nil
}

func (e *Element) Focus() error {
	if err := e.el.Focus(); err != nil {
		return fmt.Errorf("roddom: focus: %w", err)
	}
	return nil
}

func (e *Element) ScrollIntoView() error {
	if err := e.el.ScrollIntoView(); err != nil {
		return fmt.Errorf("roddom: scroll into view: %w", err)
	}
	return nil
}
