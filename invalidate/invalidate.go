// Package invalidate keeps the derivation cache honest while a page
// mutates underneath it. The Coordinator consumes page events as a
// dom.EventSink and removes exactly the namespaces whose derivations went
// stale; structural churn additionally schedules a debounced reprocess so
// bulk DOM rewrites trigger one re-tag pass, not hundreds.
package invalidate

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/dom"
)

// Options tunes the coordinator.
type Options struct {
	// Interval is the URL polling frequency for Watch. Polling backs up
	// the event path: history-API navigations that fire no event are
	// still caught. Default: 1s.
	Interval time.Duration

	// Debounce is the quiet period after structural churn before
	// OnReprocess fires. More churn during the window restarts it.
	// Default: 1s.
	Debounce time.Duration

	// OnNavigated, when set, runs after the navigation clear with the new
	// address.
	OnNavigated func(url string)

	// OnReprocess, when set, runs from the Watch loop once a structural
	// debounce window closes.
	OnReprocess func()

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Checks                  int64 `json:"checks"`
	Navigations             int64 `json:"navigations"`
	AttrInvalidations       int64 `json:"attr_invalidations"`
	StructuralInvalidations int64 `json:"structural_invalidations"`
	VisibilityRefreshes     int64 `json:"visibility_refreshes"`
	Reprocesses             int64 `json:"reprocesses"`
	EntriesRemoved          int64 `json:"entries_removed"`
}

// Coordinator reacts to page events with targeted cache invalidation.
// It implements dom.EventSink so a live document can deliver events to it
// directly; every method returns quickly and never blocks on downstream
// work.
type Coordinator struct {
	cache *cache.Cache
	opts  Options

	mu      sync.Mutex
	lastURL string

	// structural wakes the Watch loop to (re)start the debounce window.
	// Buffered by one: a pending wake already covers later churn.
	structural chan struct{}

	checks         atomic.Int64
	navigations    atomic.Int64
	attrInvals     atomic.Int64
	structInvals   atomic.Int64
	visRefreshes   atomic.Int64
	reprocesses    atomic.Int64
	entriesRemoved atomic.Int64
}

var _ dom.EventSink = (*Coordinator)(nil)

// New creates a Coordinator over the given cache.
func New(c *cache.Cache, opts Options) *Coordinator {
	opts.defaults()
	return &Coordinator{
		cache:      c,
		opts:       opts,
		structural: make(chan struct{}, 1),
	}
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Checks:                  c.checks.Load(),
		Navigations:             c.navigations.Load(),
		AttrInvalidations:       c.attrInvals.Load(),
		StructuralInvalidations: c.structInvals.Load(),
		VisibilityRefreshes:     c.visRefreshes.Load(),
		Reprocesses:             c.reprocesses.Load(),
		EntriesRemoved:          c.entriesRemoved.Load(),
	}
}

// accessibilityAttr reports whether a mutated attribute can change audit
// results or applied descriptions.
func accessibilityAttr(name string) bool {
	switch strings.ToLower(name) {
	case "alt", "role", "title", "src", "href":
		return true
	}
	return strings.HasPrefix(strings.ToLower(name), "aria-")
}

// Mutation implements dom.EventSink. Attribute changes outside the
// accessibility allow-list are ignored. Structural changes invalidate both
// the snapshot and audit namespaces and schedule a debounced reprocess.
// Text changes stale the extracted text but never add elements, so no
// re-tag pass is scheduled for them.
func (c *Coordinator) Mutation(m dom.Mutation) {
	switch m.Kind {
	case dom.MutationAttr:
		if !accessibilityAttr(m.Attr) {
			return
		}
		c.attrInvals.Add(1)
		c.entriesRemoved.Add(int64(c.cache.InvalidatePrefix(cache.NSWCAG)))
		c.opts.Logger.Debug("invalidate: accessibility attribute changed", "attr", m.Attr, "element", m.ElementID)

	case dom.MutationStructure:
		c.structInvals.Add(1)
		removed := c.cache.InvalidatePrefix(cache.NSDOM)
		removed += c.cache.InvalidatePrefix(cache.NSWCAG)
		c.entriesRemoved.Add(int64(removed))
		select {
		case c.structural <- struct{}{}:
		default:
		}

	case dom.MutationText:
		c.entriesRemoved.Add(int64(c.cache.InvalidatePrefix(cache.NSDOM)))
	}
}

// Navigated implements dom.EventSink. A new address invalidates every
// derivation: the identifier space resets with the page.
func (c *Coordinator) Navigated(url string) {
	c.mu.Lock()
	same := url == c.lastURL
	c.lastURL = url
	c.mu.Unlock()

	// A repeated URL means the document was replaced in place (reload).
	// URL-keyed entries stay valid; structure-derived ones do not, and the
	// fresh document needs a re-tag pass.
	if same {
		c.structInvals.Add(1)
		removed := c.cache.InvalidatePrefix(cache.NSDOM)
		removed += c.cache.InvalidatePrefix(cache.NSWCAG)
		c.entriesRemoved.Add(int64(removed))
		select {
		case c.structural <- struct{}{}:
		default:
		}
		c.opts.Logger.Debug("invalidate: reload, derived namespaces dropped", "url", url)
		return
	}

	c.navigations.Add(1)
	c.entriesRemoved.Add(int64(c.cache.Len()))
	c.cache.Clear()
	c.opts.Logger.Info("invalidate: navigation, cache cleared", "url", url)

	if c.opts.OnNavigated != nil {
		c.opts.OnNavigated(url)
	}
}

// Visibility implements dom.EventSink. A tab coming back on screen may
// have changed while hidden, so the short-lived namespaces are refreshed.
func (c *Coordinator) Visibility(visible bool) {
	if !visible {
		return
	}
	c.visRefreshes.Add(1)
	removed := c.cache.InvalidatePrefix(cache.NSWCAG)
	removed += c.cache.InvalidatePrefix(cache.NSSummary)
	c.entriesRemoved.Add(int64(removed))
}

// Watch polls doc's address at the configured interval and drains the
// structural debounce window. It blocks until ctx is cancelled. The poll
// catches history-API navigations that deliver no Navigated event.
func (c *Coordinator) Watch(ctx context.Context, doc dom.Document) {
	log := c.opts.Logger

	c.mu.Lock()
	if c.lastURL == "" {
		c.lastURL = doc.URL()
	}
	c.mu.Unlock()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	log.Info("invalidate: watching", "interval", c.opts.Interval, "debounce", c.opts.Debounce)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("invalidate: stopped")
			return

		case <-ticker.C:
			c.checks.Add(1)
			cur := doc.URL()
			c.mu.Lock()
			changed := cur != "" && cur != c.lastURL
			c.mu.Unlock()
			if changed {
				c.Navigated(cur)
			}

		case <-c.structural:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(c.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("invalidate: structural churn, debouncing")

		case <-debounceCh:
			debounceCh = nil
			c.reprocesses.Add(1)
			if c.opts.OnReprocess != nil {
				c.opts.OnReprocess()
			}
		}
	}
}
