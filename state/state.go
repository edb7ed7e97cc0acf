// Package state owns the per-session view the panel and tools read: what
// page is current, its summary and stats, how the description batch is
// going, and the latest audit findings. One Holder replaces the ambient
// globals a background script would keep; everything goes through accessors
// and comes out as value copies.
package state

import (
	"sync"
	"time"

	"github.com/vixlabs/vix/audit"
	"github.com/vixlabs/vix/describe"
	"github.com/vixlabs/vix/extract"
)

// Page is the analyzed-page summary the session is currently built around.
type Page struct {
	URL          string            `json:"url,omitempty"`
	Title        string            `json:"title,omitempty"`
	Summary      string            `json:"summary,omitempty"`
	Stats        extract.TreeStats `json:"stats"`
	LastAnalyzed time.Time         `json:"last_analyzed"`
}

// Snapshot is a consistent copy of the whole session state.
type Snapshot struct {
	Page       Page              `json:"page"`
	Progress   describe.Progress `json:"progress"`
	Violations []audit.Violation `json:"violations,omitempty"`
}

// Holder guards the session state. All getters return copies; callers can
// never reach the live structures.
type Holder struct {
	mu         sync.RWMutex
	page       Page
	progress   describe.Progress
	violations []audit.Violation

	now func() time.Time
}

// NewHolder creates an empty Holder.
func NewHolder() *Holder {
	return &Holder{now: time.Now}
}

// Get returns a consistent snapshot of everything.
func (h *Holder) Get() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		Page:       h.page,
		Progress:   cloneProgress(h.progress),
		Violations: append([]audit.Violation(nil), h.violations...),
	}
}

// SetURL records the current page address.
func (h *Holder) SetURL(url string) {
	h.mu.Lock()
	h.page.URL = url
	h.mu.Unlock()
}

// SetTitle records the current page title.
func (h *Holder) SetTitle(title string) {
	h.mu.Lock()
	h.page.Title = title
	h.mu.Unlock()
}

// UpdateSummary stores a fresh page summary and stamps LastAnalyzed.
func (h *Holder) UpdateSummary(summary string) {
	h.mu.Lock()
	h.page.Summary = summary
	h.page.LastAnalyzed = h.now()
	h.mu.Unlock()
}

// UpdateStats stores tree statistics from the latest snapshot.
func (h *Holder) UpdateStats(stats extract.TreeStats) {
	h.mu.Lock()
	h.page.Stats = stats
	h.mu.Unlock()
}

// UpdateProgress stores the latest description-batch snapshot.
func (h *Holder) UpdateProgress(p describe.Progress) {
	h.mu.Lock()
	h.progress = cloneProgress(p)
	h.mu.Unlock()
}

// UpdateViolations stores the latest audit findings.
func (h *Holder) UpdateViolations(v []audit.Violation) {
	h.mu.Lock()
	h.violations = append([]audit.Violation(nil), v...)
	h.mu.Unlock()
}

// Reset clears everything, typically on navigation.
func (h *Holder) Reset() {
	h.mu.Lock()
	h.page = Page{}
	h.progress = describe.Progress{}
	h.violations = nil
	h.mu.Unlock()
}

func cloneProgress(p describe.Progress) describe.Progress {
	out := p
	if p.Jobs != nil {
		out.Jobs = make(map[string]describe.Job, len(p.Jobs))
		for id, j := range p.Jobs {
			out.Jobs[id] = j
		}
	}
	return out
}
