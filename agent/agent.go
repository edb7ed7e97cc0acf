// Package agent binds the whole accessibility pipeline to one live
// document.
//
// It owns the session: tagging, snapshots, the derivation cache, the
// description orchestrator, auditing, and task execution all hang off a
// single Agent. The pipeline:
//
//	document → ident → snapshot → extract ↘
//	            relevance → describe → apply
//	            audit → backend fixes → apply
//
// Key features:
//   - Page analysis: stable tags, tree statistics, cached summaries
//   - Image description: filtered batches with live progress
//   - WCAG auditing: local rules, backend-suggested fixes
//   - Page tasks: model-planned commands, validated before execution
//   - Cache coordination: mutations and navigations drop derivations
//
// Usage:
//
//	a, err := agent.New(doc, cfg, logger)
//	defer a.Close()
//	doc.Observe(ctx, a.Coordinator()) // live event feed
//	a.RegisterBus(dispatcher)
//	a.RegisterMCP(mcpServer)
//	a.Start(ctx)
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/vixlabs/vix/apply"
	"github.com/vixlabs/vix/audit"
	"github.com/vixlabs/vix/backend"
	"github.com/vixlabs/vix/bus"
	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/describe"
	"github.com/vixlabs/vix/dom"
	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/ident"
	"github.com/vixlabs/vix/invalidate"
	"github.com/vixlabs/vix/relevance"
	"github.com/vixlabs/vix/settings"
	"github.com/vixlabs/vix/snapshot"
	"github.com/vixlabs/vix/state"
	"github.com/vixlabs/vix/task"
)

// Agent is the per-document session orchestrator.
type Agent struct {
	doc     dom.Document
	backend *backend.Client
	cache   *cache.Cache
	snap    *snapshot.Snapshotter
	ident   *ident.Assigner
	orch    *describe.Orchestrator
	auditor audit.Auditor
	applier *apply.Applier
	runner  *task.Executor
	coord   *invalidate.Coordinator
	store   *settings.Store // nil when persistence is off
	state   *state.Holder
	logger  *slog.Logger
	config  *Config

	// Both wake channels have capacity one; senders never block, the
	// loops read the fresh state themselves.
	analyzeWake  chan struct{}
	progressWake chan struct{}

	dispatcher atomic.Pointer[bus.Dispatcher]
}

// New creates an Agent around an open document. Opens the settings store
// when a path is configured and wires the cache coordinator, description
// orchestrator, and backend client together.
func New(doc dom.Document, cfg *Config, logger *slog.Logger) (*Agent, error) {
	if doc == nil {
		return nil, fmt.Errorf("agent: nil document")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	c := cache.New(cache.Options{
		MaxEntries: cfg.Cache.MaxEntries,
		DefaultTTL: cfg.Cache.TTL,
	})

	a := &Agent{
		doc: doc,
		backend: backend.New(backend.Config{
			BaseURL:      cfg.Backend.URL,
			Timeout:      cfg.Backend.Timeout,
			MaxRetries:   cfg.Backend.MaxRetries,
			RetryBackoff: cfg.Backend.RetryBackoff,
			Model:        cfg.Backend.Model,
			Logger:       logger,
		}),
		cache:   c,
		snap:    snapshot.New(snapshot.Config{Cache: c, Logger: logger}),
		ident:   ident.New(nil, logger),
		auditor: audit.NewRuleAuditor(),
		applier: apply.New(c, logger),
		runner:  task.NewExecutor(logger),
		state:   state.NewHolder(),
		logger:  logger,
		config:  cfg,

		analyzeWake:  make(chan struct{}, 1),
		progressWake: make(chan struct{}, 1),
	}

	a.orch = describe.New(a.backend, describe.Config{
		Concurrency: cfg.Describe.Concurrency,
		Cache:       c,
		CacheTTL:    cfg.Describe.CacheTTL,
		OnProgress:  a.onProgress,
		Logger:      logger,
	})

	if cfg.Settings.Path != "" {
		st, err := settings.Open(cfg.Settings.Path)
		if err != nil {
			return nil, fmt.Errorf("agent: open settings: %w", err)
		}
		a.store = st
	}

	a.coord = invalidate.New(c, invalidate.Options{
		OnNavigated: a.onNavigated,
		OnReprocess: a.onReprocess,
		Logger:      logger,
	})

	return a, nil
}

// Start launches the background goroutines: the URL watch, the
// re-analysis loop, and the progress publisher. Register the bus before
// Start if progress events should reach it from the first batch.
func (a *Agent) Start(ctx context.Context) {
	go a.coord.Watch(ctx, a.doc)
	go a.analysisLoop(ctx)
	go a.progressLoop(ctx)
	a.logger.Info("agent: started", "url", a.doc.URL())
}

// Close cancels any running batch and releases the settings store. The
// document and browser belong to the caller.
func (a *Agent) Close() error {
	a.orch.Cancel()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Coordinator exposes the cache coordinator as the sink for live
// document events. Plug it into Document.Observe.
func (a *Agent) Coordinator() *invalidate.Coordinator {
	return a.coord
}

// AnalyzePage tags the document, snapshots it, and refreshes the session
// view: address, title, tree statistics, and a page summary. Summaries
// are cached per address. A backend failure falls back to a statistics
// sentence that is never cached, so the next pass retries.
func (a *Agent) AnalyzePage(ctx context.Context) (state.Page, error) {
	body := a.doc.Body()
	if body == nil {
		return state.Page{}, fmt.Errorf("agent: document has no body")
	}
	assigned := a.ident.Assign(body)

	root := a.snap.SnapshotDocument(a.doc)
	if root == nil {
		return state.Page{}, fmt.Errorf("agent: empty snapshot")
	}

	stats := extract.Stats(root)
	pageURL := a.doc.URL()
	a.state.SetURL(pageURL)
	a.state.SetTitle(a.doc.Title())
	a.state.UpdateStats(stats)

	summary, err := a.summarize(ctx, pageURL, root, stats)
	if err != nil {
		a.logger.Warn("agent: summary fallback", "url", pageURL, "error", err)
	}
	a.state.UpdateSummary(summary)

	a.logger.Info("agent: page analyzed",
		"url", pageURL,
		"nodes", stats.Nodes,
		"images", stats.Images,
		"assigned", assigned.Assigned)
	return a.state.Get().Page, nil
}

// summarize returns the page summary, preferring the per-address cache.
// On a miss it feeds the page content to the backend as markdown, or as
// plain snapshot text when conversion yields nothing.
func (a *Agent) summarize(ctx context.Context, pageURL string, root *snapshot.Node, stats extract.TreeStats) (string, error) {
	key := cache.Key(cache.NSSummary, pageURL)
	if s, ok := a.cache.GetString(key); ok {
		return s, nil
	}

	var content string
	if html, err := a.doc.HTML(); err == nil {
		if md, err := extract.Markdown(html, pageURL); err == nil {
			content = md
		}
	}
	if strings.TrimSpace(content) == "" {
		content = extract.Text(root)
	}

	summary, err := a.backend.SummarizePage(ctx, content)
	if err != nil {
		return backend.FallbackSummary(pageURL, stats), err
	}
	a.cache.Set(key, summary, 0)
	return summary, nil
}

// DescribeImages snapshots the page, filters its images down to the ones
// worth describing, runs the batch, and writes completed descriptions to
// the live document. It blocks until the batch settles; live progress
// flows through the session state and the bus. Returns the final batch
// progress and the number of descriptions applied.
func (a *Agent) DescribeImages(ctx context.Context) (describe.Progress, int, error) {
	root := a.snap.SnapshotDocument(a.doc)
	if root == nil {
		return describe.Progress{}, 0, fmt.Errorf("agent: empty snapshot")
	}

	images := extract.Images(root)
	process, filtered := a.filter(ctx).Split(images, a.doc.ByID)

	reqs := make([]describe.Request, 0, len(process))
	background := make(map[string]bool)
	for _, cl := range process {
		reqs = append(reqs, describe.Request{ID: cl.Image.ID, URL: cl.Image.SourceURL})
		if cl.Image.IsBackground {
			background[cl.Image.ID] = true
		}
	}
	a.logger.Info("agent: describing images",
		"total", len(images), "relevant", len(reqs), "filtered", len(filtered))
	if len(reqs) == 0 {
		return a.orch.Progress(), 0, nil
	}

	prog := a.orch.Process(ctx, reqs, a.state.Get().Page.Summary)
	return prog, a.applyCompleted(prog, background), nil
}

// RetryDescriptions re-runs only the failed jobs of the last batch and
// applies whatever completes this time.
func (a *Agent) RetryDescriptions(ctx context.Context) (describe.Progress, int, error) {
	root := a.snap.SnapshotDocument(a.doc)
	if root == nil {
		return describe.Progress{}, 0, fmt.Errorf("agent: empty snapshot")
	}
	background := make(map[string]bool)
	for _, img := range extract.Images(root) {
		if img.IsBackground {
			background[img.ID] = true
		}
	}

	prog := a.orch.RetryFailed(ctx)
	return prog, a.applyCompleted(prog, background), nil
}

// applyCompleted writes completed jobs back to the document. Re-applying
// an unchanged description is a same-value attribute write, which the
// coordinator's pre-filter ignores.
func (a *Agent) applyCompleted(prog describe.Progress, background map[string]bool) int {
	results := make([]apply.Result, 0, len(prog.Jobs))
	for id, j := range prog.Jobs {
		if j.State != describe.StateCompleted {
			continue
		}
		results = append(results, apply.Result{
			ID:           id,
			AltText:      j.Description,
			IsBackground: background[id],
		})
	}
	return a.applier.ApplyDescriptions(a.doc, results)
}

// AuditOutcome reports one audit pass.
type AuditOutcome struct {
	Violations []audit.Violation `json:"violations"`
	Applied    int               `json:"applied"`
	FromCache  bool              `json:"from_cache,omitempty"`
}

// RunAudit audits the current snapshot, asks the backend to suggest
// fixes, and applies the ones that pass the attribute allow-list. Fixes
// are cached per address and every successful write drops that entry,
// so a hit means the previous pass could not change anything.
func (a *Agent) RunAudit(ctx context.Context) (AuditOutcome, error) {
	root := a.snap.SnapshotDocument(a.doc)
	if root == nil {
		return AuditOutcome{}, fmt.Errorf("agent: empty snapshot")
	}

	violations := a.auditor.Audit(root)
	a.state.UpdateViolations(violations)
	if len(violations) == 0 {
		a.logger.Info("agent: audit clean", "url", a.doc.URL())
		return AuditOutcome{}, nil
	}

	key := cache.Key(cache.NSWCAG, a.doc.URL())
	var fixes []audit.Fix
	fromCache := false
	if v, ok := a.cache.Get(key); ok {
		if cached, isFixes := v.([]audit.Fix); isFixes {
			fixes = cached
			fromCache = true
		}
	}
	if fixes == nil {
		issues, err := json.Marshal(violations)
		if err != nil {
			return AuditOutcome{Violations: violations}, fmt.Errorf("agent: encode violations: %w", err)
		}
		fixes, err = a.backend.WCAGCheck(ctx, string(issues))
		if err != nil {
			return AuditOutcome{Violations: violations}, fmt.Errorf("agent: wcag check: %w", err)
		}
		a.cache.Set(key, fixes, 0)
	}

	applied := a.applier.ApplyFixes(a.doc, fixes)
	a.logger.Info("agent: audit complete",
		"violations", len(violations), "fixes", len(fixes), "applied", applied)
	return AuditOutcome{Violations: violations, Applied: applied, FromCache: fromCache}, nil
}

// TaskOutcome reports one page-task run.
type TaskOutcome struct {
	Explanation string        `json:"explanation"`
	Results     []task.Result `json:"results"`
	Rejected    []task.Reject `json:"rejected,omitempty"`
	Failed      int           `json:"failed"`
}

// RunPageTask sends the page's interactive inventory and the prompt to
// the backend, then parses and executes the returned commands against
// the live document. Commands that fail validation are reported, never
// run.
func (a *Agent) RunPageTask(ctx context.Context, prompt string) (TaskOutcome, error) {
	if strings.TrimSpace(prompt) == "" {
		return TaskOutcome{}, fmt.Errorf("agent: empty task prompt")
	}
	root := a.snap.SnapshotDocument(a.doc)
	if root == nil {
		return TaskOutcome{}, fmt.Errorf("agent: empty snapshot")
	}

	actions, err := json.Marshal(extract.Actions(root))
	if err != nil {
		return TaskOutcome{}, fmt.Errorf("agent: encode actions: %w", err)
	}

	resp, err := a.backend.ExecutePageTask(ctx, backend.TaskRequest{
		HTMLContent: actions,
		TaskPrompt:  prompt,
		PageSummary: a.state.Get().Page.Summary,
	})
	if err != nil {
		return TaskOutcome{}, fmt.Errorf("agent: page task: %w", err)
	}

	cmds, rejected := task.Parse(resp.Commands)
	results := a.runner.Run(ctx, a.doc, cmds)
	out := TaskOutcome{
		Explanation: resp.Explanation,
		Results:     results,
		Rejected:    rejected,
		Failed:      task.Failed(results),
	}
	a.logger.Info("agent: task finished",
		"commands", len(cmds), "rejected", len(rejected), "failed", out.Failed)
	return out, nil
}

// filter builds the relevance filter for one pass. Persistent settings
// win over the YAML toggles when a store is wired.
func (a *Agent) filter(ctx context.Context) *relevance.Filter {
	ex := a.exclusions(ctx)
	return relevance.New(relevance.Config{
		MinSize:    a.config.Filter.MinSize,
		Exclusions: &ex,
	})
}

func (a *Agent) exclusions(ctx context.Context) relevance.Exclusions {
	if a.store != nil {
		ex, err := a.store.Exclusions(ctx)
		if err == nil {
			return ex
		}
		a.logger.Warn("agent: settings read failed, using config toggles", "error", err)
	}
	f := a.config.Filter
	return relevance.Exclusions{
		Navigation: f.Navigation,
		Header:     f.Header,
		Footer:     f.Footer,
		Sidebar:    f.Sidebar,
		Logo:       f.Logo,
		Icons:      boolOr(f.Icons, true),
		Decorative: boolOr(f.Decorative, true),
	}
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// onNavigated runs on the coordinator's event path after a navigation
// clear. It must not block: reset the view, drop the running batch, and
// wake the analysis loop.
func (a *Agent) onNavigated(url string) {
	a.state.Reset()
	a.state.SetURL(url)
	a.orch.Cancel()
	a.wakeAnalysis()
}

func (a *Agent) onReprocess() {
	a.wakeAnalysis()
}

func (a *Agent) wakeAnalysis() {
	select {
	case a.analyzeWake <- struct{}{}:
	default:
	}
}

// onProgress runs inside the orchestrator's lock. It records the
// snapshot and wakes the publisher; it must not call back into the
// orchestrator.
func (a *Agent) onProgress(p describe.Progress) {
	a.state.UpdateProgress(p)
	select {
	case a.progressWake <- struct{}{}:
	default:
	}
}

// analysisLoop serializes re-analysis triggered by navigations and
// structural churn. Errors are logged, not fatal: the page may still be
// loading when a wake arrives, and the next wake tries again.
func (a *Agent) analysisLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.analyzeWake:
		}
		if _, err := a.AnalyzePage(ctx); err != nil {
			a.logger.Warn("agent: re-analysis failed", "error", err)
		}
	}
}

// progressLoop publishes description progress to the bus. Wakes coalesce
// under load; the loop reads a fresh snapshot each time, and the final
// wake of a batch always lands after the final state, so the settled
// progress is always published.
func (a *Agent) progressLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.progressWake:
		}
		d := a.dispatcher.Load()
		if d == nil {
			continue
		}
		msg := bus.DescriptionProgress{Progress: a.orch.Progress()}
		if _, err := d.Publish(ctx, msg); err != nil {
			var noHandler *bus.ErrNoHandler
			if errors.As(err, &noHandler) {
				continue
			}
			a.logger.Warn("agent: progress publish failed", "error", err)
		}
	}
}
