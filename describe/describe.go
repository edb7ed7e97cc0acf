// Package describe runs image description batches against the model
// backend with bounded concurrency, cache reuse, and per-job failure
// isolation.
//
// Each batch is a fresh set of jobs stepping through a forward-only state
// machine: Pending, Processing, then Completed or Failed. At most K jobs
// occupy Processing at once. A cached description completes a job without
// consuming a slot or touching the backend. One job's failure never
// aborts its siblings; the batch always settles.
package describe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vixlabs/vix/cache"
)

// State is a job's position in the lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Request names one image to describe.
type Request struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Job is the tracked state of one request within a batch.
type Job struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	State       State  `json:"state"`
	Description string `json:"description,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Progress is a consistent snapshot of the batch.
type Progress struct {
	Total      int            `json:"total"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	InProgress int            `json:"in_progress"`
	Jobs       map[string]Job `json:"jobs,omitempty"`
}

// Describer produces a description for an image in the context of a page.
type Describer interface {
	DescribeImage(ctx context.Context, url, pageContext string) (string, error)
}

// DescriberFunc adapts a function to the Describer interface.
type DescriberFunc func(ctx context.Context, url, pageContext string) (string, error)

func (f DescriberFunc) DescribeImage(ctx context.Context, url, pageContext string) (string, error) {
	return f(ctx, url, pageContext)
}

// Config configures an Orchestrator.
type Config struct {
	// Concurrency caps simultaneous Processing jobs. Default 3.
	Concurrency int

	// Cache stores descriptions under the image-alt namespace. Nil
	// disables reuse.
	Cache *cache.Cache

	// CacheTTL bounds stored descriptions. Default 2h: descriptions are
	// expensive and stable for a given image and page context.
	CacheTTL time.Duration

	// OnProgress, when set, receives a snapshot after every job
	// transition. Snapshots arrive in transition order; the callback runs
	// under the state lock, so it must return promptly and must not call
	// back into the Orchestrator.
	OnProgress func(Progress)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 2 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Orchestrator runs description batches. Starting a new batch with
// Process abandons any jobs still running from the previous one: their
// results are discarded when the jobs map is reset.
type Orchestrator struct {
	cfg       Config
	describer Describer
	slots     chan struct{}

	mu          sync.Mutex
	jobs        map[string]*Job
	pageContext string
}

// New creates an Orchestrator around a Describer.
func New(describer Describer, cfg Config) *Orchestrator {
	cfg.defaults()
	return &Orchestrator{
		cfg:       cfg,
		describer: describer,
		slots:     make(chan struct{}, cfg.Concurrency),
		jobs:      make(map[string]*Job),
	}
}

// Process runs one batch and blocks until every job settles. Job state
// from earlier batches is cleared first.
func (o *Orchestrator) Process(ctx context.Context, images []Request, pageContext string) Progress {
	o.mu.Lock()
	o.jobs = make(map[string]*Job, len(images))
	o.pageContext = pageContext
	ids := make([]string, 0, len(images))
	for _, img := range images {
		if img.ID == "" {
			continue
		}
		o.jobs[img.ID] = &Job{ID: img.ID, URL: img.URL, State: StatePending}
		ids = append(ids, img.ID)
	}
	o.emit(o.snapshotLocked())
	o.mu.Unlock()

	return o.run(ctx, ids)
}

// RetryFailed resets every Failed job to Pending and reprocesses only
// that subset. Completed jobs keep their descriptions.
func (o *Orchestrator) RetryFailed(ctx context.Context) Progress {
	o.mu.Lock()
	var ids []string
	for id, j := range o.jobs {
		if j.State == StateFailed {
			j.State = StatePending
			j.Err = ""
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		o.emit(o.snapshotLocked())
	}
	o.mu.Unlock()

	return o.run(ctx, ids)
}

// Cancel fails every Pending job with a cancellation reason. Jobs already
// Processing are left to finish; this is best-effort, not preemptive.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	for _, j := range o.jobs {
		if j.State == StatePending {
			j.State = StateFailed
			j.Err = "cancelled by user"
			o.emit(o.snapshotLocked())
		}
	}
	o.mu.Unlock()
}

// Progress returns the current snapshot.
func (o *Orchestrator) Progress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) run(ctx context.Context, ids []string) Progress {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			o.runJob(ctx, id)
		}(id)
	}
	wg.Wait()
	return o.Progress()
}

func (o *Orchestrator) runJob(ctx context.Context, id string) {
	o.mu.Lock()
	j, ok := o.jobs[id]
	if !ok || j.State != StatePending {
		o.mu.Unlock()
		return
	}
	url := j.URL
	pageContext := o.pageContext
	o.mu.Unlock()

	key := cache.Key(cache.NSImageAlt, url, pageContext)

	// Cache hit: complete without consuming a slot.
	if o.cfg.Cache != nil {
		if text, ok := o.cfg.Cache.GetString(key); ok {
			o.transition(id, StatePending, func(j *Job) {
				j.State = StateCompleted
				j.Description = text
			})
			return
		}
	}

	fail := func(reason string) {
		o.transition(id, StatePending, func(j *Job) {
			j.State = StateFailed
			j.Err = reason
		})
	}
	if err := ctx.Err(); err != nil {
		fail("cancelled: " + err.Error())
		return
	}
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		fail("cancelled: " + ctx.Err().Error())
		return
	}
	defer func() { <-o.slots }()

	// Cancel may have failed this job while it waited for a slot.
	if !o.transition(id, StatePending, func(j *Job) { j.State = StateProcessing }) {
		return
	}

	text, err := o.describer.DescribeImage(ctx, url, pageContext)
	if err != nil {
		o.cfg.Logger.Warn("describe: job failed", "id", id, "url", url, "error", err)
		o.transition(id, StateProcessing, func(j *Job) {
			j.State = StateFailed
			j.Err = err.Error()
		})
		return
	}

	if o.cfg.Cache != nil {
		o.cfg.Cache.Set(key, text, o.cfg.CacheTTL)
	}
	o.transition(id, StateProcessing, func(j *Job) {
		j.State = StateCompleted
		j.Description = text
	})
}

// transition applies fn to the job if it is still in the expected state,
// then emits a snapshot. Reports whether the transition happened.
func (o *Orchestrator) transition(id string, from State, fn func(*Job)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	j, ok := o.jobs[id]
	if !ok || j.State != from {
		return false
	}
	fn(j)
	o.emit(o.snapshotLocked())
	return true
}

func (o *Orchestrator) snapshotLocked() Progress {
	p := Progress{
		Total: len(o.jobs),
		Jobs:  make(map[string]Job, len(o.jobs)),
	}
	for id, j := range o.jobs {
		p.Jobs[id] = *j
		switch j.State {
		case StateCompleted:
			p.Completed++
		case StateFailed:
			p.Failed++
		case StateProcessing:
			p.InProgress++
		}
	}
	return p
}

func (o *Orchestrator) emit(p Progress) {
	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(p)
	}
}
