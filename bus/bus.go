// Package bus is the in-process message fabric between the page pipeline
// and everything that drives it (panel API, MCP tools, the invalidation
// coordinator). Messages are a closed set of typed variants; dispatch is by
// kind, and an envelope with no registered handler is a soft failure the
// caller logs and drops. Delivery is at-least-once at the edges, so the
// dispatcher remembers recent envelope IDs and silently drops replays.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/vixlabs/vix/describe"
	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/idgen"
)

// Kind discriminates message variants.
type Kind string

const (
	KindAnalyzePage         Kind = "analyze_page"
	KindPageAnalyzed        Kind = "page_analyzed"
	KindDescribeImages      Kind = "describe_images"
	KindDescriptionProgress Kind = "description_progress"
	KindRunAudit            Kind = "run_audit"
	KindRunPageTask         Kind = "run_page_task"
	KindNavigationOccurred  Kind = "navigation_occurred"
	KindSetLanguage         Kind = "set_language"
)

// Message is one typed variant. The kind method ties each payload to its
// envelope discriminator so Publish cannot mislabel a body.
type Message interface {
	MessageKind() Kind
}

// AnalyzePage asks the agent to snapshot, summarize, and index the current
// page. Force bypasses the summary cache.
type AnalyzePage struct {
	Force bool `json:"force,omitempty"`
}

// PageAnalyzed announces a completed analysis.
type PageAnalyzed struct {
	URL     string            `json:"url"`
	Title   string            `json:"title,omitempty"`
	Summary string            `json:"summary"`
	Stats   extract.TreeStats `json:"stats"`
}

// DescribeImages starts (or with Retry, resumes) a description batch for
// the current page's relevant images.
type DescribeImages struct {
	Retry bool `json:"retry,omitempty"`
}

// DescriptionProgress carries one progress snapshot from the orchestrator.
type DescriptionProgress struct {
	Progress describe.Progress `json:"progress"`
}

// RunAudit asks for an accessibility audit of the current snapshot, with
// fixes requested from the backend and applied where possible.
type RunAudit struct{}

// RunPageTask asks the agent to plan and execute a task on the page.
type RunPageTask struct {
	Prompt string `json:"prompt"`
}

// NavigationOccurred reports that the page address changed.
type NavigationOccurred struct {
	URL string `json:"url"`
}

// SetLanguage switches the persisted UI language.
type SetLanguage struct {
	Language string `json:"language"`
}

func (AnalyzePage) MessageKind() Kind         { return KindAnalyzePage }
func (PageAnalyzed) MessageKind() Kind        { return KindPageAnalyzed }
func (DescribeImages) MessageKind() Kind      { return KindDescribeImages }
func (DescriptionProgress) MessageKind() Kind { return KindDescriptionProgress }
func (RunAudit) MessageKind() Kind            { return KindRunAudit }
func (RunPageTask) MessageKind() Kind         { return KindRunPageTask }
func (NavigationOccurred) MessageKind() Kind  { return KindNavigationOccurred }
func (SetLanguage) MessageKind() Kind         { return KindSetLanguage }

// Envelope is the wire form of a message.
type Envelope struct {
	ID   string          `json:"id"`
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body,omitempty"`
}

// NewEnvelope wraps a message for dispatch, assigning a fresh envelope ID.
func NewEnvelope(msg Message) (Envelope, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return Envelope{}, fmt.Errorf("bus: marshal %s: %w", msg.MessageKind(), err)
	}
	return Envelope{ID: idgen.New(), Kind: msg.MessageKind(), Body: body}, nil
}

// Decode unmarshals an envelope body into its typed payload.
func Decode[T Message](body json.RawMessage) (T, error) {
	var msg T
	if len(body) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("bus: decode %s: %w", msg.MessageKind(), err)
	}
	return msg, nil
}

// ErrNoHandler is returned when an envelope's kind has no registered
// handler. Callers treat it as a soft failure: log and drop.
type ErrNoHandler struct {
	Kind Kind
}

func (e *ErrNoHandler) Error() string {
	return fmt.Sprintf("bus: no handler for kind %q", e.Kind)
}

// Handler processes one envelope body and optionally returns a response.
// At most one response per request.
type Handler func(ctx context.Context, body json.RawMessage) ([]byte, error)

// Dispatcher routes envelopes to handlers by kind.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[Kind]Handler
	seen     *expirable.LRU[string, struct{}]
	logger   *slog.Logger

	dedupSize int
	dedupTTL  time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDedup sizes the replay window. size bounds remembered IDs, ttl bounds
// how long an ID blocks replays.
func WithDedup(size int, ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.dedupSize = size
		d.dedupTTL = ttl
	}
}

// New creates a Dispatcher with no handlers.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers:  make(map[Kind]Handler),
		logger:    slog.Default(),
		dedupSize: 512,
		dedupTTL:  time.Minute,
	}
	for _, o := range opts {
		o(d)
	}
	d.seen = expirable.NewLRU[string, struct{}](d.dedupSize, nil, d.dedupTTL)
	return d
}

// Register installs the handler for a kind, replacing any previous one.
func (d *Dispatcher) Register(kind Kind, h Handler) {
	d.mu.Lock()
	d.handlers[kind] = h
	d.mu.Unlock()
}

// Kinds returns the registered kinds, sorted.
func (d *Dispatcher) Kinds() []Kind {
	d.mu.Lock()
	kinds := make([]Kind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	d.mu.Unlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch routes one envelope. Replayed envelope IDs succeed silently with
// no response and never reach a handler. An unregistered kind returns
// ErrNoHandler.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) ([]byte, error) {
	d.mu.Lock()
	if env.ID != "" {
		if d.seen.Contains(env.ID) {
			d.mu.Unlock()
			d.logger.DebugContext(ctx, "bus: duplicate envelope dropped", "id", env.ID, "kind", env.Kind)
			return nil, nil
		}
		d.seen.Add(env.ID, struct{}{})
	}
	h := d.handlers[env.Kind]
	d.mu.Unlock()

	if h == nil {
		return nil, &ErrNoHandler{Kind: env.Kind}
	}
	return h(ctx, env.Body)
}

// Publish wraps msg in a fresh envelope and dispatches it.
func (d *Dispatcher) Publish(ctx context.Context, msg Message) ([]byte, error) {
	env, err := NewEnvelope(msg)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, env)
}
