package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vixlabs/vix/bus"
	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/describe"
)

// RegisterBus wires the agent's operations to their message kinds and
// makes d the target for outgoing progress events. Handlers respond with
// the same JSON the panel serves, so callers on either surface see the
// same shapes.
func (a *Agent) RegisterBus(d *bus.Dispatcher) {
	a.dispatcher.Store(d)

	d.Register(bus.KindAnalyzePage, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		req, err := bus.Decode[bus.AnalyzePage](body)
		if err != nil {
			return nil, err
		}
		if req.Force {
			a.cache.Delete(cache.Key(cache.NSSummary, a.doc.URL()))
		}
		page, err := a.AnalyzePage(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(bus.PageAnalyzed{
			URL:     page.URL,
			Title:   page.Title,
			Summary: page.Summary,
			Stats:   page.Stats,
		})
	})

	d.Register(bus.KindDescribeImages, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		req, err := bus.Decode[bus.DescribeImages](body)
		if err != nil {
			return nil, err
		}
		run := a.DescribeImages
		if req.Retry {
			run = a.RetryDescriptions
		}
		prog, applied, err := run(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(describeResponse{Progress: prog, Applied: applied})
	})

	d.Register(bus.KindRunAudit, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		out, err := a.RunAudit(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})

	d.Register(bus.KindRunPageTask, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		req, err := bus.Decode[bus.RunPageTask](body)
		if err != nil {
			return nil, err
		}
		out, err := a.RunPageTask(ctx, req.Prompt)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	})

	d.Register(bus.KindNavigationOccurred, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		req, err := bus.Decode[bus.NavigationOccurred](body)
		if err != nil {
			return nil, err
		}
		a.coord.Navigated(req.URL)
		return nil, nil
	})

	d.Register(bus.KindSetLanguage, func(ctx context.Context, body json.RawMessage) ([]byte, error) {
		req, err := bus.Decode[bus.SetLanguage](body)
		if err != nil {
			return nil, err
		}
		if a.store == nil {
			return nil, fmt.Errorf("agent: no settings store configured")
		}
		if err := a.store.SetLanguage(ctx, req.Language); err != nil {
			return nil, err
		}
		return json.Marshal(bus.SetLanguage{Language: req.Language})
	})
}

// describeResponse is the reply shape for a description batch on both
// the bus and the panel.
type describeResponse struct {
	Progress describe.Progress `json:"progress"`
	Applied  int               `json:"applied"`
}
