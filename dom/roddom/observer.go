package roddom

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod/lib/proto"

	"github.com/vixlabs/vix/dom"
)

//go:embed bridge.js
var bridgeJS string

// bindingName is the page-side function the bridge calls with batched
// records. bridge.js hardcodes it; the tests keep the two in sync.
const bindingName = "__vix_notify"

// record is one bridge report. Op discriminates which fields are set.
type record struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Attr    string `json:"attr,omitempty"`
	URL     string `json:"url,omitempty"`
	Visible bool   `json:"visible,omitempty"`
}

// Observe installs the mutation bridge on the current document and every
// future one, then pumps binding payloads to sink until ctx ends. Call once
// per document.
func (d *Document) Observe(ctx context.Context, sink dom.EventSink) error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(d.page); err != nil {
		return fmt.Errorf("roddom: add binding: %w", err)
	}
	if _, err := d.page.EvalOnNewDocument(bridgeJS); err != nil {
		return fmt.Errorf("roddom: persist bridge: %w", err)
	}
	if _, err := d.page.Eval(bridgeJS); err != nil {
		return fmt.Errorf("roddom: install bridge: %w", err)
	}

	go d.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		recs, err := decodeRecords(e.Payload)
		if err != nil {
			d.logger.Warn("roddom: bad bridge payload", "error", err)
			return
		}
		deliver(sink, recs)
	})()

	d.logger.Debug("roddom: observer attached")
	return nil
}

func decodeRecords(payload string) ([]record, error) {
	var recs []record
	if err := json.Unmarshal([]byte(payload), &recs); err != nil {
		return nil, fmt.Errorf("roddom: decode payload: %w", err)
	}
	return recs, nil
}

// deliver maps bridge records onto the sink. Unknown ops are skipped so a
// newer bridge does not break an older pump.
func deliver(sink dom.EventSink, recs []record) {
	for _, rec := range recs {
		switch rec.Op {
		case "attr":
			sink.Mutation(dom.Mutation{Kind: dom.MutationAttr, ElementID: rec.ID, Attr: rec.Attr})
		case "structure":
			sink.Mutation(dom.Mutation{Kind: dom.MutationStructure, ElementID: rec.ID})
		case "text":
			sink.Mutation(dom.Mutation{Kind: dom.MutationText, ElementID: rec.ID})
		case "navigate":
			sink.Navigated(rec.URL)
		case "visibility":
			sink.Visibility(rec.Visible)
		}
	}
}
