package roddom

import (
	"strings"
	"testing"
	"time"

	"github.com/vixlabs/vix/dom"
)

type recordingSink struct {
	mutations  []dom.Mutation
	urls       []string
	visibility []bool
}

func (s *recordingSink) Mutation(m dom.Mutation) { s.mutations = append(s.mutations, m) }
func (s *recordingSink) Navigated(url string)    { s.urls = append(s.urls, url) }
func (s *recordingSink) Visibility(v bool)       { s.visibility = append(s.visibility, v) }

func TestDecodeRecords(t *testing.T) {
	payload := `[
		{"op":"attr","id":"ab12cd34","attr":"alt"},
		{"op":"navigate","url":"https://example.com/next"},
		{"op":"visibility","visible":true}
	]`

	recs, err := decodeRecords(payload)
	if err != nil {
		t.Fatalf("decodeRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Op != "attr" || recs[0].ID != "ab12cd34" || recs[0].Attr != "alt" {
		t.Errorf("attr record = %+v", recs[0])
	}
	if recs[1].URL != "https://example.com/next" {
		t.Errorf("navigate record = %+v", recs[1])
	}
	if !recs[2].Visible {
		t.Errorf("visibility record = %+v", recs[2])
	}
}

func TestDecodeRecords_Malformed(t *testing.T) {
	if _, err := decodeRecords(`{"not":"an array"`); err == nil {
		t.Fatal("decodeRecords accepted malformed payload")
	}
}

func TestDecodeRecords_EmptyBatch(t *testing.T) {
	recs, err := decodeRecords(`[]`)
	if err != nil {
		t.Fatalf("decodeRecords: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("got %d records, want 0", len(recs))
	}
}

func TestDeliver_MapsRecordsToSink(t *testing.T) {
	sink := &recordingSink{}

	deliver(sink, []record{
		{Op: "attr", ID: "ab12cd34", Attr: "aria-label"},
		{Op: "structure", ID: ""},
		{Op: "text", ID: "ef56gh78"},
		{Op: "navigate", URL: "https://example.com/next"},
		{Op: "visibility", Visible: true},
		{Op: "bogus", ID: "ignored"},
	})

	want := []dom.Mutation{
		{Kind: dom.MutationAttr, ElementID: "ab12cd34", Attr: "aria-label"},
		{Kind: dom.MutationStructure},
		{Kind: dom.MutationText, ElementID: "ef56gh78"},
	}
	if len(sink.mutations) != len(want) {
		t.Fatalf("got %d mutations, want %d", len(sink.mutations), len(want))
	}
	for i, m := range sink.mutations {
		if m != want[i] {
			t.Errorf("mutation %d = %+v, want %+v", i, m, want[i])
		}
	}
	if len(sink.urls) != 1 || sink.urls[0] != "https://example.com/next" {
		t.Errorf("urls = %v", sink.urls)
	}
	if len(sink.visibility) != 1 || !sink.visibility[0] {
		t.Errorf("visibility = %v", sink.visibility)
	}
}

// The bridge is plain JS with the binding name and marker attribute written
// out; this pins them to the Go constants.
func TestBridgeScript(t *testing.T) {
	if !strings.Contains(bridgeJS, bindingName) {
		t.Errorf("bridge.js does not call binding %q", bindingName)
	}
	if !strings.Contains(bridgeJS, dom.IDAttr) {
		t.Errorf("bridge.js does not reference %q", dom.IDAttr)
	}
	if !strings.Contains(bridgeJS, "alt|role|title|src|href|aria-") {
		t.Error("bridge.js lost the attribute allow-list")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.defaults()
	if cfg.NavigationTimeout != 30*time.Second {
		t.Errorf("NavigationTimeout = %v, want 30s", cfg.NavigationTimeout)
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}

	cfg = Config{NavigationTimeout: time.Second}.defaults()
	if cfg.NavigationTimeout != time.Second {
		t.Errorf("explicit NavigationTimeout overridden: %v", cfg.NavigationTimeout)
	}
}
