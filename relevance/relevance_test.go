package relevance_test

import (
	"testing"

	"github.com/vixlabs/vix/dom/memdom"
	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/relevance"
	"github.com/vixlabs/vix/snapshot"
)

const pageURL = "https://example.com/"

// page builds a document and extracts its images so tests exercise the
// same pipeline the agent runs.
func page(t *testing.T, body string) (*memdom.Document, []extract.Image) {
	t.Helper()
	d := memdom.MustParse("<html><body data-vix=\"root0001\">"+body+"</body></html>", pageURL)
	tree := snapshot.New(snapshot.Config{}).SnapshotDocument(d)
	return d, extract.Images(tree)
}

func classifyOne(t *testing.T, f *relevance.Filter, body string) relevance.Decision {
	t.Helper()
	d, imgs := page(t, body)
	if len(imgs) != 1 {
		t.Fatalf("fixture yielded %d images, want 1", len(imgs))
	}
	el := d.ByID(imgs[0].ID)
	if imgs[0].IsBackground {
		return f.ClassifyBackground(imgs[0], el)
	}
	return f.Classify(imgs[0], el)
}

func TestClassify_RuleOrder(t *testing.T) {
	f := relevance.New(relevance.Config{})
	tests := []struct {
		name     string
		body     string
		process  bool
		category relevance.Category
	}{
		{"role presentation",
			`<img data-vix="i1" src="/photo.jpg" role="presentation">`,
			false, relevance.CategoryDecorative},
		{"aria hidden",
			`<img data-vix="i1" src="/photo.jpg" aria-hidden="true">`,
			false, relevance.CategoryDecorative},
		{"small beats logo url",
			`<img data-vix="i1" src="/logo40.png" width="40" height="40">`,
			false, relevance.CategorySmall},
		{"small beats icon url",
			`<img data-vix="i1" src="/sprites/icon-home.png" width="40" height="40">`,
			false, relevance.CategorySmall},
		{"one large dimension is not small",
			`<img data-vix="i1" src="/wide.jpg" width="400" height="40">`,
			true, relevance.CategoryContent},
		{"icon url",
			`<img data-vix="i1" src="/sprites/icon-home.png" width="120" height="120">`,
			false, relevance.CategoryIcon},
		{"decorative url",
			`<img data-vix="i1" src="/img/spacer.gif">`,
			false, relevance.CategoryDecorative},
		{"icon url beats good alt",
			`<img data-vix="i1" src="/icon-cart.png" alt="a shopping cart icon in blue">`,
			false, relevance.CategoryIcon},
		{"plain content image",
			`<img data-vix="i1" src="/photos/beach.jpg">`,
			true, relevance.CategoryContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := classifyOne(t, f, tt.body)
			if d.Process != tt.process || d.Category != tt.category {
				t.Errorf("got (process=%v, category=%s, reason=%q), want (process=%v, category=%s)",
					d.Process, d.Category, d.Reason, tt.process, tt.category)
			}
		})
	}
}

func TestClassify_GoodAltConfidence(t *testing.T) {
	f := relevance.New(relevance.Config{})
	d := classifyOne(t, f, `<img data-vix="i1" src="/photos/x.jpg" alt="a detailed scenic mountain view">`)
	if !d.Process || d.Category != relevance.CategoryContent {
		t.Fatalf("good alt rejected: %+v", d)
	}
	if d.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9 for descriptive alt", d.Confidence)
	}
}

func TestClassify_LandmarkTogglesDefaultOff(t *testing.T) {
	f := relevance.New(relevance.Config{})
	d := classifyOne(t, f, `<nav data-vix="n1"><img data-vix="i1" src="/team.jpg"></nav>`)
	if !d.Process {
		t.Fatalf("nav exclusion should default off, got %+v", d)
	}
}

func TestClassify_LandmarkTogglesEnabled(t *testing.T) {
	ex := relevance.DefaultExclusions()
	ex.Navigation = true
	ex.Logo = true
	f := relevance.New(relevance.Config{Exclusions: &ex})

	d := classifyOne(t, f, `<nav data-vix="n1"><img data-vix="i1" src="/team.jpg"></nav>`)
	if d.Process || d.Category != relevance.CategoryNavigation {
		t.Errorf("nav image = %+v, want Navigation rejection", d)
	}

	d = classifyOne(t, f, `<div data-vix="d1" class="site-logo"><img data-vix="i1" src="/mark.png"></div>`)
	if d.Process || d.Category != relevance.CategoryLogo {
		t.Errorf("logo-wrapped image = %+v, want Logo rejection", d)
	}
}

func TestClassify_NilElement(t *testing.T) {
	f := relevance.New(relevance.Config{})
	d := f.Classify(extract.Image{ID: "gone", SourceURL: "https://x.test/icon-x.png"}, nil)
	if d.Process || d.Category != relevance.CategoryIcon {
		t.Fatalf("url rules should run without an element: %+v", d)
	}
}

func TestClassifyBackground(t *testing.T) {
	f := relevance.New(relevance.Config{})
	longText := "This container holds a long marketing paragraph well over the threshold."

	d := classifyOne(t, f,
		`<div data-vix="b1" style="background-image: url('/bg.jpg')">`+longText+`</div>`)
	if d.Process || d.Category != relevance.CategoryDecorative {
		t.Errorf("text container = %+v, want Decorative rejection", d)
	}

	d = classifyOne(t, f,
		`<div data-vix="b1" class="hero-banner" style="background-image: url('/bg.jpg')">`+longText+`</div>`)
	if !d.Process || d.Category != relevance.CategoryContent {
		t.Errorf("hero container = %+v, want forced acceptance", d)
	}

	d = classifyOne(t, f,
		`<div data-vix="b1" style="background-image: url('/bg.jpg')">Sale</div>`)
	if !d.Process {
		t.Errorf("short-text background = %+v, want acceptance", d)
	}
}

func TestSplit_EndToEnd(t *testing.T) {
	d, imgs := page(t, `
<img data-vix="i1" src="/a.png" width="40" height="40">
<img data-vix="i2" src="/b.png" width="30" height="30">
<img data-vix="i3" src="/sprites/icon-share.png" width="100" height="100">
<img data-vix="i4" src="/photos/team.jpg" width="600" height="400">
<img data-vix="i5" src="/photos/office.jpg" width="800" height="500">`)
	if len(imgs) != 5 {
		t.Fatalf("fixture yielded %d images, want 5", len(imgs))
	}

	f := relevance.New(relevance.Config{})
	process, filtered := f.Split(imgs, d.ByID)

	if len(process) != 2 {
		t.Fatalf("processable = %d, want 2: %+v", len(process), process)
	}
	if len(filtered) != 3 {
		t.Fatalf("filtered = %d, want 3: %+v", len(filtered), filtered)
	}

	got := map[relevance.Category]int{}
	for _, c := range filtered {
		got[c.Decision.Category]++
	}
	if got[relevance.CategorySmall] != 2 || got[relevance.CategoryIcon] != 1 {
		t.Fatalf("filtered categories = %v, want 2 small + 1 icon", got)
	}
	for _, c := range process {
		if c.Decision.Category != relevance.CategoryContent {
			t.Errorf("accepted image %s category = %s, want content", c.Image.ID, c.Decision.Category)
		}
	}
}
