package snapshot_test

import (
	"testing"
	"time"

	"github.com/vixlabs/vix/cache"
	"github.com/vixlabs/vix/dom/memdom"
	"github.com/vixlabs/vix/snapshot"
)

const baseURL = "https://example.com/dir/page.html"

func newSnapshotter(t *testing.T) (*snapshot.Snapshotter, *cache.Cache) {
	t.Helper()
	c := cache.New(cache.Options{MaxEntries: 64, DefaultTTL: time.Minute})
	return snapshot.New(snapshot.Config{Cache: c}), c
}

func collect(n *snapshot.Node, tag string) []*snapshot.Node {
	if n == nil {
		return nil
	}
	var out []*snapshot.Node
	if n.Tag == tag {
		out = append(out, n)
	}
	for _, c := range n.Children {
		out = append(out, collect(c, tag)...)
	}
	return out
}

func first(n *snapshot.Node, tag string) *snapshot.Node {
	all := collect(n, tag)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

func TestSnapshotDocument_Shape(t *testing.T) {
	d := memdom.MustParse(`<!DOCTYPE html>
<html><head><title>t</title></head>
<body data-vix="root0001">
  <div data-vix="wrap0001">
    <img data-vix="img00001" src="/pics/cat.png" alt="a cat">
    <a data-vix="link0001" href="about.html">About</a>
    <script>var x = 1;</script>
  </div>
</body></html>`, baseURL)

	s, _ := newSnapshotter(t)
	tree := s.SnapshotDocument(d)
	if tree == nil {
		t.Fatal("SnapshotDocument returned nil")
	}
	if tree.Tag != "body" {
		t.Fatalf("root tag = %q, want body", tree.Tag)
	}
	if got := snapshot.CountNodes(tree); got != 4 {
		t.Fatalf("CountNodes = %d, want 4 (script excluded)", got)
	}
	if len(collect(tree, "script")) != 0 {
		t.Fatal("script survived the snapshot")
	}

	img := first(tree, "img")
	if img == nil {
		t.Fatal("no img node")
	}
	if !img.IsImage {
		t.Error("img.IsImage = false, want true")
	}
	if img.ID != "img00001" {
		t.Errorf("img.ID = %q, want img00001", img.ID)
	}

	link := first(tree, "a")
	if link == nil {
		t.Fatal("no a node")
	}
	if !link.IsAction {
		t.Error("link.IsAction = false, want true")
	}
	if link.DirectText != "About" {
		t.Errorf("link.DirectText = %q, want About", link.DirectText)
	}
}

func TestSnapshot_SkippableRootIsNil(t *testing.T) {
	d := memdom.MustParse(`<html><body><script>1</script></body></html>`, baseURL)
	s, _ := newSnapshotter(t)
	if n := s.Snapshot(d.FirstByTag("script"), baseURL); n != nil {
		t.Fatalf("Snapshot(script) = %+v, want nil", n)
	}
	if n := s.Snapshot(nil, baseURL); n != nil {
		t.Fatalf("Snapshot(nil) = %+v, want nil", n)
	}
}

func TestSnapshot_URLResolution(t *testing.T) {
	tests := []struct {
		name string
		html string
		tag  string
		attr string
		want string
	}{
		{"relative src", `<html><body><img src="a.png"></body></html>`, "img", "src",
			"https://example.com/dir/a.png"},
		{"root relative href", `<html><body><a href="/about">x</a></body></html>`, "a", "href",
			"https://example.com/about"},
		{"protocol relative", `<html><body><img src="//cdn.example.com/x.png"></body></html>`, "img", "src",
			"https://cdn.example.com/x.png"},
		{"data uri untouched", `<html><body><img src="data:image/gif;base64,R0lGOD"></body></html>`, "img", "src",
			"data:image/gif;base64,R0lGOD"},
		{"absolute untouched", `<html><body><img src="https://other.test/i.jpg"></body></html>`, "img", "src",
			"https://other.test/i.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := memdom.MustParse(tt.html, baseURL)
			s, _ := newSnapshotter(t)
			n := s.Snapshot(d.FirstByTag(tt.tag), baseURL)
			if n == nil {
				t.Fatal("Snapshot returned nil")
			}
			if got := n.Attrs[tt.attr]; got != tt.want {
				t.Errorf("%s = %q, want %q", tt.attr, got, tt.want)
			}
		})
	}
}

func TestSnapshot_BackgroundSynthesis(t *testing.T) {
	d := memdom.MustParse(
		`<html><body><div data-vix="hero0001" class="hero" style="background-image: url('/img/hero.jpg')">Sale</div></body></html>`,
		baseURL)
	s, _ := newSnapshotter(t)
	n := s.Snapshot(d.FirstByTag("div"), baseURL)
	if n == nil {
		t.Fatal("Snapshot returned nil")
	}
	if !n.IsImage {
		t.Fatal("background div not classified as image")
	}
	if got, want := n.Attrs["src"], "https://example.com/img/hero.jpg"; got != want {
		t.Errorf("synthetic src = %q, want %q", got, want)
	}
}

func TestSnapshot_BackgroundLazyAttr(t *testing.T) {
	d := memdom.MustParse(
		`<html><body><div data-vix="lazy0001" style="background-image: url()" data-src="/img/lazy.jpg"></div></body></html>`,
		baseURL)
	s, _ := newSnapshotter(t)
	n := s.Snapshot(d.FirstByTag("div"), baseURL)
	if n == nil {
		t.Fatal("Snapshot returned nil")
	}
	if got, want := n.Attrs["src"], "https://example.com/img/lazy.jpg"; got != want {
		t.Errorf("lazy src = %q, want %q", got, want)
	}
}

func TestSnapshot_AnonymousFragmentsReused(t *testing.T) {
	d := memdom.MustParse(`<html><body data-vix="root0001">
<ul data-vix="list0001"><li class="row">item</li><li class="row">item</li></ul>
</body></html>`, baseURL)

	s, c := newSnapshotter(t)
	tree := s.SnapshotDocument(d)
	lis := collect(tree, "li")
	if len(lis) != 2 {
		t.Fatalf("got %d li nodes, want 2", len(lis))
	}
	if lis[0] == lis[1] {
		t.Fatal("cache handed out the same *Node twice")
	}
	if !snapshot.Equal(lis[0], lis[1]) {
		t.Fatal("reused fragments differ structurally")
	}
	if c.Stats().Hits == 0 {
		t.Fatal("second identical fragment did not hit the cache")
	}

	// A copy's attribute map is private: mutating it must not leak into
	// later snapshots.
	lis[1].Attrs["poisoned"] = "yes"
	again := collect(s.SnapshotDocument(d), "li")
	if _, ok := again[0].Attrs["poisoned"]; ok {
		t.Fatal("mutation of a returned copy leaked into the cache")
	}
	if _, ok := again[1].Attrs["poisoned"]; ok {
		t.Fatal("mutation of a returned copy leaked into the cache")
	}
}

func TestSnapshot_IdentifiedNodesNeverCached(t *testing.T) {
	d := memdom.MustParse(`<html><body data-vix="root0001">
<p data-vix="p0000001">same</p><p data-vix="p0000002">same</p>
</body></html>`, baseURL)

	s, c := newSnapshotter(t)
	s.SnapshotDocument(d)
	if got := c.Len(); got != 0 {
		t.Fatalf("cache holds %d entries after id-only snapshot, want 0", got)
	}
}

func TestSnapshot_NoCacheStillWorks(t *testing.T) {
	d := memdom.MustParse(`<html><body><p>hi</p><p>hi</p></body></html>`, baseURL)
	s := snapshot.New(snapshot.Config{})
	tree := s.SnapshotDocument(d)
	if got := len(collect(tree, "p")); got != 2 {
		t.Fatalf("got %d p nodes, want 2", got)
	}
}

func TestParseCSSURL(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"double quoted", `url("https://a.test/x.png")`, "https://a.test/x.png"},
		{"single quoted", `url('/x.png')`, "/x.png"},
		{"bare", `url(/x.png)`, "/x.png"},
		{"uppercase", `URL("/x.png")`, "/x.png"},
		{"none", "none", ""},
		{"empty", "", ""},
		{"gradient only", "linear-gradient(#fff, #000)", ""},
		{"empty url", "url()", ""},
		{"padded", `  url( '/x.png' )  `, "/x.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snapshot.ParseCSSURL(tt.value); got != tt.want {
				t.Errorf("ParseCSSURL(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestShallowCopy_IndependentAttrs(t *testing.T) {
	n := &snapshot.Node{Tag: "div", Attrs: map[string]string{"class": "a"}}
	cp := n.ShallowCopy()
	cp.Attrs["class"] = "b"
	if n.Attrs["class"] != "a" {
		t.Fatalf("original attrs mutated through copy: %q", n.Attrs["class"])
	}
}
