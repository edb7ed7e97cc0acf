// Package dom defines the capability surface through which every other
// package touches a page. The pipeline never reaches for a browser handle
// directly: it receives a Document and walks Elements, so the same code runs
// against a live Chromium tab (roddom), a parsed HTML document (memdom), or
// a test fixture.
package dom

// IDAttr is the attribute carrying the stable element identifier assigned by
// the identifier pass. Once written it is never rewritten for the element's
// lifetime on the page; navigation resets the space.
const IDAttr = "data-vix"

// Element is one live DOM element.
type Element interface {
	// Tag returns the lowercase element name, or "" when unknown.
	Tag() string

	// Attr returns the attribute value and whether it is present.
	Attr(name string) (string, bool)

	// SetAttr writes an attribute. Adding attributes is the only DOM write
	// the pipeline performs outside the task executor.
	SetAttr(name, value string) error

	// Attrs returns a copy of all attributes.
	Attrs() map[string]string

	// Children returns element children in document order. Text nodes are
	// not elements; their content surfaces through DirectText.
	Children() []Element

	// DirectText returns the text owned directly by this element, not by
	// descendants, whitespace-collapsed.
	DirectText() string

	// Parent returns the parent element, or nil at the root.
	Parent() Element

	// BackgroundImage returns the element's effective background-image
	// value ("" or "none" when absent).
	BackgroundImage() string

	// Size returns the rendered box in CSS pixels, or (0, 0) when the
	// implementation cannot know it.
	Size() (width, height int)
}

// Interactive is implemented by elements that support user-gesture
// emulation. The task executor upgrades Elements to Interactive via type
// assertion; implementations without gesture support simply never match.
type Interactive interface {
	Click() error
	SetValue(value string) error
	Focus() error
	ScrollIntoView() error
}

// Document is one attached page.
type Document interface {
	// Root returns the document element.
	Root() Element

	// Body returns the body element, or nil when the document has none.
	Body() Element

	// ByID locates the element carrying IDAttr == id, or nil.
	ByID(id string) Element

	// URL returns the document's current address.
	URL() string

	// Title returns the document title, or "".
	Title() string

	// HTML serialises the current document as outer HTML.
	HTML() (string, error)
}

// MutationKind discriminates the mutation classes the invalidation
// coordinator cares about.
type MutationKind int

const (
	// MutationAttr is an attribute value change on an existing element.
	MutationAttr MutationKind = iota
	// MutationStructure is a child-list change (nodes added or removed).
	MutationStructure
	// MutationText is a character-data change.
	MutationText
)

func (k MutationKind) String() string {
	switch k {
	case MutationAttr:
		return "attr"
	case MutationStructure:
		return "structure"
	case MutationText:
		return "text"
	default:
		return "unknown"
	}
}

// Mutation is one observed DOM change.
type Mutation struct {
	Kind      MutationKind
	ElementID string // IDAttr value of the affected element, "" when untagged
	Attr      string // attribute name for MutationAttr
}

// EventSink receives page-level events from a live document implementation.
// Implementations must not block: delivery happens on the observer loop.
type EventSink interface {
	Mutation(m Mutation)
	Navigated(url string)
	Visibility(visible bool)
}
