// Package audit runs local accessibility checks over snapshot trees. The
// rules are deliberately narrow: they flag machine-decidable problems
// (missing alt, unlabeled controls, empty headings) and leave judgement
// calls to the model-backed wcag_check flow.
package audit

import (
	"fmt"
	"strings"

	"github.com/vixlabs/vix/extract"
	"github.com/vixlabs/vix/snapshot"
)

// Impact grades a violation, axe-style.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactSerious  Impact = "serious"
	ImpactModerate Impact = "moderate"
	ImpactMinor    Impact = "minor"
)

// Violation is one finding.
type Violation struct {
	RuleID    string `json:"rule_id"`
	Impact    Impact `json:"impact"`
	ElementID string `json:"element_id,omitempty"`
	Tag       string `json:"tag"`
	Message   string `json:"message"`
}

// Attribute is one attribute write requested by a fix.
type Attribute struct {
	Name  string `json:"attributeName"`
	Value string `json:"value"`
}

// Fix is the applier-consumable remediation for one element, the shape
// the wcag_check endpoint returns.
type Fix struct {
	ID            string      `json:"id"`
	AddAttributes []Attribute `json:"addAttributes"`
}

// Auditor checks a snapshot tree.
type Auditor interface {
	Audit(root *snapshot.Node) []Violation
}

// rule is one check applied to every node. ok=false means violated and
// message explains why.
type rule struct {
	ID     string
	Impact Impact
	Check  func(n *snapshot.Node, s scope) (string, bool)
}

// scope carries ancestry facts a node-local check cannot see.
type scope struct {
	inLabel bool
}

// RuleAuditor applies a fixed rule set.
type RuleAuditor struct {
	rules []rule
}

// NewRuleAuditor creates an auditor with the built-in rules.
func NewRuleAuditor() *RuleAuditor {
	return &RuleAuditor{rules: builtinRules()}
}

// Audit walks the tree and returns every violation found, in document
// order.
func (a *RuleAuditor) Audit(root *snapshot.Node) []Violation {
	var out []Violation
	a.walk(root, scope{}, &out)
	return out
}

func (a *RuleAuditor) walk(n *snapshot.Node, s scope, out *[]Violation) {
	if n == nil {
		return
	}
	for _, r := range a.rules {
		if msg, ok := r.Check(n, s); !ok {
			*out = append(*out, Violation{
				RuleID:    r.ID,
				Impact:    r.Impact,
				ElementID: n.ID,
				Tag:       n.Tag,
				Message:   msg,
			})
		}
	}
	child := s
	if n.Tag == "label" {
		child.inLabel = true
	}
	for _, c := range n.Children {
		a.walk(c, child, out)
	}
}

func builtinRules() []rule {
	return []rule{
		{
			ID:     "img-missing-alt",
			Impact: ImpactCritical,
			Check: func(n *snapshot.Node, _ scope) (string, bool) {
				if n.Tag != "img" {
					return "", true
				}
				if _, ok := n.Attrs["alt"]; ok {
					return "", true
				}
				return "img element has no alt attribute", false
			},
		},
		{
			ID:     "link-empty-text",
			Impact: ImpactSerious,
			Check: func(n *snapshot.Node, _ scope) (string, bool) {
				if n.Tag != "a" {
					return "", true
				}
				if hasAccessibleName(n) || extract.Text(n) != "" || describedByChild(n) {
					return "", true
				}
				return "link has no text and no accessible name", false
			},
		},
		{
			ID:     "button-empty-label",
			Impact: ImpactCritical,
			Check: func(n *snapshot.Node, _ scope) (string, bool) {
				if n.Tag != "button" {
					return "", true
				}
				if hasAccessibleName(n) || extract.Text(n) != "" || n.Attrs["value"] != "" {
					return "", true
				}
				return "button has no label", false
			},
		},
		{
			ID:     "input-missing-label",
			Impact: ImpactModerate,
			Check: func(n *snapshot.Node, s scope) (string, bool) {
				if n.Tag != "input" && n.Tag != "select" && n.Tag != "textarea" {
					return "", true
				}
				switch strings.ToLower(n.Attrs["type"]) {
				case "hidden", "submit", "reset", "button", "image":
					return "", true
				}
				if s.inLabel || hasAccessibleName(n) || n.Attrs["aria-labelledby"] != "" {
					return "", true
				}
				return fmt.Sprintf("%s form control lacks an accessible label", n.Tag), false
			},
		},
		{
			ID:     "empty-heading",
			Impact: ImpactModerate,
			Check: func(n *snapshot.Node, _ scope) (string, bool) {
				switch n.Tag {
				case "h1", "h2", "h3", "h4", "h5", "h6":
				default:
					return "", true
				}
				if extract.Text(n) != "" || hasAccessibleName(n) || describedByChild(n) {
					return "", true
				}
				return n.Tag + " heading is empty", false
			},
		},
		{
			ID:     "image-input-missing-alt",
			Impact: ImpactSerious,
			Check: func(n *snapshot.Node, _ scope) (string, bool) {
				if n.Tag != "input" || !strings.EqualFold(n.Attrs["type"], "image") {
					return "", true
				}
				if strings.TrimSpace(n.Attrs["alt"]) != "" || hasAccessibleName(n) {
					return "", true
				}
				return "image input has no alt attribute", false
			},
		},
	}
}

func hasAccessibleName(n *snapshot.Node) bool {
	return strings.TrimSpace(n.Attrs["aria-label"]) != "" ||
		strings.TrimSpace(n.Attrs["title"]) != ""
}

// describedByChild accepts containers whose imagery speaks for them, like
// a logo link wrapping an <img alt="...">.
func describedByChild(n *snapshot.Node) bool {
	for _, c := range n.Children {
		if c.Tag == "img" && strings.TrimSpace(c.Attrs["alt"]) != "" {
			return true
		}
		if describedByChild(c) {
			return true
		}
	}
	return false
}
