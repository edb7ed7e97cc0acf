// Package ident implements the identifier pass: one depth-first walk over
// the live DOM that gives every content element a stable dom.IDAttr value.
//
// The pass only ever adds attributes. An element that already carries an
// identifier keeps it for its lifetime on the page; re-running the pass on
// an unchanged DOM assigns nothing new.
package ident

import (
	"log/slog"

	"github.com/vixlabs/vix/classify"
	"github.com/vixlabs/vix/dom"
	"github.com/vixlabs/vix/idgen"
)

// Stats reports one assignment pass.
type Stats struct {
	Assigned       int `json:"assigned"`
	Visited        int `json:"visited"`
	ActionElements int `json:"action_elements"`
	ImageElements  int `json:"image_elements"`
}

// Assigner walks a DOM and assigns identifiers.
type Assigner struct {
	gen    idgen.Generator
	logger *slog.Logger
}

// New creates an Assigner. A nil gen uses the element-id generator; a nil
// logger uses slog.Default.
func New(gen idgen.Generator, logger *slog.Logger) *Assigner {
	if gen == nil {
		gen = idgen.Element
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assigner{gen: gen, logger: logger}
}

// Assign walks root and all descendants depth-first. Skippable elements are
// excluded together with their entire subtree. Every other element lacking
// dom.IDAttr gets a fresh identifier, mirrored into the native id attribute
// when that is empty.
func (a *Assigner) Assign(root dom.Element) Stats {
	var st Stats
	if root == nil {
		return st
	}
	a.walk(root, &st)
	return st
}

func (a *Assigner) walk(el dom.Element, st *Stats) {
	if classify.SkippableElement(el) {
		return
	}
	st.Visited++

	if classify.IsAction(el) {
		st.ActionElements++
	}
	if classify.IsImage(el) {
		st.ImageElements++
	}

	if _, ok := el.Attr(dom.IDAttr); !ok {
		id := a.gen()
		if err := el.SetAttr(dom.IDAttr, id); err != nil {
			a.logger.Warn("ident: set attribute failed", "tag", el.Tag(), "error", err)
		} else {
			st.Assigned++
			if native, _ := el.Attr("id"); native == "" {
				if err := el.SetAttr("id", id); err != nil {
					a.logger.Warn("ident: set native id failed", "tag", el.Tag(), "error", err)
				}
			}
		}
	}

	for _, child := range el.Children() {
		a.walk(child, st)
	}
}
