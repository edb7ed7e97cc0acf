package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key namespaces. Bulk invalidation targets one concern by prefix, so every
// component must build its keys through Key with one of these.
const (
	NSDOM      = "dom:"       // snapshot fragments and extracted text
	NSImageAlt = "image-alt:" // generated image descriptions
	NSWCAG     = "wcag:"      // accessibility audit results and fixes
	NSURL      = "url:"       // resolved absolute URLs
	NSSummary  = "summary:"   // page summaries
)

// Key builds a namespaced cache key. Short single parts stay readable;
// anything longer (or composite) is hashed so URL-sized inputs produce
// bounded keys.
func Key(ns string, parts ...string) string {
	if len(parts) == 1 && len(parts[0]) <= 40 {
		return ns + parts[0]
	}
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return ns + hex.EncodeToString(h[:16])
}
