package backend

import (
	"encoding/json"
	"strings"
)

// unwrap peels a response that arrives as a JSON-encoded string, possibly
// inside a markdown code fence. Model output shows up in all three
// shapes; two passes cover string-in-string nesting.
func unwrap(raw json.RawMessage) []byte {
	data := []byte(raw)
	for i := 0; i < 2; i++ {
		var s string
		if json.Unmarshal(data, &s) != nil {
			break
		}
		data = []byte(Unfence(s))
	}
	return data
}

// Unfence strips a surrounding markdown code fence (``` or ```json) from
// model output. Input without a fence passes through trimmed.
func Unfence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
