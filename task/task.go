// Package task turns model-suggested page commands into an allow-listed
// gesture vocabulary and executes it through the dom capability.
//
// The planner behind ExecutePageTask returns js_commands as strings. Those
// strings are never evaluated: Parse recognizes the handful of shapes the
// prompt asks for (a bare verb grammar and the querySelector one-liners
// hosted models actually produce) and maps each onto a Command. Anything
// outside the vocabulary is rejected with a reason and never reaches a page.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/vixlabs/vix/dom"
)

// Op discriminates the allowed gesture kinds.
type Op string

const (
	OpClick    Op = "click"
	OpSetValue Op = "set_value"
	OpScrollTo Op = "scroll_to"
	OpFocus    Op = "focus"
)

// Command is one allow-listed gesture against a tagged element.
type Command struct {
	Op       Op     `json:"op"`
	TargetID string `json:"target_id"`
	Value    string `json:"value,omitempty"`
}

// Reject is one command string Parse refused, with the refusal reason.
type Reject struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

const idPat = `[A-Za-z0-9_-]+`

// selector matches the one querySelector shape the planner is prompted to
// use. Both quote nestings appear in practice, so both are captured.
const selector = `(?:window\.)?document\.querySelector\(\s*` +
	`(?:'\[` + dom.IDAttr + `="(` + idPat + `)"\]'` +
	`|"\[` + dom.IDAttr + `='(` + idPat + `)'\]")\s*\)`

var (
	idRe     = regexp.MustCompile(`^` + idPat + `$`)
	clickRe  = regexp.MustCompile(`^` + selector + `\.click\(\s*\)$`)
	valueRe  = regexp.MustCompile(`^` + selector + `\.value\s*=\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')$`)
	focusRe  = regexp.MustCompile(`^` + selector + `\.focus\(\s*\)$`)
	scrollRe = regexp.MustCompile(`^` + selector + `\.scrollIntoView\(\s*(?:\{[^()]*\})?\s*\)$`)
)

// scriptIndicators sharpen the reject reason when a refused command looks
// like real code rather than a malformed gesture.
var scriptIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\beval\s*\(`),
	regexp.MustCompile(`(?i)\bnew\s+Function\b`),
	regexp.MustCompile(`(?i)\bfetch\s*\(`),
	regexp.MustCompile(`(?i)XMLHttpRequest`),
	regexp.MustCompile(`(?i)document\.cookie`),
	regexp.MustCompile(`(?i)\blocation\s*=`),
	regexp.MustCompile(`(?i)\bwindow\.open\s*\(`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)\bimport\s*\(`),
}

// Parse maps raw command strings onto the allow-listed vocabulary. Strings
// that match nothing are returned as rejects; Parse never errors, so a batch
// with one bad command still yields the good ones.
func Parse(raw []string) ([]Command, []Reject) {
	var cmds []Command
	var rejects []Reject
	for _, r := range raw {
		line := strings.TrimSpace(r)
		line = strings.TrimSuffix(line, ";")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cmd, ok := parseVerb(line); ok {
			cmds = append(cmds, cmd)
			continue
		}
		if cmd, ok := parseJS(line); ok {
			cmds = append(cmds, cmd)
			continue
		}
		rejects = append(rejects, Reject{Raw: r, Reason: rejectReason(line)})
	}
	return cmds, rejects
}

// parseVerb handles the bare grammar: click <id>, set <id> <value...>,
// scroll <id>, focus <id>. The value for set is the remainder of the line.
func parseVerb(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Command{}, false
	}
	id := fields[1]
	if !idRe.MatchString(id) {
		return Command{}, false
	}
	switch strings.ToLower(fields[0]) {
	case "click":
		if len(fields) == 2 {
			return Command{Op: OpClick, TargetID: id}, true
		}
	case "focus":
		if len(fields) == 2 {
			return Command{Op: OpFocus, TargetID: id}, true
		}
	case "scroll":
		if len(fields) == 2 {
			return Command{Op: OpScrollTo, TargetID: id}, true
		}
	case "set":
		if len(fields) >= 3 {
			return Command{Op: OpSetValue, TargetID: id, Value: strings.Join(fields[2:], " ")}, true
		}
	}
	return Command{}, false
}

func parseJS(line string) (Command, bool) {
	if m := clickRe.FindStringSubmatch(line); m != nil {
		return Command{Op: OpClick, TargetID: firstGroup(m, 1, 2)}, true
	}
	if m := focusRe.FindStringSubmatch(line); m != nil {
		return Command{Op: OpFocus, TargetID: firstGroup(m, 1, 2)}, true
	}
	if m := scrollRe.FindStringSubmatch(line); m != nil {
		return Command{Op: OpScrollTo, TargetID: firstGroup(m, 1, 2)}, true
	}
	if m := valueRe.FindStringSubmatch(line); m != nil {
		return Command{
			Op:       OpSetValue,
			TargetID: firstGroup(m, 1, 2),
			Value:    unescape(firstGroup(m, 3, 4)),
		}, true
	}
	return Command{}, false
}

func rejectReason(line string) string {
	for _, pat := range scriptIndicators {
		if pat.MatchString(line) {
			return "refusing to execute script"
		}
	}
	return "not an allow-listed page command"
}

// firstGroup returns the first non-empty submatch among the given indices.
// Alternated quote styles put the same logical capture in different groups.
func firstGroup(m []string, idx ...int) string {
	for _, i := range idx {
		if m[i] != "" {
			return m[i]
		}
	}
	return ""
}

// unescape resolves the backslash escapes a quoted JS value can carry.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Result is the outcome of one executed command.
type Result struct {
	Command Command `json:"command"`
	Err     string  `json:"error,omitempty"`
}

// Failed counts the results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != "" {
			n++
		}
	}
	return n
}

// Executor drives commands against a document. Elements are upgraded to
// dom.Interactive by type assertion; documents whose elements do not
// implement it fail per command, not per batch.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an Executor. A nil logger falls back to slog.Default.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{logger: logger}
}

// Run executes the commands in order against doc. Every command yields a
// Result; failures are recorded and execution continues with the next
// command. Context cancellation fails the remaining commands without
// touching the page.
func (e *Executor) Run(ctx context.Context, doc dom.Document, cmds []Command) []Result {
	results := make([]Result, 0, len(cmds))
	for _, cmd := range cmds {
		res := Result{Command: cmd}
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Sprintf("cancelled: %v", err)
			results = append(results, res)
			continue
		}
		if err := e.run(doc, cmd); err != nil {
			e.logger.Warn("task: command failed", "op", cmd.Op, "target", cmd.TargetID, "error", err)
			res.Err = err.Error()
		}
		results = append(results, res)
	}
	return results
}

func (e *Executor) run(doc dom.Document, cmd Command) error {
	el := doc.ByID(cmd.TargetID)
	if el == nil {
		return fmt.Errorf("task: element %s not found", cmd.TargetID)
	}
	ia, ok := el.(dom.Interactive)
	if !ok {
		return fmt.Errorf("task: element %s does not support gestures", cmd.TargetID)
	}
	switch cmd.Op {
	case OpClick:
		return ia.Click()
	case OpSetValue:
		return ia.SetValue(cmd.Value)
	case OpFocus:
		return ia.Focus()
	case OpScrollTo:
		return ia.ScrollIntoView()
	default:
		return fmt.Errorf("task: unknown op %q", cmd.Op)
	}
}
