package effects

import (
	"fmt"
	"sort"
	"strings"

	"videothingy/assembly-engine/internal/errs"
)

// LabelRegistry tracks every pad label in a filter graph: each label is
// produced once and consumed once, and stream specifiers like 0:v are
// consumed at most once.
type LabelRegistry struct {
	producedBy map[string]int
	consumed   map[string]int
}

// NewLabelRegistry returns an empty registry.
func NewLabelRegistry() *LabelRegistry {
	return &LabelRegistry{producedBy: map[string]int{}, consumed: map[string]int{}}
}

func isStream(label string) bool {
	return strings.Contains(label, ":")
}

// Produce records label as an output of segment.
func (r *LabelRegistry) Produce(label string, segment int) error {
	if isStream(label) {
		return errs.Structural(fmt.Sprintf("filter output %q shadows an input stream", label)).WithScene("", segment)
	}
	if prev, ok := r.producedBy[label]; ok {
		return errs.Structural(fmt.Sprintf("label [%s] produced by segment %d and again by segment %d", label, prev, segment)).WithScene("", segment)
	}
	r.producedBy[label] = segment
	return nil
}

// Consume records label as an input of segment.
func (r *LabelRegistry) Consume(label string, segment int) error {
	if prev, ok := r.consumed[label]; ok {
		return errs.Structural(fmt.Sprintf("label [%s] consumed by segment %d and again by segment %d", label, prev, segment)).WithScene("", segment)
	}
	if !isStream(label) {
		if _, ok := r.producedBy[label]; !ok {
			return errs.Structural(fmt.Sprintf("label [%s] consumed before it is produced", label)).WithScene("", segment)
		}
	}
	r.consumed[label] = segment
	return nil
}

// Register walks every filter chain in fragment, consuming its leading
// labels and producing its trailing ones.
func (r *LabelRegistry) Register(fragment string, segment int) error {
	for _, chain := range SplitChains(fragment) {
		ins, outs := chainLabels(chain)
		for _, l := range ins {
			if err := r.Consume(l, segment); err != nil {
				return err
			}
		}
		for _, l := range outs {
			if err := r.Produce(l, segment); err != nil {
				return err
			}
		}
	}
	return nil
}

// Dangling returns produced labels nobody consumed, sorted.
func (r *LabelRegistry) Dangling() []string {
	var out []string
	for l := range r.producedBy {
		if _, ok := r.consumed[l]; !ok {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}

// SplitChains splits a filter graph on ';' outside single quotes.
func SplitChains(graph string) []string {
	var chains []string
	var cur strings.Builder
	quoted, escaped := false, false
	for _, c := range graph {
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '\'':
			quoted = !quoted
		case c == ';' && !quoted:
			chains = append(chains, strings.TrimSpace(cur.String()))
			cur.Reset()
			continue
		}
		cur.WriteRune(c)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		chains = append(chains, s)
	}
	return chains
}

// chainLabels returns the leading and trailing pad labels of one chain.
func chainLabels(chain string) (ins, outs []string) {
	s := chain
	for strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			break
		}
		ins = append(ins, s[1:end])
		s = s[end+1:]
	}
	var rev []string
	for strings.HasSuffix(s, "]") {
		start := strings.LastIndexByte(s, '[')
		if start < 0 {
			break
		}
		rev = append(rev, s[start+1:len(s)-1])
		s = s[:start]
	}
	for i := len(rev) - 1; i >= 0; i-- {
		outs = append(outs, rev[i])
	}
	return ins, outs
}
