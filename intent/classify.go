// Package intent decides whether a typed query names one product or asks for
// a comparison of several.
package intent

import (
	"regexp"
	"strings"
)

// Mode is the classification outcome.
type Mode string

const (
	ModeSingle  Mode = "single"
	ModeCompare Mode = "compare"
)

// MaxCompared caps the number of products in one comparison.
const MaxCompared = 3

// Intent is the result of Classify. Name is set for ModeSingle, Names for
// ModeCompare.
type Intent struct {
	Mode  Mode
	Name  string
	Names []string
}

var (
	comparePrefix = regexp.MustCompile(`(?i)^compare\s+`)
	explicitSep   = regexp.MustCompile(`(?i)\s(?:vs|versus)\.?(?:\s|$)`)
	weakSep       = regexp.MustCompile(`(?i)\s+and\s+|,`)
	anySep        = regexp.MustCompile(`(?i)\s(?:vs|versus)\.?(?:\s|$)|\s+and\s+|,`)
)

// Classify inspects raw. A leading "compare " or a vs/versus separator is an
// explicit request to compare; "and" or a comma only counts when it yields at
// least two non-empty names. Names are trimmed, de-duplicated by exact text
// and capped at MaxCompared. An explicit comparison that ends up with one
// name resolves to a single-product lookup of that name; with none, of the
// trimmed input.
//
// A product whose own name contains "and" or a comma (bundles, "Rock and
// Roll" editions) is classified as a comparison; there is no disambiguation.
func Classify(raw string) Intent {
	text := strings.TrimSpace(raw)
	single := Intent{Mode: ModeSingle, Name: text}

	explicit := false
	if loc := comparePrefix.FindStringIndex(text); loc != nil {
		explicit = true
		text = strings.TrimSpace(text[loc[1]:])
	}
	if explicitSep.MatchString(" " + text + " ") {
		explicit = true
	}

	if !explicit && len(segments(weakSep, text)) < 2 {
		return single
	}

	names := dedupe(segments(anySep, " "+text+" "))
	if len(names) > MaxCompared {
		names = names[:MaxCompared]
	}
	switch len(names) {
	case 0:
		return single
	case 1:
		return Intent{Mode: ModeSingle, Name: names[0]}
	}
	return Intent{Mode: ModeCompare, Names: names}
}

func segments(sep *regexp.Regexp, text string) []string {
	parts := sep.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
