// Package moderation projects message content through a participant's
// blocked-phrase replacements. Matching runs on an Aho-Corasick automaton so
// one pass over the content handles any number of phrases.
package moderation

import (
	"sort"
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Filter substitutes every occurrence of a registered phrase with that
// phrase's replacement. It is a read-only projection; callers keep the
// original content.
type Filter struct {
	matcher      *goahocorasick.Machine
	replacements map[string]string
}

// NewFilter builds the automaton for the given phrase to replacement
// mapping. An empty mapping yields a pass-through filter.
func NewFilter(phrases map[string]string) *Filter {
	if len(phrases) == 0 {
		return &Filter{}
	}
	patterns := make([][]rune, 0, len(phrases))
	replacements := make(map[string]string, len(phrases))
	for phrase, replacement := range phrases {
		if phrase == "" {
			continue
		}
		patterns = append(patterns, []rune(phrase))
		replacements[phrase] = replacement
	}
	if len(patterns) == 0 {
		return &Filter{}
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		// A phrase set the automaton cannot hold is treated as empty
		// rather than blocking message delivery.
		return &Filter{}
	}
	return &Filter{matcher: m, replacements: replacements}
}

// Apply returns the content with every matched phrase substituted. Matches
// are applied left to right; a match starting inside an already replaced
// span is skipped.
func (f *Filter) Apply(content string) string {
	if f.matcher == nil {
		return content
	}
	runes := []rune(content)
	terms := f.matcher.MultiPatternSearch(runes, false)
	if len(terms) == 0 {
		return content
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Pos != terms[j].Pos {
			return terms[i].Pos < terms[j].Pos
		}
		return len(terms[i].Word) > len(terms[j].Word)
	})

	var sb strings.Builder
	next := 0 // first rune index not yet consumed
	for _, term := range terms {
		if term.Pos < next {
			continue
		}
		sb.WriteString(string(runes[next:term.Pos]))
		sb.WriteString(f.replacements[string(term.Word)])
		next = term.Pos + len(term.Word)
	}
	sb.WriteString(string(runes[next:]))
	return sb.String()
}
