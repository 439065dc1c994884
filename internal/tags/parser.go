// Package tags extracts state directives from narrator text.
//
// The grammar is small and explicit:
//
//	directive := [open] token ws* ":" ws* payload [close]
//	open      := "[" | "("
//	token     := XP | DAMAGE | ADD ITEM | GAIN ITEM | REMOVE ITEM
//	           | ADD COMPANION | REMOVE COMPANION | UPDATE JOURNAL | ADD TO JOURNAL
//
// Tokens are case-insensitive and the words inside a token may be separated by
// any amount of horizontal whitespace, including none. Markdown emphasis runs
// ("**", "_") around the token are tolerated. A bracketed payload runs to the
// first unbalanced "]" or ")" on the same line; an unbracketed payload runs to
// the end of the line or the next "[".
package tags

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind identifies a directive family
type Kind string

const (
	KindXP              Kind = "xp"
	KindDamage          Kind = "damage"
	KindAddItem         Kind = "add_item"
	KindRemoveItem      Kind = "remove_item"
	KindAddCompanion    Kind = "add_companion"
	KindRemoveCompanion Kind = "remove_companion"
	KindJournal         Kind = "journal"
)

// Directive is one parsed tag. Numeric kinds carry Value, the rest carry Text.
type Directive struct {
	Kind  Kind   `json:"kind"`
	Value int    `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
	Raw   string `json:"raw"`

	start, end int
}

type token struct {
	words []string
	kind  Kind
}

var grammar = []token{
	{[]string{"XP"}, KindXP},
	{[]string{"DAMAGE"}, KindDamage},
	{[]string{"ADD", "ITEM"}, KindAddItem},
	{[]string{"GAIN", "ITEM"}, KindAddItem},
	{[]string{"REMOVE", "ITEM"}, KindRemoveItem},
	{[]string{"ADD", "COMPANION"}, KindAddCompanion},
	{[]string{"REMOVE", "COMPANION"}, KindRemoveCompanion},
	{[]string{"UPDATE", "JOURNAL"}, KindJournal},
	{[]string{"ADD", "TO", "JOURNAL"}, KindJournal},
}

// Parse returns the directives found in text in order of appearance.
// Directives whose payload does not coerce are dropped.
func Parse(text string) []Directive {
	var out []Directive
	for i := 0; i < len(text); {
		d, next, ok := scanAt(text, i)
		if !ok {
			i++
			continue
		}
		if next <= i {
			next = i + 1
		}
		if d != nil {
			out = append(out, *d)
		}
		i = next
	}
	return out
}

// Strip removes every well-formed directive from text for display
func Strip(text string) string {
	directives := Parse(text)
	if len(directives) == 0 {
		return strings.TrimSpace(text)
	}

	var b strings.Builder
	last := 0
	for _, d := range directives {
		b.WriteString(text[last:d.start])
		last = d.end
	}
	b.WriteString(text[last:])

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// scanAt tries to read a directive starting at i. ok reports whether a token
// matched; d is nil when the token matched but its payload was dropped.
func scanAt(text string, i int) (d *Directive, next int, ok bool) {
	var open byte
	start, j := i, i
	switch text[i] {
	case '[', '(':
		open = text[i]
		j = skipSpace(text, skipEmphasis(text, skipSpace(text, i+1)))
	default:
		// a bare token owns the emphasis run in front of it
		for start > 0 && (text[start-1] == '*' || text[start-1] == '_') {
			start--
		}
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isWordRune(r) {
			return nil, 0, false
		}
	}

	kind, after, matched := matchToken(text, j)
	if !matched {
		return nil, 0, false
	}

	payload, end := readPayload(text, after, open)
	directive, valid := build(kind, payload)
	if !valid {
		return nil, end, true
	}
	directive.Raw = text[start:end]
	directive.start, directive.end = start, end
	return &directive, end, true
}

func matchToken(text string, i int) (Kind, int, bool) {
	for _, tok := range grammar {
		if end, ok := matchWords(text, i, tok.words); ok {
			return tok.kind, end, true
		}
	}
	return "", 0, false
}

// matchWords matches words followed by a colon and returns the index after it
func matchWords(text string, i int, words []string) (int, bool) {
	j := i
	for k, w := range words {
		if k > 0 {
			j = skipSpace(text, j)
		}
		if len(text)-j < len(w) || !strings.EqualFold(text[j:j+len(w)], w) {
			return 0, false
		}
		j += len(w)
	}
	j = skipSpace(text, skipEmphasis(text, skipSpace(text, j)))
	if j >= len(text) || text[j] != ':' {
		return 0, false
	}
	return j + 1, true
}

func readPayload(text string, from int, open byte) (string, int) {
	if open == 0 {
		end := from
		for end < len(text) && text[end] != '\n' && text[end] != '[' {
			end++
		}
		return text[from:end], end
	}

	// either closer ends the payload
	depth := 1
	k := from
	for ; k < len(text) && text[k] != '\n'; k++ {
		switch text[k] {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth == 0 {
				return text[from:k], k + 1
			}
		}
	}
	// unterminated: the payload runs to line end
	return text[from:k], k
}

func build(kind Kind, payload string) (Directive, bool) {
	switch kind {
	case KindXP, KindDamage:
		n, ok := leadingInt(payload)
		if !ok {
			return Directive{}, false
		}
		return Directive{Kind: kind, Value: n}, true
	case KindJournal:
		text := trimQuotes(strings.TrimSpace(payload))
		if text == "" {
			return Directive{}, false
		}
		return Directive{Kind: kind, Text: text}, true
	default:
		name := cleanName(payload)
		if name == "" {
			return Directive{}, false
		}
		return Directive{Kind: kind, Text: name}, true
	}
}

// leadingInt parses an optional sign and the digits that follow it. The
// number must stand alone: "4 points" reads as 4 but "1d6" and "5k" are
// rejected.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(strings.TrimSpace(s), "*_ \t")
	n := 0
	if n < len(s) && (s[n] == '+' || s[n] == '-') {
		n++
	}
	digits := n
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == digits || !numberEnds(s, n) {
		return 0, false
	}
	v, err := strconv.Atoi(s[:n])
	if err != nil {
		return 0, false
	}
	return v, true
}

// cleanName strips trailing parenthetical annotations, quotes and punctuation
// from an item or companion name: `"Potion (x2)".` becomes `Potion`.
func cleanName(s string) string {
	s = strings.TrimSpace(s)
	for {
		prev := s
		s = strings.TrimSpace(strings.TrimRight(s, ".,;:!"))
		s = trimQuotes(s)
		if strings.HasSuffix(s, ")") {
			if k := strings.LastIndex(s, "("); k > 0 {
				s = strings.TrimSpace(s[:k])
			}
		}
		if s == prev {
			return s
		}
	}
}

func trimQuotes(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\"'`*“”‘’"))
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

// numberEnds reports whether the digits ending at n are not glued to a unit
// or a fraction
func numberEnds(s string, n int) bool {
	if n >= len(s) {
		return true
	}
	if s[n] == '.' || s[n] == ',' || s[n] == '_' {
		return n+1 >= len(s) || s[n+1] < '0' || s[n+1] > '9'
	}
	r, _ := utf8.DecodeRuneInString(s[n:])
	return !isWordRune(r)
}

func skipEmphasis(text string, i int) int {
	for i < len(text) && (text[i] == '*' || text[i] == '_') {
		i++
	}
	return i
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
