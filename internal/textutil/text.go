// Package textutil normalizes and splits news text for keying, matching and prompting.
package textutil

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"to": true, "with": true, "its": true, "has": true, "have": true, "was": true,
	"will": true, "after": true, "over": true, "says": true, "said": true,
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// sentenceEnd matches a terminator followed by whitespace and an upper-case
// letter or digit, so "U.S. rates" does not split.
var sentenceEnd = regexp.MustCompile(`([.!?])\s+([A-Z0-9"“])`)

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Clean collapses whitespace and drops invalid UTF-8 and NUL bytes.
func Clean(s string) string {
	return CollapseSpace(sanitize(s))
}

// CleanBody is Clean for article bodies: blank-line paragraph breaks are
// kept as "\n\n" and whitespace inside a paragraph collapses.
func CleanBody(s string) string {
	paras := splitParagraphs(strings.ReplaceAll(sanitize(s), "\r\n", "\n"))
	for i, p := range paras {
		paras[i] = CollapseSpace(p)
	}
	return strings.Join(paras, "\n\n")
}

func sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// Keywords returns the sorted set of tokens of at least three characters
// that are not stopwords.
func Keywords(text string) []string {
	seen := map[string]bool{}
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		seen[tok] = true
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Sentences splits text into trimmed sentences.
func Sentences(text string) []string {
	text = CollapseSpace(text)
	if text == "" {
		return nil
	}
	marked := sentenceEnd.ReplaceAllString(text, "$1\x1f$2")
	var out []string
	for _, s := range strings.Split(marked, "\x1f") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ContainsAny reports whether lower-cased text contains any of the terms.
func ContainsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// Truncate shortens s to at most max bytes on a word boundary, never
// inside a multi-byte rune.
func Truncate(s string, max int) string {
	return cutWord(s, max)
}
