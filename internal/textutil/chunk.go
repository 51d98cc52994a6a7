package textutil

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 400
	DefaultMaxSize    = 600
)

// ChunkOptions configures chunking behavior.
type ChunkOptions struct {
	TargetSize int
	MaxSize    int
}

// DefaultChunkOptions returns default chunking options.
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{TargetSize: DefaultTargetSize, MaxSize: DefaultMaxSize}
}

// Chunk splits article text into paragraph-aligned chunks. Short text
// (<= MaxSize) returns a single chunk.
func Chunk(text string, opts ChunkOptions) []string {
	if opts.TargetSize == 0 {
		opts = DefaultChunkOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	return mergeBlocks(splitParagraphs(text), opts)
}

// Lead returns the leading chunks of text that fit in budget bytes. The first
// chunk is always kept, cut on a word boundary if it alone exceeds budget.
func Lead(text string, budget int) string {
	chunks := Chunk(text, DefaultChunkOptions())
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 && b.Len()+len(c)+2 > budget {
			break
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c)
	}
	out := b.String()
	if len(out) > budget {
		out = cutWord(out, budget)
	}
	return out
}

// splitParagraphs splits text on blank lines.
func splitParagraphs(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string

	flush := func() {
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, t)
		}
		current = nil
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

// mergeBlocks combines small paragraphs and splits oversized ones.
func mergeBlocks(blocks []string, opts ChunkOptions) []string {
	var results []string
	accum := ""

	flushAccum := func() {
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			results = append(results, hardSplit(accum, opts)...)
		} else {
			results = append(results, accum)
		}
		accum = ""
	}

	for _, b := range blocks {
		if accum == "" {
			accum = b
			continue
		}
		combined := accum + "\n\n" + b
		if len(combined) <= opts.TargetSize {
			accum = combined
		} else {
			flushAccum()
			accum = b
		}
	}
	flushAccum()

	return results
}

// hardSplit breaks an oversized paragraph on sentence boundaries.
func hardSplit(text string, opts ChunkOptions) []string {
	var results []string
	var current strings.Builder
	for _, s := range Sentences(text) {
		if current.Len() > 0 && current.Len()+len(s)+1 > opts.TargetSize {
			results = append(results, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		results = append(results, current.String())
	}
	return results
}

func cutWord(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
