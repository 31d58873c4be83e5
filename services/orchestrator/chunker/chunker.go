// Copyright (C) 2025 Harbor AI (oss@harborai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package chunker splits extracted document pages into retrieval-sized
// fragments. Chunking is fully deterministic: the same pages always yield
// the same fragments in the same order, which keeps card identifiers
// stable across re-ingestion.
package chunker

import (
	"regexp"
	"strings"

	"github.com/harborai/lectern/services/orchestrator/datatypes"
)

// Word-count bounds for a fragment. Fragments pack whole heading-delimited
// blocks where possible; blocks larger than MaxWords are split by sliding
// windows that carry OverlapWords of trailing context forward.
const (
	DefaultMinWords     = 150
	DefaultMaxWords     = 500
	DefaultOverlapWords = 50
)

// Fragment is one retrieval unit cut from a document.
type Fragment struct {
	// Text is the fragment body, whitespace-normalized.
	Text string

	// Topic is a short label, at most twelve words, taken from the
	// fragment's leading heading or first sentence.
	Topic string

	// Summary is an extractive first-sentences summary.
	Summary string

	// PageSpan is the inclusive [first, last] page range the fragment's
	// words came from.
	PageSpan [2]int

	// Words is the fragment's word count.
	Words int
}

// Config tunes the packing bounds.
type Config struct {
	MinWords     int
	MaxWords     int
	OverlapWords int
}

func DefaultConfig() Config {
	return Config{
		MinWords:     DefaultMinWords,
		MaxWords:     DefaultMaxWords,
		OverlapWords: DefaultOverlapWords,
	}
}

// Chunker cuts pages into fragments.
type Chunker struct {
	cfg Config
}

func New(cfg Config) *Chunker {
	if cfg.MinWords <= 0 {
		cfg.MinWords = DefaultMinWords
	}
	if cfg.MaxWords <= cfg.MinWords {
		cfg.MaxWords = cfg.MinWords + DefaultMaxWords - DefaultMinWords
	}
	if cfg.OverlapWords < 0 || cfg.OverlapWords >= cfg.MinWords {
		cfg.OverlapWords = DefaultOverlapWords
	}
	return &Chunker{cfg: cfg}
}

// ========================================================================
// Heading detection
// ========================================================================

var (
	// Markdown ATX headers: "# Title" through "###### Title".
	atxHeadingRe = regexp.MustCompile(`^#{1,6}\s+\S`)

	// Numbered sections: "3. Results", "2.4 Analysis", "1.2.3. Detail".
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)

	// Setext underline: a run of = or - beneath the heading line.
	setextUnderlineRe = regexp.MustCompile(`^(={3,}|-{3,})\s*$`)

	// Common academic section names, allowing a trailing qualifier as in
	// "Methods and Materials".
	academicHeadingRe = regexp.MustCompile(`(?i)^(abstract|introduction|background|related work|methods?|methodology|materials|experiments?|results|evaluation|discussion|conclusions?|acknowledgm?ents|references|bibliography|appendix)\b`)
)

// isHeading reports whether a single line starts a new section. Academic
// headings only count when the line is short; "results" opening a normal
// sentence must not split the document.
func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if atxHeadingRe.MatchString(trimmed) || numberedHeadingRe.MatchString(trimmed) {
		return true
	}
	if academicHeadingRe.MatchString(trimmed) && len(strings.Fields(trimmed)) <= 4 {
		return true
	}
	return false
}

// ========================================================================
// Chunking
// ========================================================================

// pageWord is one word with the page it came from.
type pageWord struct {
	text string
	page int
}

// block is a heading-delimited run of words. Content before the first
// heading forms a headingless block.
type block struct {
	heading string
	words   []pageWord
}

// Chunk cuts the pages into fragments. Empty pages yield no fragments. A
// document whose entire content falls below MinWords still yields one
// fragment so no content is ever lost.
func (c *Chunker) Chunk(pages []datatypes.Page) []Fragment {
	blocks := c.splitBlocks(pages)
	if len(blocks) == 0 {
		return nil
	}
	return c.pack(blocks)
}

// splitBlocks walks every line of every page, resolving setext underlines
// and grouping lines into heading-delimited blocks.
func (c *Chunker) splitBlocks(pages []datatypes.Page) []block {
	var blocks []block
	current := block{}

	flush := func() {
		if len(current.words) > 0 || current.heading != "" {
			blocks = append(blocks, current)
		}
		current = block{}
	}

	appendLine := func(line string, page int) {
		for _, w := range strings.Fields(line) {
			current.words = append(current.words, pageWord{text: w, page: page})
		}
	}

	for _, p := range pages {
		lines := strings.Split(p.Text, "\n")
		for i := 0; i < len(lines); i++ {
			line := strings.TrimSpace(lines[i])
			if line == "" {
				continue
			}
			// A line underlined with === or --- is a setext heading.
			// Peek ahead so the heading starts its own block and the
			// underline itself is dropped.
			if i+1 < len(lines) && setextUnderlineRe.MatchString(strings.TrimSpace(lines[i+1])) && !isHeading(line) {
				flush()
				current.heading = line
				appendLine(line, p.PageNum)
				i++ // skip the underline
				continue
			}
			if isHeading(line) {
				flush()
				current.heading = line
				appendLine(line, p.PageNum)
				continue
			}
			appendLine(line, p.PageNum)
		}
	}
	flush()
	return blocks
}

// pack assembles blocks into fragments within [MinWords, MaxWords].
// Undersized blocks merge forward, an undersized tail folds backward, and
// oversized runs split by word windows with OverlapWords carried between
// windows.
func (c *Chunker) pack(blocks []block) []Fragment {
	var fragments []Fragment

	var cur []pageWord
	curHeading := ""

	// Words and heading of the most recently emitted fragment, kept so an
	// undersized trailing run can be folded back instead of standing alone.
	var lastWords []pageWord
	lastHeading := ""

	flush := func() {
		if len(cur) == 0 {
			return
		}
		if len(cur) <= c.cfg.MaxWords {
			fragments = append(fragments, c.fragment(cur, curHeading))
			lastWords, lastHeading = cur, curHeading
			cur = nil
			curHeading = ""
			return
		}
		// Window split with overlap carry-over. The final window is
		// anchored to the end so the tail never falls below MinWords.
		step := c.cfg.MaxWords - c.cfg.OverlapWords
		for start := 0; start < len(cur); start += step {
			end := start + c.cfg.MaxWords
			if end >= len(cur) {
				if len(cur)-start < c.cfg.MinWords {
					start = len(cur) - c.cfg.MinWords
					if start < 0 {
						start = 0
					}
				}
				heading := curHeading
				if start > 0 {
					heading = ""
				}
				fragments = append(fragments, c.fragment(cur[start:], heading))
				lastWords, lastHeading = cur[start:], heading
				break
			}
			heading := curHeading
			if start > 0 {
				heading = ""
			}
			fragments = append(fragments, c.fragment(cur[start:end], heading))
		}
		cur = nil
		curHeading = ""
	}

	for _, b := range blocks {
		if len(cur) == 0 {
			curHeading = b.heading
		}
		// Flush at a block boundary once we have enough words and the
		// next block will not fit.
		if len(cur) >= c.cfg.MinWords && len(cur)+len(b.words) > c.cfg.MaxWords {
			flush()
			curHeading = b.heading
		}
		cur = append(cur, b.words...)
	}

	// A trailing run below MinWords must not stand alone once other
	// fragments exist. Merge it back into the previous fragment when the
	// combined size fits, otherwise anchor it to the last MinWords words
	// so it carries overlap from the previous fragment. Every fragment
	// emitted before this point is at least MinWords, so lastWords always
	// covers the shortfall.
	if len(cur) > 0 && len(cur) < c.cfg.MinWords && len(fragments) > 0 {
		if len(lastWords)+len(cur) <= c.cfg.MaxWords {
			merged := make([]pageWord, 0, len(lastWords)+len(cur))
			merged = append(merged, lastWords...)
			merged = append(merged, cur...)
			fragments[len(fragments)-1] = c.fragment(merged, lastHeading)
		} else {
			need := c.cfg.MinWords - len(cur)
			anchored := make([]pageWord, 0, c.cfg.MinWords)
			anchored = append(anchored, lastWords[len(lastWords)-need:]...)
			anchored = append(anchored, cur...)
			fragments = append(fragments, c.fragment(anchored, curHeading))
		}
		cur = nil
		curHeading = ""
	}
	flush()

	return fragments
}

// fragment builds one Fragment from a word run.
func (c *Chunker) fragment(words []pageWord, heading string) Fragment {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	text := strings.Join(parts, " ")

	topicSource := heading
	if topicSource == "" {
		topicSource = text
	}
	return Fragment{
		Text:     text,
		Topic:    topicFrom(topicSource),
		Summary:  extractiveSummary(text, 3),
		PageSpan: [2]int{words[0].page, words[len(words)-1].page},
		Words:    len(words),
	}
}

// topicFrom takes the first sentence, strips markdown heading markers, and
// truncates to twelve words.
func topicFrom(s string) string {
	sentence := firstSentences(s, 1)
	sentence = strings.TrimLeft(sentence, "# ")
	sentence = strings.TrimSpace(strings.TrimRight(sentence, ".!?"))
	words := strings.Fields(sentence)
	if len(words) > 12 {
		words = words[:12]
	}
	return strings.Join(words, " ")
}

// extractiveSummary returns the first n sentences of the text.
func extractiveSummary(text string, n int) string {
	return strings.TrimSpace(firstSentences(text, n))
}

var sentenceEndRe = regexp.MustCompile(`([.!?])(\s+|$)`)

func firstSentences(text string, n int) string {
	ends := sentenceEndRe.FindAllStringIndex(text, n)
	if len(ends) == 0 {
		return text
	}
	if len(ends) < n {
		return text
	}
	return text[:ends[n-1][1]]
}
