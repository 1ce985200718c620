package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/quarrylabs/quarry/internal/domain"
)

// Config controls language-aware chunking.
type Config struct {
	// TargetSizes maps a language code to its target chunk size in runes.
	TargetSizes map[string]int
	// DefaultSize is used when the language has no entry.
	DefaultSize int
	// Overlap is the number of runes carried over between adjacent chunks.
	Overlap int
}

// DefaultConfig provides the standard per-language targets.
func DefaultConfig() Config {
	return Config{
		TargetSizes: map[string]int{
			"en": 400,
			"fr": 200,
			"es": 300,
		},
		DefaultSize: 400,
		Overlap:     50,
	}
}

// separators in preference order: paragraph, line, sentence, word. A unit
// is only broken by the next separator down when it exceeds the target.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter splits document text into language-sized chunks.
type Splitter struct {
	cfg Config
}

// NewSplitter creates a Splitter with the given configuration.
func NewSplitter(cfg Config) *Splitter {
	if cfg.DefaultSize <= 0 {
		cfg = DefaultConfig()
	}
	return &Splitter{cfg: cfg}
}

// TargetSize returns the chunk target size for a language code.
func (s *Splitter) TargetSize(language string) int {
	if size, ok := s.cfg.TargetSizes[language]; ok && size > 0 {
		return size
	}
	return s.cfg.DefaultSize
}

// Split produces the ordered chunk texts for a document. The same text and
// language always yield the same sequence.
func (s *Splitter) Split(text, language string) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}

	target := s.TargetSize(language)
	units := splitUnits(clean, separators, target)
	merged := s.merge(units, target)

	chunks := make([]string, 0, len(merged))
	for _, c := range merged {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}

// ChunkDocument splits text and stamps stable identifiers. Indices are
// assigned in a second pass so TotalChunks reflects the final count.
func (s *Splitter) ChunkDocument(docID, sourceURI, text, language string) []domain.Chunk {
	pieces := s.Split(text, language)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = domain.Chunk{
			DocID:       docID,
			ChunkID:     domain.NewChunkID(docID, i),
			SourceURI:   sourceURI,
			Text:        piece,
			Language:    language,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
		}
	}
	return chunks
}

// splitUnits recursively breaks text into units no larger than target,
// except an indivisible run (a single oversized token), which is kept
// whole rather than dropped or cut mid-rune.
func splitUnits(text string, seps []string, target int) []string {
	if utf8.RuneCountInString(text) <= target {
		return []string{text}
	}
	if len(seps) == 0 {
		return []string{text}
	}

	sep, rest := seps[0], seps[1:]
	if !strings.Contains(text, sep) {
		return splitUnits(text, rest, target)
	}

	// SplitAfter keeps the separator attached so concatenation is lossless.
	parts := strings.SplitAfter(text, sep)
	units := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) > target {
			units = append(units, splitUnits(p, rest, target)...)
		} else {
			units = append(units, p)
		}
	}
	return units
}

// merge greedily packs adjacent units into chunks of at most target runes,
// seeding each new chunk with the overlap tail of the previous one.
func (s *Splitter) merge(units []string, target int) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, u := range units {
		ul := utf8.RuneCountInString(u)
		if curLen > 0 && curLen+ul > target {
			prev := cur.String()
			chunks = append(chunks, prev)
			cur.Reset()
			tail := overlapTail(prev, s.cfg.Overlap)
			cur.WriteString(tail)
			curLen = utf8.RuneCountInString(tail)
		}
		cur.WriteString(u)
		curLen += ul
	}

	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapTail returns the last n runes of text, trimmed of leading space.
func overlapTail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimLeft(string(runes[len(runes)-n:]), " \n")
}
