package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
)

const (
	DefaultChunkSize = 4000
	DefaultOverlap   = 500
)

// DefaultSeparators are tried coarsest first; "" means a hard cut between runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter is a recursive character splitter. Sizes are measured in runes.
// Separators stay attached to the start of the piece that follows them, so
// every chunk is an exact slice of the input.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize:  chunkSize,
		Overlap:    overlap,
		Separators: DefaultSeparators,
	}
}

type span struct {
	start int
	end   int
	size  int
}

func (s *Splitter) Split(text string) []domain.Chunk {
	if text == "" {
		return nil
	}
	separators := s.Separators
	if len(separators) == 0 {
		separators = DefaultSeparators
	}

	spans := s.splitSpan(text, span{start: 0, end: len(text), size: utf8.RuneCountInString(text)}, separators)
	out := make([]domain.Chunk, 0, len(spans))
	for idx, sp := range spans {
		out = append(out, domain.Chunk{
			Index: idx,
			Start: sp.start,
			End:   sp.end,
			Text:  text[sp.start:sp.end],
		})
	}
	return out
}

func (s *Splitter) splitSpan(text string, whole span, separators []string) []span {
	segment := text[whole.start:whole.end]

	separator := separators[len(separators)-1]
	var finer []string
	for idx, candidate := range separators {
		if candidate == "" {
			separator = ""
			break
		}
		if strings.Contains(segment, candidate) {
			separator = candidate
			finer = separators[idx+1:]
			break
		}
	}

	var out []span
	var pending []span
	for _, piece := range splitKeepingSeparator(segment, whole.start, separator) {
		if piece.size < s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			out = append(out, s.merge(pending)...)
			pending = nil
		}
		if len(finer) == 0 {
			out = append(out, piece)
			continue
		}
		out = append(out, s.splitSpan(text, piece, finer)...)
	}
	if len(pending) > 0 {
		out = append(out, s.merge(pending)...)
	}
	return out
}

// merge packs consecutive pieces into chunks of at most ChunkSize runes and
// carries up to Overlap runes of trailing pieces into the next chunk.
func (s *Splitter) merge(pieces []span) []span {
	var out []span
	var window []span
	total := 0

	for _, piece := range pieces {
		if total+piece.size > s.ChunkSize && len(window) > 0 {
			out = append(out, joinSpans(window))
			for total > s.Overlap || (total+piece.size > s.ChunkSize && total > 0) {
				total -= window[0].size
				window = window[1:]
			}
		}
		window = append(window, piece)
		total += piece.size
	}
	if len(window) > 0 {
		out = append(out, joinSpans(window))
	}
	return out
}

func joinSpans(window []span) span {
	size := 0
	for _, sp := range window {
		size += sp.size
	}
	return span{start: window[0].start, end: window[len(window)-1].end, size: size}
}

func splitKeepingSeparator(segment string, offset int, separator string) []span {
	if separator == "" {
		out := make([]span, 0, utf8.RuneCountInString(segment))
		for idx := 0; idx < len(segment); {
			_, width := utf8.DecodeRuneInString(segment[idx:])
			out = append(out, span{start: offset + idx, end: offset + idx + width, size: 1})
			idx += width
		}
		return out
	}

	bounds := []int{0}
	for from := 0; from < len(segment); {
		idx := strings.Index(segment[from:], separator)
		if idx < 0 {
			break
		}
		at := from + idx
		if at > 0 {
			bounds = append(bounds, at)
		}
		from = at + len(separator)
	}
	bounds = append(bounds, len(segment))

	out := make([]span, 0, len(bounds)-1)
	for idx := 0; idx+1 < len(bounds); idx++ {
		lo, hi := bounds[idx], bounds[idx+1]
		if lo >= hi {
			continue
		}
		piece := segment[lo:hi]
		out = append(out, span{start: offset + lo, end: offset + hi, size: utf8.RuneCountInString(piece)})
	}
	return out
}
