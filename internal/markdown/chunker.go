package markdown

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a span of cleaned document text. Start and End are rune
// offsets into the cleaned content, so CJK text counts characters,
// not bytes.
type Chunk struct {
	Text  string
	Start int
	End   int
}

// Chunker splits cleaned note text into overlapping chunks.
//
// Strategy: documents shorter than ChunkSize become a single chunk.
// Otherwise paragraphs (double newline) are accumulated greedily up to
// ChunkSize; an oversized accumulation is subdivided at sentence
// boundaries with Overlap runes carried between neighbours. Chunks
// shorter than MinChunkSize are dropped.
type Chunker struct {
	ChunkSize    int
	Overlap      int
	MinChunkSize int
}

// sentence delimiters in priority order, CJK first
var sentenceDelimiters = []string{"。", "！", "？", "\n\n", ".", "!", "?"}

// NewChunker creates a Chunker with the given sizes.
func NewChunker(chunkSize, overlap, minChunkSize int) *Chunker {
	return &Chunker{
		ChunkSize:    chunkSize,
		Overlap:      overlap,
		MinChunkSize: minChunkSize,
	}
}

// Chunk splits content into chunks. Blank content yields no chunks.
func (c *Chunker) Chunk(content string) []Chunk {
	// Small documents are kept whole so short notes stay searchable.
	if utf8.RuneCountInString(content) < c.ChunkSize {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return []Chunk{{Text: content, Start: 0, End: utf8.RuneCountInString(content)}}
	}

	var chunks []Chunk

	currentPos := 0
	accumulated := ""
	accumulatedStart := 0

	for _, paragraph := range strings.Split(content, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			currentPos += 2
			continue
		}

		if accumulated == "" {
			accumulated = paragraph
			accumulatedStart = currentPos
		} else {
			test := accumulated + "\n\n" + paragraph
			if utf8.RuneCountInString(test) > c.ChunkSize {
				chunks = append(chunks, c.flush(accumulated, accumulatedStart)...)
				accumulated = paragraph
				accumulatedStart = currentPos
			} else {
				accumulated = test
			}
		}

		currentPos += utf8.RuneCountInString(paragraph) + 2
	}

	chunks = append(chunks, c.flush(accumulated, accumulatedStart)...)

	return chunks
}

// flush emits an accumulated paragraph run, subdividing it when it has
// grown well past the target size.
func (c *Chunker) flush(accumulated string, start int) []Chunk {
	length := utf8.RuneCountInString(accumulated)
	if accumulated == "" || length < c.MinChunkSize {
		return nil
	}
	if float64(length) > float64(c.ChunkSize)*1.5 {
		return c.splitLargeText(accumulated, start)
	}
	return []Chunk{{Text: accumulated, Start: start, End: start + length}}
}

// splitLargeText subdivides text at sentence boundaries. startOffset is
// the position of text within the whole document.
func (c *Chunker) splitLargeText(text string, startOffset int) []Chunk {
	var chunks []Chunk

	runes := []rune(text)
	textLen := len(runes)
	start := 0

	for start < textLen {
		idealEnd := start + c.ChunkSize
		if idealEnd > textLen {
			idealEnd = textLen
		}

		var end int
		if idealEnd >= textLen {
			end = textLen
		} else {
			searchStart := start + c.MinChunkSize
			if windowLow := idealEnd - 200; windowLow > searchStart {
				searchStart = windowLow
			}

			bestPos := -1
			for _, delimiter := range sentenceDelimiters {
				if pos := runeRFind(runes, []rune(delimiter), searchStart, idealEnd); pos > bestPos {
					bestPos = pos
				}
			}

			if bestPos != -1 {
				end = bestPos + 1
			} else if spacePos := runeRFind(runes, []rune{' '}, searchStart, idealEnd); spacePos != -1 {
				end = spacePos + 1
			} else {
				end = idealEnd
			}
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if utf8.RuneCountInString(chunkText) >= c.MinChunkSize {
			chunks = append(chunks, Chunk{
				Text:  chunkText,
				Start: startOffset + start,
				End:   startOffset + end,
			})
		}

		// Step back by the overlap, but never behind the start of the
		// last emitted chunk or the loop would not terminate.
		lastStart := -1
		if len(chunks) > 0 {
			lastStart = chunks[len(chunks)-1].Start - startOffset
		}
		start = end - c.Overlap
		if start <= lastStart {
			start = end
		}

		if textLen-start < c.MinChunkSize {
			break
		}
	}

	return chunks
}

// runeRFind returns the highest index i in [start, end-len(sub)] where
// sub occurs in runes, or -1.
func runeRFind(runes, sub []rune, start, end int) int {
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	for i := end - len(sub); i >= start; i-- {
		match := true
		for j := range sub {
			if runes[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
