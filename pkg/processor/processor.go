package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/ragbot/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap < 0 {
		config.ChunkOverlap = 0
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) Process(docs []models.SourceDocument) ([]models.ProcessedDocument, error) {
	processed := make([]models.ProcessedDocument, 0, len(docs))

	for _, doc := range docs {
		processed = append(processed, models.ProcessedDocument{
			SourceDocument: doc,
			Chunks:         Chunk(doc.Content, p.config.ChunkSize, p.config.ChunkOverlap),
		})
	}

	return processed, nil
}

// Chunk splits text into sentence-bounded chunks of at most targetSize runes.
// Consecutive chunks share trailing sentences of the previous chunk totalling at
// most overlap runes. A sentence longer than targetSize is returned whole.
func Chunk(text string, targetSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= targetSize {
		return []string{text}
	}

	var chunks []string
	var current []string
	currentLen := 0

	for _, sentence := range SplitSentences(text) {
		sentenceLen := utf8.RuneCountInString(sentence)

		if len(current) > 0 && currentLen+1+sentenceLen > targetSize {
			chunks = append(chunks, strings.Join(current, " "))

			current = overlapTail(current, overlap)
			currentLen = joinedLen(current)

			// the seed must leave room for the incoming sentence
			for len(current) > 0 && currentLen+1+sentenceLen > targetSize {
				current = current[1:]
				currentLen = joinedLen(current)
			}
		}

		if len(current) > 0 {
			currentLen++
		}
		current = append(current, sentence)
		currentLen += sentenceLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}

// SplitSentences splits text after '.', '!' or '?' when followed by whitespace.
// The separating whitespace is dropped.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isSentenceEnd(runes[i]) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentences = appendSentence(sentences, string(runes[start:i+1]))

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		start = j
		i = j - 1
	}

	if start < len(runes) {
		sentences = appendSentence(sentences, string(runes[start:]))
	}

	return sentences
}

func appendSentence(sentences []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return sentences
	}
	return append(sentences, s)
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// overlapTail returns the trailing sentences whose lengths, each counted with one
// separating space, fit within overlap.
func overlapTail(sentences []string, overlap int) []string {
	if overlap <= 0 {
		return nil
	}

	used := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(sentences[i]) + 1
		if used+n > overlap {
			break
		}
		used += n
		start = i
	}

	tail := make([]string, len(sentences)-start)
	copy(tail, sentences[start:])
	return tail
}

func joinedLen(sentences []string) int {
	if len(sentences) == 0 {
		return 0
	}
	n := len(sentences) - 1
	for _, s := range sentences {
		n += utf8.RuneCountInString(s)
	}
	return n
}
