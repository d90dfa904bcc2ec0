// Package ingestion loads campus documents, splits them into passages and
// writes their embeddings to the vector index. It runs before serving, never
// during a query.
package ingestion

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Chunking methods
const (
	MethodFixed    = "fixed"
	MethodSentence = "sentence"
	// MethodSection groups sentences within markdown sections and records the heading
	MethodSection = "section"
)

// Chunk represents a piece of chunked content
type Chunk struct {
	Content  string
	Index    int
	Metadata map[string]string
}

// ChunkerConfig sizes chunks in words, which keeps them under the embedding
// model's token limit with a safe margin.
type ChunkerConfig struct {
	Method     string
	TargetSize int
	MaxSize    int
	Overlap    int
}

// Chunker handles text chunking with different strategies
type Chunker struct {
	config ChunkerConfig
}

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// NewChunker creates a new Chunker with the given configuration
func NewChunker(config ChunkerConfig) *Chunker {
	if config.TargetSize <= 0 {
		config.TargetSize = 180
	}
	if config.MaxSize < config.TargetSize {
		config.MaxSize = config.TargetSize
	}
	if config.Overlap < 0 || config.Overlap >= config.TargetSize {
		config.Overlap = config.TargetSize / 6
	}
	if config.Method == "" {
		config.Method = MethodSection
	}

	return &Chunker{config: config}
}

// Chunk splits content based on the configured method
func (c *Chunker) Chunk(content string) []Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []Chunk
	switch c.config.Method {
	case MethodFixed:
		chunks = c.chunkWords(strings.Fields(content), MethodFixed)
	case MethodSentence:
		chunks = c.chunkSentences(content, MethodSentence)
	default:
		chunks = c.chunkSections(content)
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// chunkWords emits windows of TargetSize words that overlap by Overlap words
func (c *Chunker) chunkWords(words []string, method string) []Chunk {
	var chunks []Chunk
	step := c.config.TargetSize - c.config.Overlap

	for start := 0; start < len(words); start += step {
		end := min(start+c.config.TargetSize, len(words))
		chunks = append(chunks, Chunk{
			Content: strings.Join(words[start:end], " "),
			Metadata: map[string]string{
				"method":     method,
				"word_count": strconv.Itoa(end - start),
			},
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}

// chunkSentences packs whole sentences up to TargetSize words. A chunk never
// exceeds MaxSize unless one sentence alone does, in which case that sentence
// is split into word windows.
func (c *Chunker) chunkSentences(content, method string) []Chunk {
	var (
		chunks  []Chunk
		current []string
		words   int
		// sentences added since the last flush; the rest is overlap
		added int
	)

	flush := func() {
		if added == 0 {
			return
		}
		text := strings.Join(current, " ")
		chunks = append(chunks, Chunk{
			Content: text,
			Metadata: map[string]string{
				"method":         method,
				"sentence_count": strconv.Itoa(len(current)),
				"word_count":     strconv.Itoa(len(strings.Fields(text))),
			},
		})
		current, words = c.overlapTail(current)
		added = 0
	}

	for _, sentence := range splitSentences(content) {
		n := len(strings.Fields(sentence))

		if n > c.config.MaxSize {
			flush()
			current, words = nil, 0
			for _, piece := range c.chunkWords(strings.Fields(sentence), method) {
				piece.Metadata["split"] = "true"
				chunks = append(chunks, piece)
			}
			continue
		}

		if words > 0 && words+n > c.config.MaxSize {
			flush()
			// a carried-over tail must not push the new sentence past MaxSize
			if words+n > c.config.MaxSize {
				current, words = nil, 0
			}
		}

		current = append(current, sentence)
		words += n
		added++

		if words >= c.config.TargetSize {
			flush()
		}
	}

	flush()
	return chunks
}

// overlapTail returns the trailing sentences that cover at least Overlap words
func (c *Chunker) overlapTail(sentences []string) ([]string, int) {
	if c.config.Overlap == 0 {
		return nil, 0
	}
	var words int
	i := len(sentences)
	for i > 0 && words < c.config.Overlap {
		i--
		words += len(strings.Fields(sentences[i]))
	}
	// keeping every sentence would repeat the whole chunk
	if i == 0 {
		return nil, 0
	}
	tail := append([]string(nil), sentences[i:]...)
	return tail, words
}

// chunkSections splits markdown by headings and chunks each section's body by
// sentences. Each chunk is prefixed with its heading so it retrieves well on its own.
func (c *Chunker) chunkSections(content string) []Chunk {
	var chunks []Chunk

	for _, sec := range splitSections(content) {
		for _, chunk := range c.chunkSentences(sec.body, MethodSection) {
			if sec.heading != "" {
				chunk.Content = "[Section: " + sec.heading + "] " + chunk.Content
				chunk.Metadata["section"] = sec.heading
			}
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

type section struct {
	heading string
	body    string
}

func splitSections(content string) []section {
	var (
		sections []section
		heading  string
		body     strings.Builder
	)

	emit := func() {
		if text := strings.TrimSpace(body.String()); text != "" {
			sections = append(sections, section{heading: heading, body: text})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headingPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			emit()
			heading = strings.TrimSpace(m[2])
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	emit()

	return sections
}

// splitSentences splits on . ! ? followed by whitespace, keeping common abbreviations intact
func splitSentences(text string) []string {
	var (
		sentences []string
		current   strings.Builder
	)

	runes := []rune(strings.TrimSpace(text))
	for i, r := range runes {
		current.WriteRune(r)

		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := strings.Join(strings.Fields(current.String()), " ")
		if sentence != "" && !endsWithAbbreviation(sentence) {
			sentences = append(sentences, sentence)
			current.Reset()
		}
	}

	if rest := strings.Join(strings.Fields(current.String()), " "); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

var sentenceAbbreviations = []string{
	"mr.", "mrs.", "ms.", "dr.", "prof.", "dept.", "univ.",
	"etc.", "e.g.", "i.e.", "vs.", "no.", "st.", "approx.",
}

func endsWithAbbreviation(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, abbr := range sentenceAbbreviations {
		if lower == abbr || strings.HasSuffix(lower, " "+abbr) {
			return true
		}
	}
	return false
}
