package ingestion

import (
	"strings"
	"testing"

	"github.com/campusconnect/campusqa/internal/embedder"
)

func TestNewChunker_Defaults(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})

	if chunker.config.TargetSize != 180 {
		t.Errorf("expected default TargetSize 180, got %d", chunker.config.TargetSize)
	}
	if chunker.config.MaxSize != 180 {
		t.Errorf("expected MaxSize raised to 180, got %d", chunker.config.MaxSize)
	}
	if chunker.config.Overlap != 0 {
		t.Errorf("expected Overlap 0, got %d", chunker.config.Overlap)
	}
	if chunker.config.Method != MethodSection {
		t.Errorf("expected default Method %q, got %s", MethodSection, chunker.config.Method)
	}
}

func TestNewChunker_OverlapReset(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{TargetSize: 60, MaxSize: 80, Overlap: 60})

	if chunker.config.Overlap != 10 {
		t.Errorf("expected overlap reset to 10, got %d", chunker.config.Overlap)
	}
}

func TestChunker_EmptyContent(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{Method: MethodFixed})

	if chunks := chunker.Chunk(""); chunks != nil {
		t.Errorf("expected nil for empty content, got %v", chunks)
	}
	if chunks := chunker.Chunk("  \n\t "); chunks != nil {
		t.Errorf("expected nil for whitespace content, got %v", chunks)
	}
}

func TestChunker_FixedMethod(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		Method:     MethodFixed,
		TargetSize: 10,
		MaxSize:    20,
		Overlap:    2,
	})

	chunks := chunker.Chunk(repeatWords("word", 25))

	// windows start at 0, 8 and 16
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}

	wantWords := []string{"10", "10", "9"}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has wrong index %d", i, chunk.Index)
		}
		if chunk.Metadata["method"] != MethodFixed {
			t.Errorf("chunk %d has wrong method %s", i, chunk.Metadata["method"])
		}
		if chunk.Metadata["word_count"] != wantWords[i] {
			t.Errorf("chunk %d: expected %s words, got %s", i, wantWords[i], chunk.Metadata["word_count"])
		}
	}
}

func TestChunker_SentenceOverlap(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		Method:     MethodSentence,
		TargetSize: 10,
		MaxSize:    15,
		Overlap:    5,
	})

	s1 := "The library opens at eight."
	s2 := "Study rooms need a booking."
	s3 := "The cafe closes at four."
	s4 := "Printing costs ten cents."
	chunks := chunker.Chunk(strings.Join([]string{s1, s2, s3, s4}, " "))

	want := []string{
		s1 + " " + s2,
		s2 + " " + s3,
		s3 + " " + s4,
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i, chunk := range chunks {
		if chunk.Content != want[i] {
			t.Errorf("chunk %d: expected %q, got %q", i, want[i], chunk.Content)
		}
		if chunk.Metadata["sentence_count"] != "2" {
			t.Errorf("chunk %d: expected 2 sentences, got %s", i, chunk.Metadata["sentence_count"])
		}
	}
}

func TestChunker_LongSentenceSplit(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{
		Method:     MethodSentence,
		TargetSize: 10,
		MaxSize:    15,
		Overlap:    5,
	})

	chunks := chunker.Chunk("Short intro here. " + repeatWords("policy", 40) + ".")

	if len(chunks) < 2 {
		t.Fatalf("expected the long sentence to be split, got %d chunks", len(chunks))
	}
	if chunks[0].Content != "Short intro here." {
		t.Errorf("expected intro chunk first, got %q", chunks[0].Content)
	}
	for _, chunk := range chunks[1:] {
		if chunk.Metadata["split"] != "true" {
			t.Errorf("expected split marker on %q", chunk.Content)
		}
		if n := len(strings.Fields(chunk.Content)); n > 15 {
			t.Errorf("split chunk has %d words, exceeds max", n)
		}
	}
}

func TestChunker_SectionMethod(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{Method: MethodSection})

	content := `# Library
The library opens at 8am. It closes at 9pm.

## Parking
Permits are sold online.`

	chunks := chunker.Chunk(content)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Content != "[Section: Library] The library opens at 8am. It closes at 9pm." {
		t.Errorf("unexpected first chunk %q", chunks[0].Content)
	}
	if chunks[0].Metadata["section"] != "Library" {
		t.Errorf("expected section Library, got %q", chunks[0].Metadata["section"])
	}
	if chunks[1].Metadata["section"] != "Parking" {
		t.Errorf("expected section Parking, got %q", chunks[1].Metadata["section"])
	}
	if chunks[1].Index != 1 {
		t.Errorf("expected index 1, got %d", chunks[1].Index)
	}
}

func TestChunker_SectionWithoutHeadings(t *testing.T) {
	chunker := NewChunker(ChunkerConfig{})

	chunks := chunker.Chunk("Registration opens in May.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "Registration opens in May." {
		t.Errorf("plain text should not get a section prefix, got %q", chunks[0].Content)
	}
	if _, ok := chunks[0].Metadata["section"]; ok {
		t.Error("expected no section metadata")
	}
}

func TestSplitSentences_Abbreviations(t *testing.T) {
	got := splitSentences("Contact Dr. Rao in the CS dept. office. Hours vary!")

	want := []string{"Contact Dr. Rao in the CS dept. office.", "Hours vary!"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitSentences_DecimalsStayIntact(t *testing.T) {
	got := splitSentences("Tuition rose 3.5 percent this year.")
	if len(got) != 1 {
		t.Errorf("expected 1 sentence, got %v", got)
	}
}

func TestValidateChunkerConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  ChunkerConfig
		wantErr bool
	}{
		{"zero value", ChunkerConfig{}, false},
		{"valid section", ChunkerConfig{Method: MethodSection, TargetSize: 180, MaxSize: 250, Overlap: 30}, false},
		{"unknown method", ChunkerConfig{Method: "semantic"}, true},
		{"negative size", ChunkerConfig{TargetSize: -1}, true},
		{"target above max", ChunkerConfig{TargetSize: 300, MaxSize: 200}, true},
		{"overlap too large", ChunkerConfig{TargetSize: 100, MaxSize: 200, Overlap: 100}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunkerConfig(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChunkerConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFitToModel(t *testing.T) {
	small := embedder.GetModelConfig("all-minilm")

	got := FitToModel(ChunkerConfig{TargetSize: 300, MaxSize: 600, Overlap: 30}, small)
	if got.MaxSize != 180 || got.TargetSize != 120 || got.Overlap != 30 {
		t.Errorf("unexpected fit for all-minilm: %+v", got)
	}

	large := embedder.GetModelConfig("nomic-embed-text")
	in := ChunkerConfig{TargetSize: 180, MaxSize: 250, Overlap: 30}
	if got := FitToModel(in, large); got != in {
		t.Errorf("expected config unchanged for nomic-embed-text, got %+v", got)
	}
}

func repeatWords(word string, n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = word
	}
	return strings.Join(words, " ")
}
