package gateway

import (
	"strings"
	"testing"
)

func TestChunkShortTextUnsplit(t *testing.T) {
	t.Parallel()

	got := Chunk("hello", 3800)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected chunks: %v", got)
	}
	if Chunk("   ", 3800) != nil {
		t.Fatal("whitespace-only text should yield no chunks")
	}
}

func TestChunkLongTextShape(t *testing.T) {
	t.Parallel()

	// 9000 chars of paragraphs against a 3800 limit splits into 3 chunks.
	paragraph := strings.Repeat("x", 440)
	var b strings.Builder
	for b.Len() < 9000 {
		b.WriteString(paragraph)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())[:9000]

	chunks := Chunk(text, 3800)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 3800 {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(chunk))
		}
		if strings.TrimSpace(chunk) == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
}

func TestChunkPrefersParagraphBoundary(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("a", 100) + "\n\n" + strings.Repeat("b", 100)
	chunks := Chunk(text, 150)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "a") || strings.Contains(chunks[0], "b") {
		t.Fatalf("split not on the paragraph boundary: %q", chunks[0])
	}
}

func TestChunkHardSplitWithoutBoundaries(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("z", 500)
	chunks := Chunk(text, 200)
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	rejoined := strings.Join(chunks, "")
	if rejoined != text {
		t.Fatal("hard split lost content")
	}
}

func TestChunkDoesNotSplitRunes(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("界", 100)
	for _, chunk := range Chunk(text, 50) {
		if !strings.HasPrefix(chunk, "界") || !strings.HasSuffix(chunk, "界") {
			t.Fatalf("chunk broke a UTF-8 sequence: %q", chunk)
		}
	}
}
