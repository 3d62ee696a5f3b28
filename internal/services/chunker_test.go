package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextCoversEveryCharacter(t *testing.T) {
	chunker := NewTextChunker()
	text := strings.Repeat("abcdefghij", 57)

	chunks, err := chunker.ChunkText(text, 100, 20)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// Chunks advance by size-overlap, so concatenating each chunk's
	// non-overlapping head reconstructs the input.
	var rebuilt strings.Builder
	step := 100 - 20
	for i, chunk := range chunks {
		runes := []rune(chunk)
		if i == len(chunks)-1 {
			rebuilt.WriteString(chunk)
			break
		}
		rebuilt.WriteString(string(runes[:step]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkTextNoEmptyChunks(t *testing.T) {
	chunker := NewTextChunker()

	chunks, err := chunker.ChunkText("short text", 1200, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])

	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
	}
}

func TestChunkTextOverlapSharing(t *testing.T) {
	chunker := NewTextChunker()
	text := "0123456789"

	chunks, err := chunker.ChunkText(text, 4, 2)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	// Each consecutive pair shares the overlap region.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-2:])
		assert.True(t, strings.HasPrefix(chunks[i], tail),
			"chunk %d should start with the previous chunk's tail", i)
	}
}

func TestChunkTextRejectsInvalidParameters(t *testing.T) {
	chunker := NewTextChunker()

	_, err := chunker.ChunkText("text", 0, 0)
	assert.Error(t, err)

	_, err = chunker.ChunkText("text", 100, -1)
	assert.Error(t, err)

	_, err = chunker.ChunkText("text", 100, 100)
	assert.Error(t, err)

	_, err = chunker.ChunkText("text", 100, 150)
	assert.Error(t, err)
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunker := NewTextChunker()

	chunks, err := chunker.ChunkText("", 100, 20)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkTextDeterministic(t *testing.T) {
	chunker := NewTextChunker()
	text := strings.Repeat("lorem ipsum dolor sit amet ", 100)

	first, err := chunker.ChunkText(text, 300, 50)
	require.NoError(t, err)
	second, err := chunker.ChunkText(text, 300, 50)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChunkTextHandlesMultibyteRunes(t *testing.T) {
	chunker := NewTextChunker()
	text := strings.Repeat("héllo wörld ", 50)

	chunks, err := chunker.ChunkText(text, 40, 10)
	require.NoError(t, err)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 40)
	}
}
