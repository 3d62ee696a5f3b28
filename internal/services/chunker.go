package services

import "fmt"

type TextChunker interface {
	ChunkText(text string, size int, overlap int) ([]string, error)
}

type textChunker struct{}

func NewTextChunker() TextChunker {
	return &textChunker{}
}

// ChunkText splits text into fixed-size windows that advance by size-overlap
// runes, so consecutive chunks share `overlap` runes of context. It is a pure
// function of its inputs. overlap >= size would never advance and is rejected
// outright.
func (tc *textChunker) ChunkText(text string, size int, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than size %d", overlap, size)
	}

	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}

		chunk := string(runes[i:end])
		if chunk == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}

	return chunks, nil
}
