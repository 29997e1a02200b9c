package chunking

import (
	"fmt"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// Chunk slides a window of chunkSize runes over text, advancing by chunkSize-overlap.
// The last window is truncated at the end of the text. Empty text yields no chunks.
func Chunk(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, domain.WrapError(
			domain.ErrInvalidChunkConfig,
			"chunk text",
			fmt.Errorf("chunk size %d, overlap %d: overlap must be in [0, size)", chunkSize, overlap),
		)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := chunkSize - overlap
	out := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+chunkSize, len(runes))
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out, nil
}

type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) ([]string, error) {
	return Chunk(text, s.ChunkSize, s.Overlap)
}
