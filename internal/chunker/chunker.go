// Package chunker splits preprocessed text into overlapping windows.
package chunker

import (
	"github.com/dgallion1/docjudge/internal/model"
	"github.com/rotisserie/eris"
)

// ErrInvalidConfig is returned when overlap is negative or not smaller than
// the chunk size.
var ErrInvalidConfig = eris.New("invalid chunk configuration")

// Config controls chunking behavior. Sizes count characters (runes).
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// DefaultConfig matches the CLI and service defaults.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate checks 0 <= overlap < size.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return eris.Wrapf(ErrInvalidConfig, "chunk size %d must be positive", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return eris.Wrapf(ErrInvalidConfig, "overlap %d must be in [0, %d)", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Split slides a window of cfg.ChunkSize runes over text, stepping by
// ChunkSize-ChunkOverlap, and stops once a window reaches the end. Chunk IDs
// start at 0. Empty text yields no chunks.
func Split(text string, cfg Config) ([]model.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	var chunks []model.Chunk
	for start := 0; start < n; {
		end := min(start+cfg.ChunkSize, n)
		chunks = append(chunks, model.Chunk{
			ID:   len(chunks),
			Text: string(runes[start:end]),
		})
		if end == n {
			break
		}
		start = end - cfg.ChunkOverlap
	}
	return chunks, nil
}
