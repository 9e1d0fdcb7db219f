// Package model holds the records passed between pipeline stages.
package model

// Chunk is a contiguous window of preprocessed document text.
type Chunk struct {
	ID   int    `json:"chunk_id"` // Sequence number, 0-based, strictly increasing
	Text string `json:"text"`
}

// ChunkResult is the analysis of a single chunk. It is not mutated after
// the analyzer returns it.
type ChunkResult struct {
	ChunkID  int            `json:"chunk_id"`
	Text     string         `json:"text"`
	Summary  string         `json:"summary"`
	KeyInfo  map[string]any `json:"key_info"`
	Topics   []string       `json:"topics"`
	Degraded bool           `json:"degraded,omitempty"` // A backend call failed after retries
}

// DocumentMetadata describes the extracted document and how it was chunked.
type DocumentMetadata struct {
	Filename        string `json:"filename"`
	Extension       string `json:"extension"`
	SizeBytes       int64  `json:"size_bytes"`
	ContentHash     string `json:"content_hash"`
	Pages           int    `json:"pages"`
	OCRUsed         bool   `json:"ocr_used"`
	CharCount       int    `json:"char_count"`
	ChunkCount      int    `json:"chunk_count"`
	ChunkSize       int    `json:"chunk_size"`
	ChunkOverlap    int    `json:"chunk_overlap"`
	EstimatedTokens int    `json:"estimated_tokens"`
	Backend         string `json:"backend,omitempty"`
}

// Extraction is the raw text pulled out of a source document.
type Extraction struct {
	Text    string // Pages joined by newline
	Pages   int    // 1 for formats without pagination
	OCRUsed bool   // At least one page was recovered through OCR
}
