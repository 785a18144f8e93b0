package models

// Record is a vector plus metadata as written to the index.
type Record struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexStats summarizes the vector index.
type IndexStats struct {
	TotalVectors int  `json:"totalVectors"`
	Dimension    int  `json:"dimension,omitempty"`
	Mock         bool `json:"mock,omitempty"`
}

// Document is a unit of knowledge before chunking. Metadata carries custom
// fields (fileType, uploadDate, ...) that are copied onto every chunk.
type Document struct {
	// ID prefixes chunk ids; empty means Filename.
	ID       string         `json:"id,omitempty"`
	Filename string         `json:"filename"`
	Source   string         `json:"source"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// DocumentRecord tracks an ingested document in the SQLite registry.
type DocumentRecord struct {
	ID         string   `json:"id"`
	Filename   string   `json:"filename"`
	Source     string   `json:"source"`
	ChunkCount int      `json:"chunks"`
	ChunkIDs   []string `json:"chunkIds"`
	CreatedAt  int64    `json:"createdAt"`
}

// IngestResponse is returned from POST /api/knowledge.
type IngestResponse struct {
	Success    bool     `json:"success"`
	DocumentID string   `json:"documentId"`
	IDs        []string `json:"ids"`
	Chunks     int      `json:"chunks"`
	Mock       bool     `json:"mock,omitempty"`
}

// EmbeddingCacheEntry stores a cached embedding keyed by content hash.
type EmbeddingCacheEntry struct {
	ContentHash string `json:"contentHash"`
	Embedding   []byte `json:"embedding"`
	Dimension   int    `json:"dimension"`
	Model       string `json:"model"`
	UpdatedAt   int64  `json:"updatedAt"`
}
