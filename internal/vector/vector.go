// Package vector stores embeddable documents and computes their embeddings.
package vector

import (
	"context"
)

// Document is one embeddable unit of text.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any

	// Embedding is filled by an Embedder before the document is stored.
	Embedding []float32
}

// Store is the embedding document store.
type Store interface {
	// AddDocuments writes documents and returns their ids. A document whose
	// id already exists is replaced.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// DeleteDocuments removes documents by id. Unknown ids are ignored.
	DeleteDocuments(ctx context.Context, ids []string) error
}

// Embedder turns texts into vectors of a fixed dimension.
type Embedder interface {
	Model() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
