package core

import "context"

// EmbeddingProvider turns texts into vectors. Implementations may return
// fewer vectors than inputs together with an error when a later batch fails.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Transcriber converts a rendered page image to markdown.
// Blocked content is reported with ErrContentBlocked.
type Transcriber interface {
	Transcribe(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// StructuredGenerator runs a prompt constrained to a JSON schema and decodes
// the answer into out. An empty answer is reported with ErrEmptyResponse.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, schema *Schema, out any) error
}
