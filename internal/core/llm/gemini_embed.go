package llm

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/fincontexta/internal/core"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	batchSize int
	timeout   time.Duration
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, batchSize int, timeout time.Duration) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "text-embedding-004"
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, batchSize: batchSize, timeout: timeout}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) ModelName() string { return g.modelName }

// EmbedTexts embeds texts in batches. When a later batch fails the vectors of
// the batches that succeeded are returned together with the error.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		resp, err := em.BatchEmbedContents(callCtx, batch)
		cancel()
		if err != nil {
			return out, wrapGeminiError(fmt.Sprintf("gemini batch embed [%d:%d]", start, end), err)
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = genai.TaskTypeRetrievalQuery

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := em.EmbedContent(callCtx, genai.Text(text))
	if err != nil {
		return nil, wrapGeminiError("gemini embed query", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, core.ErrEmptyResponse
	}
	return resp.Embedding.Values, nil
}
