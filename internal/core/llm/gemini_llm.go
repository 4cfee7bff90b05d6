package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/fincontexta/internal/core"
)

// GeminiLLM serves both page transcription and schema-constrained generation.
type GeminiLLM struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

var (
	_ core.Transcriber         = (*GeminiLLM)(nil)
	_ core.StructuredGenerator = (*GeminiLLM)(nil)
)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string, timeout time.Duration) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-2.0-flash-lite"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &GeminiLLM{client: cl, modelName: modelName, timeout: timeout}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Transcribe sends one page image with the instruction prompt and returns the model's text.
func (g *GeminiLLM) Transcribe(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.modelName)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := m.GenerateContent(callCtx, genai.Blob{MIMEType: mimeType, Data: image}, genai.Text(prompt))
	if err != nil {
		return "", wrapGeminiError("gemini transcribe", err)
	}
	return responseText(resp), nil
}

// GenerateStructured asks for JSON matching schema and decodes it into out.
func (g *GeminiLLM) GenerateStructured(ctx context.Context, prompt string, schema *core.Schema, out any) error {
	m := g.client.GenerativeModel(g.modelName)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = toGenaiSchema(schema)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := m.GenerateContent(callCtx, genai.Text(prompt))
	if err != nil {
		return wrapGeminiError("gemini generate", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" || text == "null" {
		return core.ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode structured response: %w", err)
	}
	return nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
