package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/grounding-corpus/internal/core/domain"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/extractor/native"
	"github.com/kirillkom/grounding-corpus/internal/infrastructure/resilience"
)

type Options struct {
	GenerateTimeout time.Duration
	EmbedTimeout    time.Duration
	Executor        *resilience.Executor
}

type Client struct {
	baseURL      string
	extractModel string
	embedModel   string
	httpClient   *http.Client
	executor     *resilience.Executor

	generateTimeout time.Duration
	embedTimeout    time.Duration
}

func New(baseURL, extractModel, embedModel string) *Client {
	return NewWithOptions(baseURL, extractModel, embedModel, Options{})
}

func NewWithOptions(baseURL, extractModel, embedModel string, options Options) *Client {
	generateTimeout := options.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = 5 * time.Minute
	}
	embedTimeout := options.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = 60 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		extractModel:    extractModel,
		embedModel:      embedModel,
		httpClient:      &http.Client{},
		executor:        options.Executor,
		generateTimeout: generateTimeout,
		embedTimeout:    embedTimeout,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := embedRequest{Model: e.client.embedModel, Input: texts}

	vectors, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		callCtx, cancel := context.WithTimeout(callCtx, e.client.embedTimeout)
		defer cancel()

		response, err := postJSON[embedResponse](callCtx, e.client, "/api/embed", request, "embed")
		if err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, resilience.ClassifyHTTP)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d inputs", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}
	return vectors[0], nil
}

// DocumentGenerator sends documents to a generate model: images as attachments,
// other formats as rendered text appended to the instruction.
type DocumentGenerator struct {
	client *Client
}

func NewDocumentGenerator(client *Client) *DocumentGenerator {
	return &DocumentGenerator{client: client}
}

func (g *DocumentGenerator) Generate(ctx context.Context, prompt string, file domain.FileRef) (string, error) {
	attachment, err := native.Render(file)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "prepare attachment", err)
	}

	reqBody := generateRequest{
		Model:  g.client.extractModel,
		Prompt: buildExtractionPrompt(prompt, file.Name, attachment.Text),
		Images: attachment.Images,
	}

	text, err := resilience.Call(ctx, g.client.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(callCtx, g.client.generateTimeout)
		defer cancel()
		return g.client.generate(callCtx, reqBody)
	}, resilience.ClassifyHTTP)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama generate", err)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, reqBody generateRequest) (string, error) {
	response, err := postJSON[generateResponse](ctx, c, "/api/generate", reqBody, "generate")
	if err != nil {
		return "", err
	}
	if response.Response == nil {
		return "", domain.WrapError(domain.ErrExtractionUnavailable, "ollama generate", errors.New("response field missing"))
	}
	return strings.TrimSpace(*response.Response), nil
}

func buildExtractionPrompt(instruction, filename, renderedText string) string {
	if renderedText == "" {
		return instruction
	}
	return fmt.Sprintf("%s\n\nDocument %q:\n%s\n", instruction, filename, renderedText)
}
