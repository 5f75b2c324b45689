package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/infrastructure/resilience"
)

const defaultModel = "gemini-1.5-flash"

type Client struct {
	client      *genai.Client
	modelName   string
	temperature float32
	executor    *resilience.Executor

	// models caches one configured model per system instruction.
	models sync.Map
}

func New(ctx context.Context, apiKey, modelName string, temperature float32, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &Client{
		client:      cl,
		modelName:   modelName,
		temperature: temperature,
		executor:    executor,
	}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, prompt domain.Prompt) (string, error) {
	model := c.model(prompt.System)

	var text string
	call := func(callCtx context.Context) error {
		resp, err := model.GenerateContent(callCtx, genai.Text(prompt.User))
		if err != nil {
			return fmt.Errorf("gemini generate: %w", err)
		}
		text = collectText(resp)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "gemini.generate", call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) model(system string) *genai.GenerativeModel {
	if cached, ok := c.models.Load(system); ok {
		return cached.(*genai.GenerativeModel)
	}
	m := c.client.GenerativeModel(c.modelName)
	m.SetTemperature(c.temperature)
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}
	actual, _ := c.models.LoadOrStore(system, m)
	return actual.(*genai.GenerativeModel)
}

func collectText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
