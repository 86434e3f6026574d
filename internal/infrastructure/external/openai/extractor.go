package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/reconcile"
	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ChatCompleter is the subset of the OpenAI client used by the extractor
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor implements port.InvoiceExtractor using the OpenAI vision API
type Extractor struct {
	client     ChatCompleter
	rasterizer PageRasterizer
	prompts    *PromptConfig
	model      string
	logger     *zap.Logger
}

var _ port.InvoiceExtractor = (*Extractor)(nil)

// NewExtractor creates an extractor backed by the OpenAI API
func NewExtractor(apiKey, baseURL, model string, prompts *PromptConfig, logger *zap.Logger) *Extractor {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewExtractorWithClient(openai.NewClientWithConfig(cfg), FitzRasterizer{}, model, prompts, logger)
}

// NewExtractorWithClient wires an extractor around an existing chat client
func NewExtractorWithClient(client ChatCompleter, rasterizer PageRasterizer, model string, prompts *PromptConfig, logger *zap.Logger) *Extractor {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &Extractor{
		client:     client,
		rasterizer: rasterizer,
		prompts:    prompts,
		model:      model,
		logger:     logger,
	}
}

// ExtractInvoice reads the grand total and weight lines from an invoice file.
// A nil Total in the result means no total could be read.
func (e *Extractor) ExtractInvoice(ctx context.Context, file []byte, mimeType string) (*reconcile.Extraction, error) {
	images, imageType, err := e.pageImages(file, mimeType)
	if err != nil {
		return nil, err
	}

	p := e.prompts.InvoiceExtraction
	prompt, err := renderTemplate(p.UserTemplate, map[string]interface{}{"Pages": len(images)})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: prompt,
	}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", imageType, base64.StdEncoding.EncodeToString(img)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	e.logger.Info("Extracting invoice with vision model",
		zap.String("model", e.model),
		zap.Int("image_count", len(images)))

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		e.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return parseExtraction(resp.Choices[0].Message.Content)
}

func (e *Extractor) pageImages(file []byte, mimeType string) ([][]byte, string, error) {
	switch mimeType {
	case "application/pdf":
		images, err := e.rasterizer.Rasterize(file, e.prompts.InvoiceExtraction.MaxPages)
		if err != nil {
			return nil, "", err
		}
		return images, "image/jpeg", nil
	case "image/jpeg", "image/png", "image/webp":
		return [][]byte{file}, mimeType, nil
	default:
		return nil, "", fmt.Errorf("%w: unsupported invoice type %q", entity.ErrInvalidInput, mimeType)
	}
}

type extractionPayload struct {
	Total *decimal.Decimal `json:"total"`
	Lines []struct {
		Bruto *decimal.Decimal `json:"bruto"`
		Ley   *decimal.Decimal `json:"ley"`
	} `json:"lines"`
	Notes string `json:"notes"`
}

// parseExtraction decodes the model answer. Numbers may arrive quoted.
func parseExtraction(content string) (*reconcile.Extraction, error) {
	var payload extractionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Fallback: the model wrapped the object in prose or a code fence
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			return nil, fmt.Errorf("failed to parse extraction response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
			return nil, fmt.Errorf("failed to parse extraction response: %w", err)
		}
	}

	ex := &reconcile.Extraction{
		Total: payload.Total,
		Notes: strings.TrimSpace(payload.Notes),
	}
	for _, l := range payload.Lines {
		if l.Bruto == nil {
			continue
		}
		ex.Lines = append(ex.Lines, entity.ExtractedLine{Bruto: *l.Bruto, Ley: l.Ley})
	}
	return ex, nil
}

// extractJSON returns the outermost {...} block of content
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
