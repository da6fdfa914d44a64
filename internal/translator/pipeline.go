package translator

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/mobhervr3-png/chinak2/internal/config"
	"github.com/mobhervr3-png/chinak2/internal/llmclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Translation contexts. Option labels get the extra residual-ideograph
// validation; the others accept any parseable output.
const (
	ContextName        = "name"
	ContextOption      = "option"
	ContextReview      = "review"
	ContextDescription = "description"
)

const (
	batchSystemPrompt = `You are a professional e-commerce translator. Translate every item of the
JSON array from Chinese to natural Korean suited to an online storefront.
Respond with a JSON array of the same length and order. Output only the
JSON array.`

	singleSystemPrompt = `You are a professional e-commerce translator. Translate the given Chinese
text to natural Korean suited to an online storefront. Output only the
translation.`

	keywordSystemPrompt = `Generate up to 10 Korean search keywords for the given product name.
Respond with a JSON array of strings. Output only the JSON array.`

	specsSystemPrompt = `Extract structured product fields (material, origin, care, season, fit)
from the given product description. Respond with a flat JSON object whose
keys and values are Korean strings. Omit unknown fields. Output only the
JSON object.`
)

// Pipeline turns raw Chinese extraction output into Korean storefront
// copy. Every method is best effort: on total model failure the original
// text is returned rather than an error, so translation never sinks a
// product.
type Pipeline struct {
	client llmclient.Client
	cfg    config.TranslatorConfig
	logger *zap.Logger
}

// New builds a pipeline over the tier-routing client.
func New(client llmclient.Client, cfg config.TranslatorConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client: client,
		cfg:    cfg,
		logger: logger.Named("translator"),
	}
}

// TranslateBatch translates texts as a single request. The result always
// has exactly len(texts) items in the original order; items that are empty
// or already Korean pass through untouched, and items that fail every
// fallback keep their original text.
func (p *Pipeline) TranslateBatch(ctx context.Context, texts []string, translationContext string) []string {
	out := make([]string, len(texts))
	copy(out, texts)

	var pendingIdx []int
	var pending []string
	for i, t := range texts {
		if t == "" || IsMostlyHangul(t) {
			continue
		}
		pendingIdx = append(pendingIdx, i)
		pending = append(pending, t)
	}
	if len(pending) == 0 {
		return out
	}

	payload, err := json.Marshal(pending)
	if err != nil {
		p.logger.Error("Failed to encode batch payload.", zap.Error(err))
		return out
	}

	req := llmclient.GenerationRequest{
		SystemPrompt:    batchSystemPrompt,
		UserPrompt:      string(payload),
		ForceJSONFormat: true,
	}

	var translated []string
	validate := func(raw string) error {
		var items []string
		if err := json.Unmarshal([]byte(stripCodeFence(raw)), &items); err != nil {
			return fmt.Errorf("batch response is not a JSON array: %w", err)
		}
		if len(items) != len(pending) {
			return fmt.Errorf("batch response has %d items, want %d", len(items), len(pending))
		}
		if translationContext == ContextOption {
			for _, it := range items {
				if ContainsHan(it) {
					return fmt.Errorf("residual source script in option label %q", it)
				}
			}
		}
		translated = items
		return nil
	}

	_, tierErr := p.generateTiered(ctx, req, validate)
	if tierErr == nil {
		for k, idx := range pendingIdx {
			out[idx] = translated[k]
		}
		return out
	}
	p.logger.Warn("Batch translation exhausted all tiers, falling back to per-item calls.",
		zap.String("context", translationContext), zap.Error(tierErr))

	// Last resort: one call per item. Items keep their original text when
	// even this fails.
	for k, idx := range pendingIdx {
		out[idx] = p.TranslateText(ctx, pending[k], translationContext)
	}
	return out
}

// TranslateText translates a single text with the same skip, retry, and
// fallback structure as the batch path. On total failure the original text
// is returned.
func (p *Pipeline) TranslateText(ctx context.Context, text, translationContext string) string {
	if text == "" || IsMostlyHangul(text) {
		return text
	}

	req := llmclient.GenerationRequest{
		SystemPrompt: singleSystemPrompt,
		UserPrompt:   text,
	}

	validate := func(raw string) error {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return fmt.Errorf("empty translation")
		}
		if translationContext == ContextOption && ContainsHan(trimmed) {
			return fmt.Errorf("residual source script in %q", trimmed)
		}
		return nil
	}

	raw, err := p.generateTiered(ctx, req, validate)
	if err != nil {
		p.logger.Warn("Single-text translation failed, keeping original.",
			zap.String("context", translationContext), zap.Error(err))
		return text
	}
	return strings.TrimSpace(raw)
}

// GenerateKeywords produces search keywords for a translated product name.
// Returns nil on total failure.
func (p *Pipeline) GenerateKeywords(ctx context.Context, name string) []string {
	req := llmclient.GenerationRequest{
		SystemPrompt:    keywordSystemPrompt,
		UserPrompt:      name,
		ForceJSONFormat: true,
	}

	var keywords []string
	validate := func(raw string) error {
		var items []string
		if err := json.Unmarshal([]byte(stripCodeFence(raw)), &items); err != nil {
			return fmt.Errorf("keyword response is not a JSON array: %w", err)
		}
		keywords = items
		return nil
	}

	if _, err := p.generateTiered(ctx, req, validate); err != nil {
		p.logger.Warn("Keyword generation failed.", zap.Error(err))
		return nil
	}
	return keywords
}

// FormatSpecs turns a free-form description into structured fields.
// Returns an empty map on total failure.
func (p *Pipeline) FormatSpecs(ctx context.Context, description string) map[string]string {
	if strings.TrimSpace(description) == "" {
		return map[string]string{}
	}

	req := llmclient.GenerationRequest{
		SystemPrompt:    specsSystemPrompt,
		UserPrompt:      description,
		ForceJSONFormat: true,
	}

	var specs map[string]string
	validate := func(raw string) error {
		var fields map[string]string
		if err := json.Unmarshal([]byte(stripCodeFence(raw)), &fields); err != nil {
			return fmt.Errorf("spec response is not a JSON object: %w", err)
		}
		specs = fields
		return nil
	}

	if _, err := p.generateTiered(ctx, req, validate); err != nil {
		p.logger.Warn("Spec formatting failed.", zap.Error(err))
		return map[string]string{}
	}
	return specs
}

// stripCodeFence removes a markdown code fence the model may wrap around
// JSON output despite instructions.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
