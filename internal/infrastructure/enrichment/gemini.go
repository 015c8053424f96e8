// Package enrichment selects bundle candidates and writes their marketing
// copy with a generative model.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/infrastructure/config"
)

const systemInstruction = "You are an expert retail merchandiser and e-commerce copywriter. " +
	"You must respond ONLY with valid JSON as described."

// generator produces the raw text answer for a prompt.
type generator interface {
	generate(ctx context.Context, prompt string) (string, error)
}

// GeminiConfig holds Gemini enricher settings
type GeminiConfig struct {
	APIKey   string
	Model    string
	Timeout  time.Duration
	Language string
}

// GeminiEnricher implements bundling.Enricher on the Gemini API.
type GeminiEnricher struct {
	gen      generator
	client   *genai.Client
	timeout  time.Duration
	language string
	logger   *zap.Logger
}

// NewGeminiEnricher creates a Gemini client. Call Close when done.
func NewGeminiEnricher(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiEnricher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key missing", bundling.ErrEnrichmentUnavailable)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	model.SetTemperature(0.4)

	e := newGeminiEnricher(geminiModel{model: model}, cfg, logger)
	e.client = client
	return e, nil
}

func newGeminiEnricher(gen generator, cfg GeminiConfig, logger *zap.Logger) *GeminiEnricher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	return &GeminiEnricher{
		gen:      gen,
		timeout:  cfg.Timeout,
		language: cfg.Language,
		logger:   logger,
	}
}

// Close releases the underlying client
func (e *GeminiEnricher) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// Enrich asks the model to pick up to maxSelected of the requests and write
// copy for each. Every failure wraps bundling.ErrEnrichmentUnavailable so the
// caller falls back to the numeric ranking.
func (e *GeminiEnricher) Enrich(ctx context.Context, requests []bundling.EnrichmentRequest, maxSelected int) ([]bundling.EnrichmentResult, error) {
	if len(requests) == 0 || maxSelected <= 0 {
		return nil, nil
	}

	prompt, err := buildPrompt(requests, maxSelected, e.language)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bundling.ErrEnrichmentUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.gen.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bundling.ErrEnrichmentUnavailable, err)
	}

	results, err := parseSelection(raw)
	if err != nil {
		e.logger.Warn("enrichment answer not usable", zap.Error(err), zap.Int("bytes", len(raw)))
		return nil, fmt.Errorf("%w: %v", bundling.ErrEnrichmentUnavailable, err)
	}

	e.logger.Info("bundles enriched",
		zap.Int("sent", len(requests)),
		zap.Int("selected", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return results, nil
}

// ---------------------------------------------------------------------------
// Prompt
// ---------------------------------------------------------------------------

type promptItem struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	Quantity int    `json:"quantity"`
}

type promptCandidate struct {
	SKU         string       `json:"sku"`
	Brand       string       `json:"brand"`
	Category    string       `json:"category"`
	FinalPrice  string       `json:"final_price"`
	BasePrice   string       `json:"base_price"`
	MaxStock    int          `json:"max_stock"`
	DemandScore int          `json:"demand_score"`
	Items       []promptItem `json:"items"`
}

type promptBody struct {
	Goal         string            `json:"goal"`
	Instructions []string          `json:"instructions"`
	Candidates   []promptCandidate `json:"candidates"`
}

func buildPrompt(requests []bundling.EnrichmentRequest, maxSelected int, language string) (string, error) {
	candidates := make([]promptCandidate, len(requests))
	for i, r := range requests {
		items := make([]promptItem, len(r.Items))
		for j, item := range r.Items {
			items[j] = promptItem{Name: item.Name, Brand: item.Brand, Category: item.Category, Quantity: item.Quantity}
		}
		candidates[i] = promptCandidate{
			SKU:         r.SKU,
			Brand:       r.Brand,
			Category:    r.Category,
			FinalPrice:  r.FinalPrice.StringFixed(2),
			BasePrice:   r.BasePrice.StringFixed(2),
			MaxStock:    r.MaxStock,
			DemandScore: r.DemandScore,
			Items:       items,
		}
	}

	body := promptBody{
		Goal: "Select and enrich the best bundle offers for a small retailer.",
		Instructions: []string{
			fmt.Sprintf("You receive %d bundle candidates as JSON.", len(requests)),
			"Each bundle has a price, stock, a demand_score and items with brand and category.",
			fmt.Sprintf("Select up to %d bundles that are most promising to promote.", maxSelected),
			fmt.Sprintf("For each selected bundle write marketing copy in %s.", language),
			"Prefer bundles whose products make sense together, with a reasonable final_price, enough stock and decent demand_score.",
			"Only use sku values from the candidates.",
			`Return JSON shaped as {"selected":[{"sku":"...","score":0-100,"reason":"short explanation in English","title":"max 120 chars","description":"2-3 sentences","benefits":["..."]}]}`,
		},
		Candidates: candidates,
	}
	out, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ---------------------------------------------------------------------------
// Answer
// ---------------------------------------------------------------------------

type selectedEntry struct {
	SKU         string          `json:"sku"`
	Score       float64         `json:"score"`
	Reason      string          `json:"reason"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Benefits    json.RawMessage `json:"benefits"`
}

type selectionAnswer struct {
	Selected []selectedEntry `json:"selected"`
}

// parseSelection decodes the model answer. Code fences around the JSON are
// tolerated; entries without a SKU are dropped.
func parseSelection(raw string) ([]bundling.EnrichmentResult, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty answer")
	}

	var answer selectionAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}

	results := make([]bundling.EnrichmentResult, 0, len(answer.Selected))
	for _, entry := range answer.Selected {
		sku := strings.TrimSpace(entry.SKU)
		if sku == "" {
			continue
		}
		results = append(results, bundling.EnrichmentResult{
			SKU: sku,
			Enrichment: bundling.Enrichment{
				Title:       strings.TrimSpace(entry.Title),
				Description: strings.TrimSpace(entry.Description),
				Benefits:    parseBenefits(entry.Benefits),
				Score:       entry.Score,
				Reason:      entry.Reason,
			},
		})
	}
	return results, nil
}

// parseBenefits accepts a list of strings or one string of "- " lines.
func parseBenefits(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Gemini
// ---------------------------------------------------------------------------

type geminiModel struct {
	model *genai.GenerativeModel
}

func (m geminiModel) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := m.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String(), nil
}

// ---------------------------------------------------------------------------
// Factory
// ---------------------------------------------------------------------------

// FromConfig returns the configured enricher and a release function. With
// provider "none" the enricher is nil and bundles keep their numeric ranking.
func FromConfig(ctx context.Context, cfg config.EnrichmentConfig, logger *zap.Logger) (bundling.Enricher, func() error, error) {
	switch cfg.Provider {
	case "", "none":
		logger.Info("bundle enrichment disabled")
		return nil, func() error { return nil }, nil
	case "gemini":
		e, err := NewGeminiEnricher(ctx, GeminiConfig{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Timeout:  cfg.Timeout,
			Language: cfg.Language,
		}, logger.Named("gemini"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("bundle enrichment enabled", zap.String("provider", "gemini"), zap.String("model", cfg.Model))
		return e, e.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown enrichment provider %q", cfg.Provider)
	}
}

var _ bundling.Enricher = (*GeminiEnricher)(nil)
