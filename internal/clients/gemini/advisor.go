// Package gemini implements the advisor on Google's Gemini models.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Gemini content roles
const (
	roleUser  = "user"
	roleModel = "model"
)

// generator is the part of genai.Models the advisor uses
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Advisor implements domain.AdvisorService
type Advisor struct {
	models generator
	model  string
	log    zerolog.Logger
}

// NewAdvisor creates a Gemini client for the Gemini API backend
func NewAdvisor(ctx context.Context, apiKey, model string, log zerolog.Logger) (*Advisor, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newAdvisor(client.Models, model, log), nil
}

func newAdvisor(models generator, model string, log zerolog.Logger) *Advisor {
	return &Advisor{
		models: models,
		model:  model,
		log:    log.With().Str("client", "gemini").Str("model", model).Logger(),
	}
}

// Ask answers a single prompt with Google Search grounding
func (a *Advisor) Ask(ctx context.Context, prompt string) (string, error) {
	resp, err := a.models.GenerateContent(ctx, a.model, []*genai.Content{textContent(roleUser, prompt)}, &genai.GenerateContentConfig{
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	})
	if err != nil {
		return "", wrapErr(ctx, "ask", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", domain.Wrap("ask", domain.KindExternalService, err)
	}
	return text, nil
}

// ProposePositions asks for a JSON buy list and decodes it
func (a *Advisor) ProposePositions(ctx context.Context, messages []domain.Message, systemPrompt string) ([]domain.BuyOrder, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := roleUser
		if m.Role == domain.RoleAssistant {
			role = roleModel
		}
		contents = append(contents, textContent(role, m.Content))
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   buyOrderSchema,
	}
	if systemPrompt != "" {
		config.SystemInstruction = textContent(roleUser, systemPrompt)
	}

	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, wrapErr(ctx, "propose positions", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, domain.Wrap("propose positions", domain.KindExternalService, err)
	}
	a.log.Debug().Str("response", text).Msg("Advisor response")

	orders, err := decodeBuyOrders(text)
	if err != nil {
		return nil, domain.Wrap("propose positions", domain.KindMalformedRecord, err)
	}
	return orders, nil
}

var buyOrderSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"symbol": {
				Type:        genai.TypeString,
				Description: "Ticker symbol from the provided stock list",
			},
			"name": {
				Type:        genai.TypeString,
				Description: "Company name",
			},
			"number_of_shares_to_buy": {
				Type:        genai.TypeNumber,
				Description: "Number of shares to buy, greater than zero",
			},
		},
		Required: []string{"symbol", "name", "number_of_shares_to_buy"},
	},
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

// responseText concatenates the text parts of the first candidate, skipping thoughts
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates in response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("empty response")
	}
	return sb.String(), nil
}

// decodeBuyOrders accepts a bare JSON array, optionally wrapped in a markdown code fence
func decodeBuyOrders(text string) ([]domain.BuyOrder, error) {
	text = strings.TrimSpace(text)
	if start := strings.Index(text, "["); start >= 0 {
		if end := strings.LastIndex(text, "]"); end > start {
			text = text[start : end+1]
		}
	}

	var orders []domain.BuyOrder
	if err := json.Unmarshal([]byte(text), &orders); err != nil {
		return nil, fmt.Errorf("failed to decode buy orders: %w", err)
	}
	return orders, nil
}

func wrapErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return domain.Wrap(op, domain.KindTimeout, ctx.Err())
	}
	return domain.Wrap(op, domain.KindExternalService, err)
}
