// Package prompts holds the advisor prompt templates.
package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/portfolio-advisor/internal/domain"
)

// Placeholders substituted into the templates
const (
	TermPlaceholder = "<term>"
	DataPlaceholder = "<data>"
)

// Regions queried for market sentiment, in prompt order
var Regions = []string{"US", "EU", "China"}

const defaultSentiment = `Search the web for today's financial news about the <term> stock market.
Summarize the general market sentiment in at most five sentences: direction of the main indices,
the dominant macro themes and any event that moved markets today. Answer in plain text.`

const defaultUser = `You manage a long-only equity portfolio. Below is today's input as JSON.
"general_market_sentiment" summarizes the market mood per region.
"stocks" lists analyst recommendations with rank, decision and explanation.

<data>

Select the stocks to buy today and how many shares of each.`

const defaultSystem = `You are a disciplined portfolio manager.
Only pick stocks from the provided list. Prefer stocks with a BUY decision and a good rank.
Keep each position below 10000 USD at the given close price.
Answer only with a JSON array of objects with the keys "symbol", "name" and "number_of_shares_to_buy".
Return an empty array when nothing is worth buying.`

// Prompts is the set of templates used by the portfolio manager
type Prompts struct {
	Sentiment string
	User      string
	System    string
}

// Default returns the built-in templates
func Default() *Prompts {
	return &Prompts{
		Sentiment: defaultSentiment,
		User:      defaultUser,
		System:    defaultSystem,
	}
}

type template struct {
	Prompt string `yaml:"prompt"`
}

// file mirrors the prompts.yaml layout used by the analytics pipeline
type file struct {
	Sentiment template `yaml:"agent_web_search_portfolio_manger"`
	User      template `yaml:"portfolio_manager_user"`
	System    template `yaml:"portfolio_manager_system"`
}

// Load reads a YAML prompt file. Templates missing from the file keep their defaults.
// An empty path returns the defaults.
func Load(path string) (*Prompts, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := p.merge(content); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file %s: %w", path, err)
	}
	return p, nil
}

func (p *Prompts) merge(content []byte) error {
	var f file
	if err := yaml.Unmarshal(content, &f); err != nil {
		return err
	}
	if s := strings.TrimSpace(f.Sentiment.Prompt); s != "" {
		p.Sentiment = f.Sentiment.Prompt
	}
	if s := strings.TrimSpace(f.User.Prompt); s != "" {
		p.User = f.User.Prompt
	}
	if s := strings.TrimSpace(f.System.Prompt); s != "" {
		p.System = f.System.Prompt
	}
	return nil
}

// SentimentPrompt returns the sentiment template for one region
func (p *Prompts) SentimentPrompt(region string) string {
	return strings.ReplaceAll(p.Sentiment, TermPlaceholder, region)
}

// PortfolioInput is the data embedded into the user prompt
type PortfolioInput struct {
	GeneralMarketSentiment string                  `json:"general_market_sentiment"`
	Stocks                 []domain.Recommendation `json:"stocks"`
}

// PortfolioUserPrompt embeds the sentiment and recommendations as JSON.
// News is stripped from every recommendation to keep the prompt small.
func (p *Prompts) PortfolioUserPrompt(sentiment string, recs []domain.Recommendation) (string, error) {
	stocks := make([]domain.Recommendation, len(recs))
	for i, r := range recs {
		r.News = ""
		stocks[i] = r
	}

	data, err := json.Marshal(PortfolioInput{GeneralMarketSentiment: sentiment, Stocks: stocks})
	if err != nil {
		return "", fmt.Errorf("failed to marshal portfolio input: %w", err)
	}
	return strings.ReplaceAll(p.User, DataPlaceholder, string(data)), nil
}

// SystemPrompt returns the portfolio construction system prompt
func (p *Prompts) SystemPrompt() string {
	return p.System
}
