// Package llm is the paid sentiment provider: a web-search-capable
// chat model summarizes pre-earnings positioning into a directional
// score. Every call is gated and metered by the budget tracker.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/whisper/internal/budget"
	"github.com/aristath/whisper/internal/domain"
	"github.com/aristath/whisper/internal/reliability"
)

const (
	defaultBaseURL   = "https://api.perplexity.ai"
	defaultModel     = "sonar"
	defaultService   = "perplexity"
	maxResponseBytes = 10 << 20
)

// BudgetGate is the slice of the budget tracker the client needs.
type BudgetGate interface {
	Check(ctx context.Context, service string, estimated domain.Money) (budget.Status, error)
	Record(ctx context.Context, service, model string, usage budget.Usage) (domain.Money, error)
}

// Config holds client settings.
type Config struct {
	APIKey        string
	Model         string
	BaseURL       string
	Service       string       // budget service name
	EstimatedCost domain.Money // per-call estimate fed to Check
	Timeout       time.Duration
}

// Client calls the chat completions endpoint and parses the structured
// sentiment verdict out of the reply.
type Client struct {
	cfg     Config
	httpc   *http.Client
	guard   *reliability.ProviderGuard
	gate    BudgetGate
	baseURL string
	log     zerolog.Logger
}

// New creates a sentiment client.
func New(cfg Config, guard *reliability.ProviderGuard, gate BudgetGate, log zerolog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Service == "" {
		cfg.Service = defaultService
	}
	if cfg.EstimatedCost.IsZero() {
		cfg.EstimatedCost = domain.NewMoney(0.02)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		httpc:   &http.Client{Timeout: timeout},
		guard:   guard,
		gate:    gate,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("provider", "llm_sentiment").Logger(),
	}
}

// Name implements the provider interface.
func (c *Client) Name() string { return "llm" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		CompletionTokens int `json:"completion_tokens"`
		ReasoningTokens  int `json:"reasoning_tokens"`
		NumSearchQueries int `json:"num_search_queries"`
	} `json:"usage"`
}

// verdict is the JSON contract the prompt demands from the model.
type verdict struct {
	Direction string   `json:"direction"`
	Score     float64  `json:"score"`
	Catalysts []string `json:"catalysts"`
	Risks     []string `json:"risks"`
}

const systemPrompt = `You are an equity earnings analyst. Answer with a single JSON object, no prose:
{"direction":"bullish"|"bearish"|"neutral","score":<-1..1>,"catalysts":[...],"risks":[...]}`

// Sentiment fetches the paid read for one announcement. The call is
// refused before any network traffic when the budget is exhausted.
func (c *Client) Sentiment(ctx context.Context, ticker string, earningsDate time.Time) (domain.Sentiment, error) {
	if _, err := c.gate.Check(ctx, c.cfg.Service, c.cfg.EstimatedCost); err != nil {
		return domain.Sentiment{}, err
	}

	prompt := fmt.Sprintf(
		"Assess market sentiment for %s going into its earnings announcement on %s. "+
			"Consider recent news, guidance revisions, and analyst positioning.",
		strings.ToUpper(ticker), earningsDate.Format("2006-01-02"))

	var resp chatResponse
	err := c.guard.Do(ctx, func() error {
		return c.post(ctx, chatRequest{
			Model: c.cfg.Model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: prompt},
			},
		}, &resp)
	})
	if err != nil {
		return domain.Sentiment{}, err
	}

	if _, err := c.gate.Record(ctx, c.cfg.Service, c.cfg.Model, budget.Usage{
		OutputTokens:    resp.Usage.CompletionTokens,
		ReasoningTokens: resp.Usage.ReasoningTokens,
		SearchRequests:  resp.Usage.NumSearchQueries,
	}); err != nil {
		// The call already happened; losing the meter write is worse
		// than the orphaned sentiment, so surface it.
		return domain.Sentiment{}, err
	}

	if len(resp.Choices) == 0 {
		return domain.Sentiment{}, domain.Errorf(domain.ErrNoData, "llm.sentiment",
			"empty completion for %s", ticker).WithTicker(ticker)
	}
	return parseVerdict(ticker, resp.Choices[0].Message.Content)
}

// parseVerdict decodes the model's JSON, tolerating a code fence around it.
func parseVerdict(ticker, content string) (domain.Sentiment, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx > 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}

	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return domain.Sentiment{}, domain.Errorf(domain.ErrExternal, "llm.parse",
			"unparseable sentiment verdict: %v", err).WithTicker(ticker)
	}

	direction := domain.SentimentDirection(strings.ToLower(v.Direction))
	switch direction {
	case domain.SentimentBullish, domain.SentimentBearish, domain.SentimentNeutral:
	default:
		direction = domain.SentimentNeutral
	}
	return domain.Sentiment{
		Direction: direction,
		Score:     v.Score,
		Catalysts: v.Catalysts,
		Risks:     v.Risks,
	}, nil
}

func (c *Client) post(ctx context.Context, payload chatRequest, response any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewError(domain.ErrInvalid, "llm.request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.NewError(domain.ErrInvalid, "llm.request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return domain.NewError(domain.ErrTimeout, "llm.request", err)
		}
		return domain.NewError(domain.ErrExternal, "llm.request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.NewError(domain.ErrExternal, "llm.read", err)
	}
	if len(data) > maxResponseBytes {
		return domain.Errorf(domain.ErrInvalid, "llm.read",
			"response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		kind := reliability.KindFromStatus(resp.StatusCode)
		return domain.Errorf(kind, "llm.request", "status %d", resp.StatusCode)
	}
	return json.Unmarshal(data, response)
}
