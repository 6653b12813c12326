// Package extract turns source documents into a structured profile using
// an LLM.
package extract

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-profiler/internal/model"
	"github.com/sells-group/company-profiler/internal/resilience"
	"github.com/sells-group/company-profiler/pkg/anthropic"
)

// Request is the input to one extraction call.
type Request struct {
	Identity  model.CompanyIdentity
	Phase     model.Phase
	Round     int
	Documents []model.SourceDocument
	Schema    model.Schema
}

// Result is a parsed profile plus usage.
type Result struct {
	Profile model.Profile
	Usage   model.TokenUsage
}

// Extractor produces a profile from documents. Implementations make at
// most one collaborator call per invocation and never retry.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Result, error)
}

// Config controls the LLM call.
type Config struct {
	Model           string
	MaxTokens       int64
	Timeout         time.Duration
	MaxContextChars int
}

// Client is the Anthropic-backed Extractor.
type Client struct {
	ai      anthropic.Client
	cfg     Config
	breaker *resilience.Breaker
}

// New creates a Client. breaker may be nil; when set it is shared by every
// phase so a failing provider stops being called quickly.
func New(ai anthropic.Client, cfg Config, breaker *resilience.Breaker) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-haiku-4-5-20251001"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 60_000
	}
	return &Client{ai: ai, cfg: cfg, breaker: breaker}
}

// Extract builds the prompt, calls the model within the configured time
// budget, and parses its JSON answer. Every failure is an ExtractionError.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	fail := func(reason string, err error) error {
		return &model.ExtractionError{Phase: req.Phase, Round: req.Round, Reason: reason, Err: err}
	}
	if len(req.Schema.Fields) == 0 {
		return nil, fail("empty schema", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	temp := 0.0
	msgReq := anthropic.MessageRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		System: []anthropic.SystemBlock{
			{Text: systemPrompt(req.Schema), Cached: true},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: userPrompt(req, c.cfg.MaxContextChars)}},
		Temperature: &temp,
	}

	start := time.Now()
	resp, err := resilience.Call(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return c.ai.CreateMessage(ctx, msgReq)
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fail("timeout", err)
		case errors.Is(err, resilience.ErrBreakerOpen):
			return nil, fail("provider unavailable", err)
		default:
			return nil, fail("collaborator error", err)
		}
	}

	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
		CostUSD:      resp.Usage.EstimateCost(c.cfg.Model),
	}
	resp.Usage.LogCost(c.cfg.Model,
		zap.String("phase", string(req.Phase)),
		zap.Int("round", req.Round),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StopReason == "max_tokens" {
		zap.L().Warn("extract: response truncated at max tokens",
			zap.String("phase", string(req.Phase)),
			zap.Int("round", req.Round),
		)
	}

	profile, err := ParseProfile(resp.Text(), req.Schema)
	if err != nil {
		return nil, fail("malformed output", err)
	}
	return &Result{Profile: profile, Usage: usage}, nil
}
