// Package llm provides the generative text collaborator used for gap filling
// and session summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/mentorscore/session-api/internal/observability"
)

var (
	ErrNotConfigured = errors.New("generator not configured")
	ErrUnauthorized  = errors.New("generator rejected credentials")
	ErrRateLimited   = errors.New("generator rate limited")
	ErrTimeout       = errors.New("generator timed out")
	ErrUnavailable   = errors.New("generator unavailable")
	ErrEmptyResponse = errors.New("generator returned no text")
)

// Config for the Gemini generator.
type Config struct {
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	Temperature       float64
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini generates text with the Gemini API. Requests are throttled locally
// and bounded by Config.Timeout.
type Gemini struct {
	models      contentGenerator
	model       string
	timeout     time.Duration
	temperature float32
	limiter     *rate.Limiter
}

func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg Config) *Gemini {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gemini{
		models:      models,
		model:       cfg.Model,
		timeout:     timeout,
		temperature: float32(cfg.Temperature),
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10)),
	}
}

// Generate sends prompt as a single user turn and returns the concatenated
// text of the first candidate.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := g.generate(ctx, prompt)
	observability.RecordGeneratorRequest(status(err), time.Since(start))
	if err != nil {
		log.Debug().Err(err).Str("model", g.model).Msg("generator request failed")
	}
	return text, err
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

// classify maps SDK errors onto the package sentinels by message, since the
// SDK does not expose typed status errors for every transport.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "credential") || strings.Contains(msg, "api key"):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit"):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrEmptyResponse):
		return "empty"
	case errors.Is(err, ErrNotConfigured):
		return "disabled"
	default:
		return "unavailable"
	}
}

// Disabled is used when no API key is configured. Every call fails with
// ErrNotConfigured so callers fall back to their defaults.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, prompt string) (string, error) {
	observability.RecordGeneratorRequest(status(ErrNotConfigured), 0)
	return "", ErrNotConfigured
}
