// Package funfact fetches short trivia about a place from Gemini.
//
// Lookups never fail: every problem is reported as a readable message so a
// caller can print whatever comes back.
package funfact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/maypok86/otter/v2"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// Messages returned instead of a fact.
const (
	MsgNotConfigured = "Gemini API not configured. Cannot fetch fun fact."
	MsgEmpty         = "Could not get a fun fact from Gemini. The response was empty."
	MsgInvalidKey    = "Error: The provided Gemini API key is not valid. Please check your .env configuration."
)

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client answers fun-fact lookups, caching answers per topic.
type Client struct {
	gen    Generator
	logger *slog.Logger
	cache  *otter.Cache[string, string]
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheTTL keeps answers for ttl. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl <= 0 {
			c.cache = nil
			return
		}
		c.cache = otter.Must(&otter.Options[string, string]{
			MaximumSize:      512,
			ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
		})
	}
}

// New creates a Client. A nil generator yields a client that reports it is
// not configured.
func New(gen Generator, opts ...Option) *Client {
	c := &Client{gen: gen, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Prompt is the text sent for topic.
func Prompt(topic string) string {
	return fmt.Sprintf("Tell me a short, interesting, and kid-friendly fun fact about %s. Keep it under 50 words.", topic)
}

// Lookup returns a fact about topic, or a message describing why none is available.
func (c *Client) Lookup(ctx context.Context, topic string) string {
	if c.gen == nil {
		return MsgNotConfigured
	}
	topic = strings.TrimSpace(topic)
	key := strings.ToLower(topic)

	if c.cache != nil {
		if fact, ok := c.cache.GetIfPresent(key); ok {
			c.logger.Debug("fun fact cache hit", "topic", topic)
			return fact
		}
	}

	text, err := c.gen.Generate(ctx, Prompt(topic))
	if err != nil {
		c.logger.Error("error fetching fun fact from Gemini", "topic", topic, "error", err)
		if strings.Contains(err.Error(), "API key not valid") {
			return MsgInvalidKey
		}
		return "Error fetching fun fact: " + err.Error()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return MsgEmpty
	}

	if c.cache != nil {
		c.cache.Set(key, text)
	}
	return text
}

// GeminiConfig selects the Gemini backend. An API key selects the Gemini API;
// otherwise Vertex AI is used with application default credentials.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
}

// Gemini generates text with the genai SDK.
type Gemini struct {
	client *genai.Client
	logger *slog.Logger
	model  string
}

// NewGemini creates a Gemini generator.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *slog.Logger) (*Gemini, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var gc *genai.ClientConfig
	if cfg.APIKey != "" {
		gc = &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
		logger.Debug("using Gemini API with API key")
	} else {
		loc := cfg.Location
		if loc == "" {
			loc = "us-central1"
		}
		gc = &genai.ClientConfig{Backend: genai.BackendVertexAI, Project: cfg.Project, Location: loc}
		logger.Debug("using Vertex AI with application default credentials", "project", cfg.Project, "location", loc)
	}

	client, err := genai.NewClient(ctx, gc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model, logger: logger}, nil
}

// Generate sends prompt and returns the first candidate's text.
// Transient failures are retried.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}
	temperature := float32(0.7)
	cfg := &genai.GenerateContentConfig{Temperature: &temperature, MaxOutputTokens: 200}

	var resp *genai.GenerateContentResponse
	err := retry.Do(
		func() error {
			var err error
			resp, err = g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
			if err != nil && !isTransient(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Debug("retrying Gemini call", "attempt", n+2, "error", err)
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", nil
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", nil
	}
	var b strings.Builder
	for _, p := range cand.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "quota", "timeout", "deadline", "unavailable", "internal", "502", "503", "504"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
