package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGenerativeURL       = "https://openrouter.ai/api/v1/chat/completions"
	defaultGenerativeTimeout   = 10 * time.Second
	defaultGenerativeThreshold = 0.7
	maxErrorBody               = 512

	verificationPrompt = "Analyze the following record harvested from the web and rate how likely it is to be " +
		"genuine, accurate data rather than placeholder or fabricated content. Consider the source, the values " +
		"themselves and any red flags. Respond with only a number between 0.0 and 1.0.\nRecord: "
)

var numberPattern = regexp.MustCompile(`[0-9]*\.?[0-9]+`)

// GenerativeConfig captures the settings of the text-generation service.
type GenerativeConfig struct {
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	Threshold float64
}

// GenerativeVerifier asks an OpenAI-compatible chat completion endpoint to
// score a record. The reply is a single text value parsed as a confidence.
type GenerativeVerifier struct {
	cfg        GenerativeConfig
	httpClient *http.Client
}

// GenerativeOption customizes the verifier.
type GenerativeOption func(*GenerativeVerifier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) GenerativeOption {
	return func(g *GenerativeVerifier) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewGenerativeVerifier constructs the verifier. The API key is required;
// callers are expected to check for it during configuration.
func NewGenerativeVerifier(cfg GenerativeConfig, opts ...GenerativeOption) *GenerativeVerifier {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Name == "" {
		cfg.Name = "generative"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGenerativeURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGenerativeTimeout
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultGenerativeThreshold
	}
	g := &GenerativeVerifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GenerativeVerifier) Name() string {
	return g.cfg.Name
}

// Verify scores one item.
func (g *GenerativeVerifier) Verify(ctx context.Context, item map[string]any) (Verdict, error) {
	encoded, err := json.Marshal(item)
	if err != nil {
		return Verdict{}, NewError(CategoryInternal, g.Name(), "encode record", err)
	}
	text, err := g.Complete(ctx, verificationPrompt+string(encoded))
	if err != nil {
		return Verdict{}, err
	}
	confidence, err := parseConfidence(text)
	if err != nil {
		return Verdict{}, NewError(CategoryBadData, g.Name(), "parse confidence", err)
	}
	verdict := Verdict{
		Verifier:   g.Name(),
		Valid:      confidence >= g.cfg.Threshold,
		Confidence: confidence,
	}
	if !verdict.Valid {
		verdict.Reason = fmt.Sprintf("model confidence %.2f below %.2f", confidence, g.cfg.Threshold)
	}
	return verdict, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single prompt and returns the single text reply.
func (g *GenerativeVerifier) Complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", NewError(CategoryInternal, g.Name(), "prompt required", nil)
	}
	if g.cfg.APIKey == "" {
		return "", NewError(CategoryAuthentication, g.Name(), "api key required", nil)
	}
	body, err := json.Marshal(chatCompletionRequest{
		Model:    g.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", NewError(CategoryInternal, g.Name(), "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", NewError(CategoryInternal, g.Name(), "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", transportError(g.Name(), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(g.Name(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(g.Name(), resp.StatusCode, snippet(payload))
	}

	var decoded chatCompletionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", NewError(CategoryBadData, g.Name(), "decode response", err)
	}
	if len(decoded.Choices) == 0 {
		return "", NewError(CategoryBadData, g.Name(), "response has no choices", nil)
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", NewError(CategoryBadData, g.Name(), "empty content", nil)
	}
	return content, nil
}

// parseConfidence accepts a bare number or the first number inside a sentence.
func parseConfidence(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		return clamp01(v), nil
	}
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, fmt.Errorf("no number in %q", truncate(text, 64))
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, err
	}
	return clamp01(v), nil
}

func snippet(body []byte) string {
	return truncate(strings.TrimSpace(string(body)), maxErrorBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
