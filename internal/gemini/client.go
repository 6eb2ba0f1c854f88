// Package gemini wraps the Gemini REST generation endpoint behind a
// soft-failure client: callers always receive a Result and decide what an
// empty or blocked response means for their artifact.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

type Options struct {
	Temperature float64
	MaxTokens   int
}

// Result is what every generation call produces. Text is empty whenever
// Status is not StatusOK.
type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        float64
	Status           Status
}

func (r Result) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) Result
}

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type HTTPClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

func NewHTTPClient(apiKey, baseURL, model string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// Generate calls the model and never returns a Go error. Transport failures,
// non-200 responses and safety blocks all come back as a Result with empty
// text and a non-OK status; the caller's fallback path takes over from there.
func (c *HTTPClient) Generate(ctx context.Context, prompt string, opts Options) Result {
	start := time.Now()
	res := c.generate(ctx, prompt, opts)
	res.LatencyMS = float64(time.Since(start).Microseconds()) / 1000

	observeGeneration(c.model, res)
	return res
}

func (c *HTTPClient) generate(ctx context.Context, prompt string, opts Options) Result {
	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{
			Temperature:     opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		c.logger.Warn("encode generation request failed", "error", err)
		return Result{Status: StatusError}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		c.logger.Warn("build generation request failed", "error", err)
		return Result{Status: StatusError}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("generation request failed", "model", c.model, "error", err)
		return Result{Status: StatusError}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		c.logger.Warn("read generation response failed", "error", err)
		return Result{Status: StatusError}
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("generation backend returned non-200",
			"model", c.model, "status", resp.StatusCode, "body_len", len(body))
		return Result{Status: StatusError}
	}

	var gr generateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		c.logger.Warn("decode generation response failed", "error", err)
		return Result{Status: StatusError}
	}

	res := Result{Status: StatusOK}
	if gr.UsageMetadata != nil {
		res.PromptTokens = gr.UsageMetadata.PromptTokenCount
		res.CompletionTokens = gr.UsageMetadata.CandidatesTokenCount
	}

	if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
		c.logger.Warn("generation blocked", "model", c.model, "reason", gr.PromptFeedback.BlockReason)
		res.Status = StatusBlocked
		return res
	}
	if len(gr.Candidates) == 0 {
		c.logger.Warn("generation returned no candidates", "model", c.model)
		res.Status = StatusError
		return res
	}

	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	res.Text = sb.String()
	return res
}
